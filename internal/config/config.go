package config

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig           `yaml:"store" mapstructure:"store"`
	Log      LogConfig             `yaml:"log" mapstructure:"log"`
	Fetch    FetchConfig           `yaml:"fetch" mapstructure:"fetch"`
	Ingest   IngestConfig          `yaml:"ingest" mapstructure:"ingest"`
	Extract  ExtractConfig         `yaml:"extract" mapstructure:"extract"`
	Lock     LockConfig            `yaml:"lock" mapstructure:"lock"`
	Scan     ScanConfig            `yaml:"scan" mapstructure:"scan"`
	Server   ServerConfig          `yaml:"server" mapstructure:"server"`
	Temporal TemporalConfig        `yaml:"temporal" mapstructure:"temporal"`
	Exams    map[string]ExamConfig `yaml:"exams" mapstructure:"exams"`
}

// StoreConfig configures the Postgres connection pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchConfig configures outbound HTTP for seed pages, probes and downloads.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	ProbeBytes  int     `yaml:"probe_bytes" mapstructure:"probe_bytes"`
}

// IngestConfig configures the run orchestrator.
type IngestConfig struct {
	BatchSize     int    `yaml:"batch_size" mapstructure:"batch_size"`
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	ErrorTruncate int    `yaml:"error_truncate" mapstructure:"error_truncate"`
}

// ExtractConfig configures PDF table extraction.
type ExtractConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MinCells      int    `yaml:"min_cells" mapstructure:"min_cells"`
}

// LockConfig selects the distributed lock backend.
type LockConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// ScanConfig configures discovery.
type ScanConfig struct {
	Years       []int `yaml:"years" mapstructure:"years"`
	Concurrency int   `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the admin server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// TemporalConfig configures the scheduled task worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ExamConfig holds per-exam operational settings. Mode has no default.
type ExamConfig struct {
	Mode   string `yaml:"mode" mapstructure:"mode"`
	Active bool   `yaml:"active" mapstructure:"active"`
}

// Load reads configuration from config.yaml (optional) and CUTOFF_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CUTOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.user_agent", "cutoff-ingest/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.probe_bytes", 4096)
	v.SetDefault("ingest.batch_size", 1000)
	v.SetDefault("ingest.temp_dir", "/tmp/cutoff-ingest")
	v.SetDefault("ingest.error_truncate", 500)
	v.SetDefault("extract.provider", "local")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.min_cells", 3)
	v.SetDefault("lock.backend", "postgres")
	v.SetDefault("lock.ttl_secs", 900)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "cutoff-ingest")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// viper lowercases map keys; exam codes are uppercase everywhere else.
	exams := make(map[string]ExamConfig, len(cfg.Exams))
	for code, ec := range cfg.Exams {
		ec.Mode = strings.ToUpper(strings.TrimSpace(ec.Mode))
		exams[strings.ToUpper(code)] = ec
	}
	cfg.Exams = exams

	return &cfg, nil
}

// Validate reports every active exam whose ingestion mode is missing or unknown.
// Mode has no fallback value.
func (c *Config) Validate() error {
	var bad []string
	for code, ec := range c.Exams {
		if !ec.Active {
			continue
		}
		if ec.Mode != "BOOTSTRAP" && ec.Mode != "CONTINUOUS" {
			bad = append(bad, code)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return eris.Errorf("config: exams missing a valid ingestion mode (BOOTSTRAP|CONTINUOUS): %s",
			strings.Join(bad, ", "))
	}
	return nil
}

// ActiveExams returns the codes of active exams in sorted order.
func (c *Config) ActiveExams() []string {
	var out []string
	for code, ec := range c.Exams {
		if ec.Active {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
