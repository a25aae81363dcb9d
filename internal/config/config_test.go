package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 4096, cfg.Fetch.ProbeBytes)
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	assert.Equal(t, 500, cfg.Ingest.ErrorTruncate)
	assert.Equal(t, "local", cfg.Extract.Provider)
	assert.Equal(t, "postgres", cfg.Lock.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cutoff-ingest", cfg.Temporal.TaskQueue)
	assert.Empty(t, cfg.Exams)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  database_url: postgres://localhost/cutoffs
log:
  level: debug
  format: console
exams:
  kcet:
    mode: continuous
    active: true
  neet_ka:
    mode: BOOTSTRAP
    active: true
  mhtcet_be:
    active: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/cutoffs", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Contains(t, cfg.Exams, "KCET")
	assert.Equal(t, "CONTINUOUS", cfg.Exams["KCET"].Mode)
	assert.Equal(t, "BOOTSTRAP", cfg.Exams["NEET_KA"].Mode)
	assert.Equal(t, []string{"KCET", "NEET_KA"}, cfg.ActiveExams())
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingMode(t *testing.T) {
	cfg := &Config{Exams: map[string]ExamConfig{
		"KCET":    {Active: true},
		"NEET_KA": {Mode: "SOMETIMES", Active: true},
		"MH_NEET": {Mode: "CONTINUOUS", Active: true},
		"OLD":     {Active: false},
	}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KCET, NEET_KA")
	assert.NotContains(t, err.Error(), "OLD")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	require.Error(t, InitLogger(LogConfig{Level: "loud"}))
	zap.ReplaceGlobals(zap.NewNop())
}
