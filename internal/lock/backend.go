package lock

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/config"
)

// Lock backends.
const (
	BackendPostgres = "postgres"
	BackendSession  = "session"
	BackendRedis    = "redis"
)

// FromConfig builds the configured Locker. The returned close function
// releases backend resources and is never nil.
func FromConfig(cfg config.LockConfig, pool *pgxpool.Pool) (Locker, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", BackendPostgres:
		return NewXactLocker(pool), noop, nil
	case BackendSession:
		return NewSessionLocker(pool), noop, nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, noop, eris.New("lock: redis backend requires lock.redis_url")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, eris.Wrap(err, "lock: parse redis url")
		}
		client := redis.NewClient(opts)
		return NewRedisLocker(client, time.Duration(cfg.TTLSecs)*time.Second), client.Close, nil
	default:
		return nil, noop, eris.Errorf("lock: unknown backend %q", cfg.Backend)
	}
}
