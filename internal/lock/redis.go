package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// releaseScript deletes the key only if this lease still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a session lock backed by SET NX PX. The TTL bounds how long
// a crashed worker can hold a key.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "cutoff:lock:"}
}

// TryLock sets the key if absent.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, false, eris.Wrapf(err, "lock: redis setnx %s", key)
	}
	logAttempt(key, ok)
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: l.prefix + key, token: token}, true, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err(); err != nil {
		return eris.Wrapf(err, "lock: redis release %s", r.key)
	}
	return nil
}
