package lock

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Conn is a single pinned database connection.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AcquireFunc pins a connection and returns a function that hands it back.
// Passing broken=true closes the connection instead of reusing it.
type AcquireFunc func(ctx context.Context) (Conn, func(broken bool), error)

// SessionLocker takes pg_try_advisory_lock on a pinned connection.
type SessionLocker struct {
	acquire AcquireFunc
}

// NewSessionLocker creates a SessionLocker over a pgx pool.
func NewSessionLocker(pool *pgxpool.Pool) *SessionLocker {
	return NewSessionLockerFunc(func(ctx context.Context) (Conn, func(bool), error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c, func(broken bool) {
			if broken {
				// A closed connection is destroyed by the pool on release,
				// taking any session lock it still holds with it.
				_ = c.Conn().Close(context.Background())
			}
			c.Release()
		}, nil
	})
}

// NewSessionLockerFunc creates a SessionLocker from a custom acquire function.
func NewSessionLockerFunc(acquire AcquireFunc) *SessionLocker {
	return &SessionLocker{acquire: acquire}
}

// TryLock pins a connection and attempts the session lock. When the lock is
// busy the connection is returned immediately.
func (l *SessionLocker) TryLock(ctx context.Context, key string) (Lease, bool, error) {
	conn, release, err := l.acquire(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "lock: acquire connection")
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", KeyID(key)).Scan(&ok); err != nil {
		release(true)
		return nil, false, eris.Wrapf(err, "lock: try session lock %s", key)
	}
	logAttempt(key, ok)
	if !ok {
		release(false)
		return nil, false, nil
	}
	return &sessionLease{key: key, conn: conn, release: release}, true, nil
}

type sessionLease struct {
	key     string
	conn    Conn
	release func(broken bool)
}

// Release unlocks and returns the pinned connection. If the unlock fails the
// connection is closed rather than pooled, so the lock cannot outlive it.
func (s *sessionLease) Release(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", KeyID(s.key)); err != nil {
		s.release(true)
		zap.L().Error("lock: release failed, connection discarded", zap.String("key", s.key), zap.Error(err))
		return eris.Wrapf(err, "lock: release %s", s.key)
	}
	s.release(false)
	zap.L().Debug("lock released", zap.String("key", s.key))
	return nil
}
