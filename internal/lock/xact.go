package lock

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cutoff-ingest/internal/db"
)

// XactLocker holds a transaction-scoped advisory lock for the life of a
// lease. Releasing the lease rolls the holding transaction back; a crashed
// worker's lock dies with its connection.
type XactLocker struct {
	pool db.Pool
}

// NewXactLocker creates an XactLocker over pool.
func NewXactLocker(pool db.Pool) *XactLocker {
	return &XactLocker{pool: pool}
}

// TryLock opens a transaction and takes the lock inside it.
func (l *XactLocker) TryLock(ctx context.Context, key string) (Lease, bool, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, false, eris.Wrapf(err, "lock: begin lock transaction %s", key)
	}
	ok, err := TryXact(ctx, tx, key)
	if err != nil || !ok {
		_ = tx.Rollback(ctx)
		return nil, false, err
	}
	return &xactLease{tx: tx}, true, nil
}

type xactLease struct {
	tx pgx.Tx
}

func (x *xactLease) Release(ctx context.Context) error {
	if err := x.tx.Rollback(ctx); err != nil && !eris.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "lock: release xact lock")
	}
	return nil
}
