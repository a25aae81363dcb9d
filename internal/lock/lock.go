// Package lock serializes scans and ingestion runs on logical keys.
//
// Two disciplines exist. Transaction-scoped advisory locks (TryXact) are
// released by Postgres at commit or rollback and are used by ingestion runs.
// Session-scoped locks (Locker) pin a connection or a Redis key for the
// lifetime of a long-running scan and must be released explicitly.
// Failing to acquire either kind is a skip, not an error.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/db"
)

// Lease is a held session lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires session-scoped locks. held=false means another worker owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (lease Lease, held bool, err error)
}

// ScanKey is the lock key for discovery of one exam year.
func ScanKey(exam string, year int) string {
	return fmt.Sprintf("scan:%s:%d", exam, year)
}

// IngestKey is the lock key for one artifact's ingestion run.
func IngestKey(artifactID uuid.UUID) string {
	return "ingest:" + artifactID.String()
}

// KeyID maps a logical key to a positive 31-bit advisory lock id.
func KeyID(key string) int64 {
	sum := sha256.Sum256([]byte(key))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:4]), 16, 64)
	return int64(v % 2147483647)
}

// TryXact takes a transaction-scoped advisory lock on q, which must be an open
// transaction. The lock is released when the transaction ends.
func TryXact(ctx context.Context, q db.Querier, key string) (bool, error) {
	var ok bool
	if err := q.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", KeyID(key)).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "lock: try xact lock %s", key)
	}
	logAttempt(key, ok)
	return ok, nil
}

func logAttempt(key string, ok bool) {
	log := zap.L().With(zap.String("component", "lock"), zap.String("key", key), zap.Int64("lock_id", KeyID(key)))
	if ok {
		log.Debug("lock acquired")
	} else {
		log.Warn("lock busy, skipping")
	}
}
