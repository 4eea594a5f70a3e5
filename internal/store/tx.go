// Package store wraps bun transactions in an explicit retry-on-conflict
// policy. The backing store detects conflicting writes at commit time
// (serialization failures, deadlocks, busy databases); those are transient
// and retried with exponential backoff up to a bounded attempt count, while
// business errors abort immediately.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
)

// RetryPolicy bounds the automatic conflict retries around one transaction
// and carries the isolation level to run it at. Postgres needs serializable
// for the read-then-write paths; SQLite serializes writers on its own and
// only accepts the default level.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	Isolation  sql.IsolationLevel
}

// DefaultRetryPolicy matches the sort of contention seen during a flash
// sale burst: a handful of quick retries, then give up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, BaseDelay: 25 * time.Millisecond, Isolation: sql.LevelSerializable}
}

// RunInTx executes fn inside one transaction, retrying the whole transaction
// when the store reports a write conflict. Any other error is returned as-is
// after rollback.
func RunInTx(ctx context.Context, db *bun.DB, policy RetryPolicy, fn func(ctx context.Context, tx bun.Tx) error) error {
	attempt := func() error {
		err := db.RunInTx(ctx, &sql.TxOptions{Isolation: policy.Isolation}, fn)
		if err == nil {
			return nil
		}
		if isConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.BaseDelay * 16

	err := backoff.Retry(attempt, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), policy.MaxRetries))
	if perm, ok := err.(*backoff.PermanentError); ok {
		return perm.Err
	}
	return err
}

// isConflict reports whether err is the store telling us two transactions
// collided. Covers Postgres serialization/deadlock codes and SQLite's busy
// signalling, which are the dialects this service runs against.
func isConflict(err error) bool {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "40001"), // serialization_failure
		strings.Contains(msg, "40P01"), // deadlock_detected
		strings.Contains(msg, "could not serialize"),
		strings.Contains(msg, "deadlock detected"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return true
	}
	return false
}
