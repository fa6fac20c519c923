package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// ErrTxConflict marks a transaction that lost a race. A TxFunc may return
// an error wrapping it to ask for a retry; WithTx returns it once retries
// are exhausted.
var ErrTxConflict = errors.New("transaction conflict")

type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}
}

// SetRetry overrides the conflict retry policy.
func (db *DB) SetRetry(maxAttempts int, baseDelay time.Duration) {
	if maxAttempts > 0 {
		db.retry.maxAttempts = maxAttempts
	}
	if baseDelay >= 0 {
		db.retry.baseDelay = baseDelay
	}
}

// WithTx runs fn in a transaction, committing on success and rolling back on
// every other exit. Conflicts are retried with exponential backoff:
// 0 ms, 10 ms, 20 ms, 40 ms, 80 ms plus jitter by default.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	var lastErr error

	for attempt := 0; attempt < db.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := db.retry.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * db.retry.jitterFactor //nolint:gosec // jitter only

			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = db.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	if errors.Is(lastErr, ErrTxConflict) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", ErrTxConflict, lastErr)
}

func (db *DB) runTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := db.BeginTxx(ctx, db.txOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txOptions asks Postgres for serializable isolation. SQLite serializes
// writers through the immediate lock taken at BEGIN.
func (db *DB) txOptions() *sql.TxOptions {
	if db.dialect == dialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTxConflict) || IsSerializationFailure(err)
}
