package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes the repositories react to.
const (
	UniqueViolation      = "23505"
	SerializationFailure = "40001"
	DeadlockDetected     = "40P01"
)

// MaxTxAttempts bounds how often a unit is replayed after a serialization
// failure or deadlock.
const MaxTxAttempts = 10

const retryBackoff = 2 * time.Millisecond

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// The transaction is rolled back whenever fn returns an error, so callers get all-or-nothing writes.
// A unit aborted by a serialization failure or deadlock is replayed from a fresh snapshot, so fn
// must not have side effects outside the transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	if pool == nil {
		return errors.New("platform/db: pool not initialised")
	}
	return Retry(ctx, func() error {
		return runTx(ctx, pool, fn)
	})
}

// Retry runs unit until it succeeds, fails with an error other than a
// serialization failure or deadlock, exhausts MaxTxAttempts, or ctx ends.
func Retry(ctx context.Context, unit func() error) error {
	for attempt := 1; ; attempt++ {
		err := unit()
		if err == nil || !IsSerializationFailure(err) || attempt == MaxTxAttempts {
			return err
		}
		timer := time.NewTimer(time.Duration(attempt) * retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// IsSerializationFailure reports whether err aborted the transaction because
// of a concurrent write.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == SerializationFailure || pgErr.Code == DeadlockDetected
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsUniqueViolation reports whether err is a unique constraint failure,
// optionally restricted to the named constraint or index.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
