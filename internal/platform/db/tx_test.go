package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

func serializationErr() error {
	return &pgconn.PgError{Code: SerializationFailure, Message: "could not serialize access due to concurrent update"}
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(serializationErr()))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: DeadlockDetected}))
	assert.True(t, IsSerializationFailure(fmt.Errorf("platform/db: commit tx: %w", serializationErr())))
	assert.True(t, IsSerializationFailure(shared.WrapPersistence("link", serializationErr())))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: UniqueViolation}))
	assert.False(t, IsSerializationFailure(errors.New("boom")))
	assert.False(t, IsSerializationFailure(nil))
}

func TestRetryReplaysSerializationFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return serializationErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return shared.ErrDuplicateCode
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateCode)
	assert.Equal(t, 1, calls)
}

func TestRetryIsBounded(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return serializationErr()
	})
	assert.True(t, IsSerializationFailure(err))
	assert.Equal(t, MaxTxAttempts, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func() error {
		calls++
		cancel()
		return serializationErr()
	})
	assert.True(t, IsSerializationFailure(err))
	assert.Equal(t, 1, calls)
}

func TestWithTxRequiresPool(t *testing.T) {
	assert.Error(t, WithTx(context.Background(), nil, nil))
}
