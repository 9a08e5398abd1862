package quotes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backoffice/internal/shared"
)

func TestFormatAndParseQuoteNumber(t *testing.T) {
	assert.Equal(t, "QUO-2026-001", FormatQuoteNumber(2026, 1))
	assert.Equal(t, "QUO-2026-042", FormatQuoteNumber(2026, 42))
	assert.Equal(t, "QUO-2026-1000", FormatQuoteNumber(2026, 1000))

	year, seq, err := ParseQuoteNumber("QUO-2026-042")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 42, seq)

	_, seq, err = ParseQuoteNumber("QUO-2026-1000")
	require.NoError(t, err)
	assert.Equal(t, 1000, seq)

	for _, bad := range []string{"", "QUO-26-001", "INV-2026-001", "QUO-2026-01", "QUO-2026-abc", "QUO-2026-000"} {
		_, _, err := ParseQuoteNumber(bad)
		assert.Error(t, err, bad)
	}
}

type fixedSequence int

func (f fixedSequence) MaxQuoteSequence(context.Context, int64, int) (int, error) {
	return int(f), nil
}

func TestNextQuoteNumber(t *testing.T) {
	alloc := NewSequenceAllocator(3, nil, nil)

	number, err := alloc.NextQuoteNumber(context.Background(), fixedSequence(0), tenantA, 2026)
	require.NoError(t, err)
	assert.Equal(t, "QUO-2026-001", number)

	number, err = alloc.NextQuoteNumber(context.Background(), fixedSequence(41), tenantA, 2026)
	require.NoError(t, err)
	assert.Equal(t, "QUO-2026-042", number)
}

func TestRunRetriesOnTakenNumber(t *testing.T) {
	alloc := NewSequenceAllocator(3, nil, nil)
	calls := 0
	err := alloc.Run(context.Background(), tenantA, 2026, func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrQuoteNumberTaken
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunRetriesOnConcurrentModification(t *testing.T) {
	alloc := NewSequenceAllocator(2, nil, nil)
	calls := 0
	err := alloc.Run(context.Background(), tenantA, 2026, func(context.Context) error {
		calls++
		if calls == 1 {
			return ErrConcurrentModification
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunSurfacesConflictAfterBound(t *testing.T) {
	alloc := NewSequenceAllocator(4, nil, nil)
	calls := 0
	err := alloc.Run(context.Background(), tenantA, 2026, func(context.Context) error {
		calls++
		return ErrQuoteNumberTaken
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, 4, calls)
}

func TestRunDoesNotRetryOtherErrors(t *testing.T) {
	alloc := NewSequenceAllocator(4, nil, nil)
	boom := errors.New("boom")
	calls := 0
	err := alloc.Run(context.Background(), tenantA, 2026, func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockerExcludesConcurrentHolders(t *testing.T) {
	locker := NewRedisLocker(newTestRedis(t), 150*time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "quotes:seq:1:2026")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "quotes:seq:1:2026")
	require.Error(t, err, "second holder must not obtain the lock")

	other, err := locker.Lock(ctx, "quotes:seq:2:2026")
	require.NoError(t, err, "other tenants are independent")
	other(ctx)

	unlock(ctx)
	again, err := locker.Lock(ctx, "quotes:seq:1:2026")
	require.NoError(t, err)
	again(ctx)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(context.Context), error) {
	return nil, errors.New("redis down")
}

func TestRunProceedsWhenLockUnavailable(t *testing.T) {
	alloc := NewSequenceAllocator(1, failingLocker{}, nil)
	called := false
	err := alloc.Run(context.Background(), tenantA, 2026, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
