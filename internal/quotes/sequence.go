package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"

	"github.com/eventdesk/backoffice/internal/shared"
)

// QuoteNumberPrefix starts every quote number.
const QuoteNumberPrefix = "QUO"

// DefaultMaxAttempts bounds the allocation retries after a uniqueness conflict.
const DefaultMaxAttempts = 5

// ErrQuoteNumberTaken is returned by Tx.InsertQuote when the number is already used.
var ErrQuoteNumberTaken = errors.New("quotes: quote number already taken")

// FormatQuoteNumber renders QUO-<yyyy>-<nnn>. Sequences past 999 keep all digits.
func FormatQuoteNumber(year, seq int) string {
	return fmt.Sprintf("%s-%04d-%03d", QuoteNumberPrefix, year, seq)
}

// ParseQuoteNumber extracts the year and sequence of a quote number.
func ParseQuoteNumber(number string) (year, seq int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 || parts[0] != QuoteNumberPrefix || len(parts[1]) != 4 || len(parts[2]) < 3 {
		return 0, 0, fmt.Errorf("quotes: malformed quote number %q", number)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("quotes: malformed quote year %q", number)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return 0, 0, fmt.Errorf("quotes: malformed quote sequence %q", number)
	}
	return year, seq, nil
}

// SequenceReader reads the highest used suffix for a tenant and year.
type SequenceReader interface {
	MaxQuoteSequence(ctx context.Context, tenantID int64, year int) (int, error)
}

// Locker serialises allocations for one tenant/year across processes. It is an
// optimisation only; the unique constraint stays authoritative.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context), err error)
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a locker; ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: ttl}
}

// Lock obtains the key, retrying until the wait budget is spent.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(25 * time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		_ = lock.Release(ctx)
	}, nil
}

// SequenceAllocator produces tenant and year scoped quote numbers.
type SequenceAllocator struct {
	maxAttempts int
	locker      Locker
	logger      *slog.Logger
}

// NewSequenceAllocator constructs an allocator. locker may be nil.
func NewSequenceAllocator(maxAttempts int, locker Locker, logger *slog.Logger) *SequenceAllocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SequenceAllocator{maxAttempts: maxAttempts, locker: locker, logger: logger}
}

// NextQuoteNumber computes the next number from the highest observed suffix.
// Call it inside the transaction that inserts the quote.
func (a *SequenceAllocator) NextQuoteNumber(ctx context.Context, reader SequenceReader, tenantID int64, year int) (string, error) {
	maxSeq, err := reader.MaxQuoteSequence(ctx, tenantID, year)
	if err != nil {
		return "", fmt.Errorf("read quote sequence: %w", err)
	}
	return FormatQuoteNumber(year, maxSeq+1), nil
}

// Run executes attempt until it stops failing with ErrQuoteNumberTaken or
// ErrConcurrentModification, up to the configured bound. Each attempt must open its own transaction and
// recompute the number.
func (a *SequenceAllocator) Run(ctx context.Context, tenantID int64, year int, attempt func(context.Context) error) error {
	if a.locker != nil {
		unlock, err := a.locker.Lock(ctx, shared.QuoteSequenceLockKey(tenantID, year))
		if err != nil {
			a.logger.Warn("quote sequence lock not obtained, relying on unique constraint",
				slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		} else {
			defer unlock(context.WithoutCancel(ctx))
		}
	}

	for i := 1; i <= a.maxAttempts; i++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrQuoteNumberTaken) && !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		a.logger.Debug("quote number conflict, retrying",
			slog.Int64("tenant_id", tenantID), slog.Int("attempt", i))
	}
	return fmt.Errorf("%w: could not allocate a quote number for %d after %d attempts", shared.ErrConflict, year, a.maxAttempts)
}
