// Package quota meters external provider calls against a daily budget.
// Counters are keyed by UTC date and expire on their own once the day rolls
// over.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/placedex/internal/db"
)

// store is the consumer interface for quota operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Counter tracks provider calls consumed in the current UTC day.
type Counter struct {
	store  store
	prefix string
	now    func() time.Time
}

// New creates a daily quota counter with the given key prefix.
func New(s store, keyPrefix string) *Counter {
	return &Counter{store: s, prefix: keyPrefix, now: time.Now}
}

func (c *Counter) key() string {
	return c.prefix + "quota:" + c.now().UTC().Format("2006-01-02")
}

// Consumed returns how many provider calls have been counted today.
// A missing key means zero.
func (c *Counter) Consumed(ctx context.Context) (int64, error) {
	raw, err := c.store.Get(ctx, c.key())
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading quota counter: %w", err)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing quota counter %q: %w", raw, err)
	}
	return n, nil
}

// Increment counts one provider call against today's budget. The key expires
// at the next UTC midnight; EXPIRE NX keeps concurrent increments from
// pushing the deadline.
func (c *Counter) Increment(ctx context.Context) error {
	key := c.key()
	if err := c.store.IncrBy(ctx, key, 1); err != nil {
		return fmt.Errorf("incrementing quota counter: %w", err)
	}
	if err := c.store.Expire(ctx, key, c.untilMidnight(), true); err != nil {
		return fmt.Errorf("setting quota counter expiry: %w", err)
	}
	return nil
}

// ResetsAt returns the next UTC midnight, when the counter rolls over.
func (c *Counter) ResetsAt() time.Time {
	now := c.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func (c *Counter) untilMidnight() time.Duration {
	return c.ResetsAt().Sub(c.now().UTC())
}
