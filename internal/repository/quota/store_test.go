package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/placedex/internal/db"
)

type mockKV struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	incrFn   func(ctx context.Context, key string, val int64) error
	expireFn func(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKV) IncrBy(ctx context.Context, key string, val int64) error {
	if m.incrFn != nil {
		return m.incrFn(ctx, key, val)
	}
	return nil
}

func (m *mockKV) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

func newTestCounter(kv *mockKV, at time.Time) *Counter {
	c := New(kv, "placedex:")
	c.now = func() time.Time { return at }
	return c
}

func TestConsumed_MissingKeyIsZero(t *testing.T) {
	c := newTestCounter(&mockKV{}, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))

	n, err := c.Consumed(context.Background())
	if err != nil {
		t.Fatalf("Consumed: %v", err)
	}
	if n != 0 {
		t.Errorf("consumed = %d, want 0", n)
	}
}

func TestConsumed_ParsesCounter(t *testing.T) {
	kv := &mockKV{
		getFn: func(_ context.Context, key string) ([]byte, error) {
			if key != "placedex:quota:2026-08-29" {
				t.Errorf("key = %q, want UTC-dated key", key)
			}
			return []byte("42"), nil
		},
	}
	c := newTestCounter(kv, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))

	n, err := c.Consumed(context.Background())
	if err != nil {
		t.Fatalf("Consumed: %v", err)
	}
	if n != 42 {
		t.Errorf("consumed = %d, want 42", n)
	}
}

func TestQuotaKeyUsesUTCDate(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	local := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2026, 8, 28, 23, 30, 0, 0, local)
	c := newTestCounter(&mockKV{}, at)

	if got := c.key(); got != "placedex:quota:2026-08-29" {
		t.Errorf("key = %q, want the UTC date", got)
	}
}

func TestIncrement_SetsExpiryNX(t *testing.T) {
	var incrKey string
	var expireTTL time.Duration
	var expireNX bool
	kv := &mockKV{
		incrFn: func(_ context.Context, key string, val int64) error {
			incrKey = key
			if val != 1 {
				t.Errorf("increment by %d, want 1", val)
			}
			return nil
		},
		expireFn: func(_ context.Context, _ string, ttl time.Duration, nx bool) error {
			expireTTL, expireNX = ttl, nx
			return nil
		},
	}
	at := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)
	c := newTestCounter(kv, at)

	if err := c.Increment(context.Background()); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if incrKey != "placedex:quota:2026-08-29" {
		t.Errorf("key = %q", incrKey)
	}
	if expireTTL != 6*time.Hour {
		t.Errorf("ttl = %v, want 6h until UTC midnight", expireTTL)
	}
	if !expireNX {
		t.Error("expiry must use NX so later increments keep the deadline")
	}
}

func TestIncrement_PropagatesStoreError(t *testing.T) {
	boom := errors.New("conn refused")
	kv := &mockKV{
		incrFn: func(_ context.Context, _ string, _ int64) error { return boom },
	}
	c := newTestCounter(kv, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))

	if err := c.Increment(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestResetsAt(t *testing.T) {
	c := newTestCounter(&mockKV{}, time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC))

	want := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if got := c.ResetsAt(); !got.Equal(want) {
		t.Errorf("ResetsAt = %v, want %v", got, want)
	}
}
