// Package negcache is the negative-result cache: it remembers normalized
// queries for which the external provider returned zero results, so repeated
// misses do not burn provider quota.
package negcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/placedex/internal/db"
	"github.com/kailas-cloud/placedex/internal/domain/dedupe"
	"github.com/kailas-cloud/placedex/internal/metrics"
)

// store is the consumer interface for negative-cache operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores zero-result markers keyed by a digest of the normalized query.
type Cache struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a negative-result cache with the given key prefix and entry TTL.
func New(s store, keyPrefix string, ttl time.Duration) *Cache {
	return &Cache{store: s, prefix: keyPrefix, ttl: ttl}
}

func (c *Cache) key(query string) string {
	sum := sha256.Sum256([]byte(dedupe.NormalizeQuery(query)))
	return c.prefix + "negcache:" + hex.EncodeToString(sum[:])
}

// Seen reports whether the query recently produced zero provider results.
// Cache errors degrade to a miss so the resolver keeps working without Redis.
func (c *Cache) Seen(ctx context.Context, query string) bool {
	_, err := c.store.Get(ctx, c.key(query))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			metrics.NegativeCacheTotal.WithLabelValues("error").Inc()
			return false
		}
		metrics.NegativeCacheTotal.WithLabelValues("miss").Inc()
		return false
	}
	metrics.NegativeCacheTotal.WithLabelValues("hit").Inc()
	return true
}

// Mark records that the query produced zero provider results.
func (c *Cache) Mark(ctx context.Context, query string) error {
	if err := c.store.SetWithTTL(ctx, c.key(query), []byte("1"), c.ttl); err != nil {
		return fmt.Errorf("marking negative result: %w", err)
	}
	return nil
}
