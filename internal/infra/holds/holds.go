// Package holds provides the Redis-backed fast path for duplicate
// request suppression and cart-hold TTL mirroring. The negotiation core
// is correct without it — when Redis is not configured the engine runs
// DB-only and the claim keys are skipped.
package holds

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	claimKeyPrefix = "claim:"
	holdKeyPrefix  = "hold:"

	// claimTTL bounds how long a duplicate-suppression key can outlive a
	// crashed request.
	claimTTL = 30 * time.Second
)

// Cache implements domain.HoldCache over a Redis client.
type Cache struct {
	client *redis.Client
}

// NewCache creates a hold cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// ClaimOnce sets a short-lived claim key. Returns false when the key is
// already held, meaning a duplicate request is in flight.
func (c *Cache) ClaimOnce(ctx context.Context, key string) (bool, error) {
	return c.client.SetNX(ctx, claimKeyPrefix+key, 1, claimTTL).Result()
}

// ReleaseClaim drops a claim key early. Idempotent.
func (c *Cache) ReleaseClaim(ctx context.Context, key string) error {
	return c.client.Del(ctx, claimKeyPrefix+key).Err()
}

// MirrorHold records a cart hold with its TTL so UI reads can show a
// countdown without hitting the store.
func (c *Cache) MirrorHold(ctx context.Context, txnID string, seconds int) error {
	return c.client.Set(ctx, holdKeyPrefix+txnID, 1, time.Duration(seconds)*time.Second).Err()
}

// HoldRemaining returns the seconds left on a mirrored hold, or 0 when
// the hold is gone or was never mirrored.
func (c *Cache) HoldRemaining(ctx context.Context, txnID string) (int, error) {
	d, err := c.client.TTL(ctx, holdKeyPrefix+txnID).Result()
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return int(d.Seconds()), nil
}
