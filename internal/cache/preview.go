// Package cache holds the audience-preview cache. Previews are read-heavy
// while the UI builds a condition list, so a short TTL in Redis absorbs the
// repeated COUNT queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"minicrm/internal/domain"
)

type PreviewCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewPreview(addr string, ttl time.Duration) *PreviewCache {
	return &PreviewCache{
		RDB: redis.NewClient(&redis.Options{Addr: addr}),
		TTL: ttl,
	}
}

// Key derives a stable cache key from the ordered condition list. Order
// matters to evaluation, so it must matter to the key as well.
func Key(conds []domain.Condition) string {
	b, _ := json.Marshal(conds)
	sum := sha256.Sum256(b)
	return "preview:" + hex.EncodeToString(sum[:])
}

func (c *PreviewCache) Get(ctx context.Context, key string) (int64, bool) {
	v, err := c.RDB.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *PreviewCache) Set(ctx context.Context, key string, size int64) {
	// Cache misses are cheap; cache errors are ignored on purpose.
	_ = c.RDB.Set(ctx, key, strconv.FormatInt(size, 10), c.TTL).Err()
}

func (c *PreviewCache) Ping(ctx context.Context) error {
	return c.RDB.Ping(ctx).Err()
}
