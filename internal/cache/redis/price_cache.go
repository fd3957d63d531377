package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each
// (asset, fiat) price is stored as a hash at key "price:{asset}:{fiat}" with
// fields "price" and "ts" (Unix nanosecond timestamp), expiring after ttl so
// stale oracle reads age out on their own.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(asset, fiat string) string {
	return "price:" + asset + ":" + fiat
}

// SetPrice stores the latest oracle price for (asset, fiat).
func (pc *PriceCache) SetPrice(ctx context.Context, asset, fiat string, price float64, ts time.Time) error {
	key := priceKey(asset, fiat)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", asset, fiat, err)
	}
	if pc.ttl > 0 {
		if err := pc.rdb.Expire(ctx, key, pc.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire price %s/%s: %w", asset, fiat, err)
		}
	}
	return nil
}

// GetPrice retrieves the cached price and its timestamp for (asset, fiat).
// It returns domain.ErrNotFound when no fresh price is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, asset, fiat string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset, fiat)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", asset, fiat, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", asset, fiat, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s/%s: %w", asset, fiat, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
