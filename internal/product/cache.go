package product

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// keyProductList caches a filtered product listing: products:{filter}
	keyProductList = "products:%s"

	listCacheTTL = 10 * time.Minute
)

// Cache is a read-through redis cache for product listings. Misses and
// redis errors fall back to the repository; entries are dropped after a
// sync import.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) GetList(ctx context.Context, filter ListFilter) ([]Product, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, listKey(filter)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("cache: failed to read product listing")
		}
		return nil, false
	}

	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		log.Warn().Err(err).Msg("cache: failed to decode cached product listing")
		return nil, false
	}

	return products, true
}

func (c *Cache) SetList(ctx context.Context, filter ListFilter, products []Product) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(products)
	if err != nil {
		log.Warn().Err(err).Msg("cache: failed to encode product listing")
		return
	}

	if err := c.rdb.Set(ctx, listKey(filter), raw, listCacheTTL).Err(); err != nil {
		log.Warn().Err(err).Msg("cache: failed to store product listing")
	}
}

// Invalidate drops all cached listings, called after a sync import.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}

	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf(keyProductList, "*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("cache: failed to drop product listing")
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("cache: failed to scan product listings")
	}
}

func listKey(filter ListFilter) string {
	return fmt.Sprintf(keyProductList, fmt.Sprintf("available=%t:featured=%t:category=%s",
		filter.AvailableOnly, filter.FeaturedOnly, filter.CategoryName))
}
