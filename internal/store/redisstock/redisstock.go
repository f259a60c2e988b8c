// Package redisstock keeps stock counters in Redis. Each product is a plain
// integer key; the conditional decrement runs as a Lua script so the check
// and the write happen in one server-side step.
package redisstock

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"saleregister/backend/internal/domain"
)

const keyPrefix = "stock:"

var decrementScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return {0, -1}
end
current = tonumber(current)
local qty = tonumber(ARGV[1])
if current < qty then
	return {0, current}
end
return {1, redis.call('DECRBY', KEYS[1], qty)}
`)

type Counters struct {
	client *redis.Client
}

func New(client *redis.Client) *Counters {
	return &Counters{client: client}
}

func key(productID string) string {
	return keyPrefix + productID
}

func (c *Counters) TryDecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}

	res, err := decrementScript.Run(ctx, c.client, []string{key(productID)}, quantity).Int64Slice()
	if err != nil {
		return fmt.Errorf("%w: redis decrement %s: %w", domain.ErrStorageFailure, productID, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("%w: redis decrement %s: unexpected reply %v", domain.ErrStorageFailure, productID, res)
	}
	if res[0] == 1 {
		return nil
	}

	available := int(res[1])
	if available < 0 {
		available = 0
	}
	return &domain.StockError{ProductID: productID, Requested: quantity, Available: available}
}

func (c *Counters) RestoreStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return domain.InvalidParameterf("quantity must be at least 1, got %d", quantity)
	}
	if err := c.client.IncrBy(ctx, key(productID), int64(quantity)).Err(); err != nil {
		return fmt.Errorf("%w: redis restore %s: %w", domain.ErrStorageFailure, productID, err)
	}
	return nil
}

// SetStock overwrites a counter. Used for seeding from the catalog store.
func (c *Counters) SetStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.InvalidParameterf("stock must not be negative, got %d", quantity)
	}
	return c.client.Set(ctx, key(productID), quantity, 0).Err()
}

// SeedMissing initializes counters that do not exist yet and leaves
// existing ones alone.
func (c *Counters) SeedMissing(ctx context.Context, levels map[string]int) error {
	if len(levels) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, qty := range levels {
		pipe.SetNX(ctx, key(id), qty, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Counters) StockLevels(ctx context.Context, productIDs []string) (map[string]int, error) {
	levels := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return levels, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis stock levels: %w", domain.ErrStorageFailure, err)
	}

	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		qty, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.New("redis stock levels: non-integer counter for " + productIDs[i])
		}
		levels[productIDs[i]] = qty
	}
	return levels, nil
}

func (c *Counters) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
