package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/deduct_stock.lua
var deductStockScript string

//go:embed scripts/rollback_stock.lua
var rollbackStockScript string

//go:embed scripts/take_token.lua
var takeTokenScript string

// Deduct script outcomes.
const (
	DeductInsufficient = -1
	DeductNotWarmed    = -2
)

// OrderStatusTTL is the lifetime of a cached order status entry.
const OrderStatusTTL = 24 * time.Hour

type Client struct {
	rdb            *redis.Client
	deductScript   *redis.Script
	rollbackScript *redis.Script
	tokenScript    *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:            rdb,
		deductScript:   redis.NewScript(deductStockScript),
		rollbackScript: redis.NewScript(rollbackStockScript),
		tokenScript:    redis.NewScript(takeTokenScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(skuID string) string    { return fmt.Sprintf("stock:%s", skuID) }
func soldKey(skuID string) string     { return fmt.Sprintf("sold:%s", skuID) }
func soldOutKey(skuID string) string  { return fmt.Sprintf("sold_out:%s", skuID) }
func bucketKey(skuID string) string   { return fmt.Sprintf("token_bucket:%s", skuID) }
func rateKey(skuID string) string     { return fmt.Sprintf("token_bucket_rate:%s", skuID) }
func lastKey(skuID string) string     { return fmt.Sprintf("token_bucket_last:%s", skuID) }
func capacityKey(skuID string) string { return fmt.Sprintf("token_bucket_capacity:%s", skuID) }
func statusKey(orderID string) string { return fmt.Sprintf("order_status:%s", orderID) }

// WarmupStock resets a SKU's counters to the configured total. Idempotent
// overwrite; also clears a stale sold-out flag from a prior window.
func (c *Client) WarmupStock(ctx context.Context, skuID string, total int64) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, stockKey(skuID), total, 0)
	pipe.Set(ctx, soldKey(skuID), 0, 0)
	pipe.Del(ctx, soldOutKey(skuID))

	_, err := pipe.Exec(ctx)
	return err
}

// DeductStock runs the atomic check-and-deduct script. Returns the new
// remaining stock, or DeductInsufficient / DeductNotWarmed without mutating.
func (c *Client) DeductStock(ctx context.Context, skuID string, quantity int) (int64, error) {
	keys := []string{stockKey(skuID), soldKey(skuID)}

	result, err := c.deductScript.Run(ctx, c.rdb, keys, quantity).Result()
	if err != nil {
		return 0, fmt.Errorf("deduct stock script failed: %w", err)
	}

	remaining, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}

	return remaining, nil
}

// RollbackStock atomically returns quantity to a SKU's counters.
func (c *Client) RollbackStock(ctx context.Context, skuID string, quantity int) (int64, error) {
	keys := []string{stockKey(skuID), soldKey(skuID)}

	result, err := c.rollbackScript.Run(ctx, c.rdb, keys, quantity).Result()
	if err != nil {
		return 0, fmt.Errorf("rollback stock script failed: %w", err)
	}

	remaining, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}

	return remaining, nil
}

// GetStock reads a SKU's counters. Not transactional against concurrent
// mutation; callers tolerate torn reads.
func (c *Client) GetStock(ctx context.Context, skuID string) (remaining, sold int64, err error) {
	vals, err := c.rdb.MGet(ctx, stockKey(skuID), soldKey(skuID)).Result()
	if err != nil {
		return 0, 0, err
	}

	parse := func(v interface{}) int64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		var n int64
		fmt.Sscanf(s, "%d", &n)
		return n
	}

	return parse(vals[0]), parse(vals[1]), nil
}

// TakeToken runs the atomic refill-then-take script for a SKU's bucket.
// Returns whether a token was granted and the post-decrement token count
// (negative when the bucket was overdrawn).
func (c *Client) TakeToken(ctx context.Context, skuID string, now time.Time, rate, capacity int64) (bool, int64, error) {
	keys := []string{bucketKey(skuID), rateKey(skuID), lastKey(skuID), capacityKey(skuID)}

	result, err := c.tokenScript.Run(ctx, c.rdb, keys, now.Unix(), rate, capacity).Result()
	if err != nil {
		return false, 0, fmt.Errorf("take token script failed: %w", err)
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, fmt.Errorf("unexpected script result %v", result)
	}

	acquired, _ := vals[0].(int64)
	tokens, _ := vals[1].(int64)
	return acquired == 1, tokens, nil
}

// GetBucketState reads a SKU's token count and refill rate.
func (c *Client) GetBucketState(ctx context.Context, skuID string) (tokens, rate int64, err error) {
	vals, err := c.rdb.MGet(ctx, bucketKey(skuID), rateKey(skuID)).Result()
	if err != nil {
		return 0, 0, err
	}

	parse := func(v interface{}) (int64, bool) {
		s, ok := v.(string)
		if !ok {
			return 0, false
		}
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return 0, false
		}
		return n, true
	}

	t, ok := parse(vals[0])
	if !ok {
		return 0, 0, fmt.Errorf("token bucket not initialized for sku %s", skuID)
	}
	r, _ := parse(vals[1])
	return t, r, nil
}

// DeleteBucket removes a SKU's token bucket keys.
func (c *Client) DeleteBucket(ctx context.Context, skuID string) error {
	return c.rdb.Del(ctx, bucketKey(skuID), rateKey(skuID), lastKey(skuID), capacityKey(skuID)).Err()
}

// SetSoldOut raises the sold-out flag for a SKU.
func (c *Client) SetSoldOut(ctx context.Context, skuID string) error {
	return c.rdb.Set(ctx, soldOutKey(skuID), "1", 0).Err()
}

// IsSoldOut reports whether the sold-out flag is raised.
func (c *Client) IsSoldOut(ctx context.Context, skuID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, soldOutKey(skuID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOrderStatus writes the fast-lookup status entry for an order.
func (c *Client) SetOrderStatus(ctx context.Context, orderID, status string) error {
	return c.rdb.Set(ctx, statusKey(orderID), status, OrderStatusTTL).Err()
}

// GetOrderStatus reads an order's cached status. A cache miss is reported
// via found=false, not an error.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (status string, found bool, err error) {
	val, err := c.rdb.Get(ctx, statusKey(orderID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
