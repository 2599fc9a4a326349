package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
)

type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (lifecycle.StatusView, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return lifecycle.StatusView{}, false, nil
	}
	if err != nil {
		return lifecycle.StatusView{}, false, err
	}
	var v lifecycle.StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return lifecycle.StatusView{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return v, true, nil
}

func (c *StatusCache) Set(ctx context.Context, v lifecycle.StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, v.OrderID), b, c.ttl).Err()
}

func (c *StatusCache) Delete(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
