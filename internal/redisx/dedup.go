package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup claims keys with SETNX so that a notification is applied once even when
// the gateway delivers it many times.
type Dedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDedup(rdb *redis.Client) *Dedup {
	return &Dedup{rdb: rdb, ttl: TTLDedup}
}

func (d *Dedup) Claim(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, fmt.Sprintf(KeyPaymentDedup, key), 1, d.ttl).Result()
}

// Release forgets a claim so a redelivery can be processed again.
func (d *Dedup) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyPaymentDedup, key)).Err()
}
