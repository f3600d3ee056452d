package roster

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "crmflow:roster:"

// RedisCursor shares round robin positions between processes with INCR.
type RedisCursor struct {
	client redis.UniversalClient
}

func NewRedisCursor(client redis.UniversalClient) *RedisCursor {
	return &RedisCursor{client: client}
}

func (c *RedisCursor) Next(ctx context.Context, key string) (uint64, error) {
	position, err := c.client.Incr(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}

	return uint64(position), nil
}
