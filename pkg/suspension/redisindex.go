package suspension

import (
	"context"
	"fmt"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "crmflow:wait:"
	// Keys outlive the deadline so the sweeper can still time the execution out.
	redisKeyGrace = time.Hour
)

// RedisIndex keeps one set of execution ids per correlation key. Lookups are
// hints: the engine re-checks status and deadline from the store.
type RedisIndex struct {
	client redis.UniversalClient
}

func NewRedisIndex(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{client: client}
}

func (i *RedisIndex) Add(ctx context.Context, execution *models.Execution) error {
	wait := execution.Wait
	key := redisKey(execution.TenantID, wait.MatchField, wait.MatchValue)

	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, execution.ID)

		if wait.Deadline != nil {
			pipe.ExpireAt(ctx, key, wait.Deadline.Add(redisKeyGrace))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add %s: %w", key, err)
	}

	return nil
}

func (i *RedisIndex) Remove(ctx context.Context, execution *models.Execution) error {
	wait := execution.Wait
	key := redisKey(execution.TenantID, wait.MatchField, wait.MatchValue)

	if err := i.client.SRem(ctx, key, execution.ID).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", key, err)
	}

	return nil
}

func (i *RedisIndex) Lookup(ctx context.Context, tenantID string, field models.MatchField, value string) ([]string, error) {
	key := redisKey(tenantID, field, value)

	ids, err := i.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lookup %s: %w", key, err)
	}

	return ids, nil
}

func redisKey(tenantID string, field models.MatchField, value string) string {
	return redisKeyPrefix + tenantID + ":" + string(field) + ":" + value
}
