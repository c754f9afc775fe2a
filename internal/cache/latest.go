package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LatestCache 每个被监护人最新读数的 Redis 缓存
// 键：{prefix}{dependent_id}:latest，HASH 结构，field 为读数类型，value 为 JSON
type LatestCache struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewLatestCache 创建最新读数缓存
func NewLatestCache(redisClient *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *LatestCache {
	return &LatestCache{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		logger:      logger,
	}
}

func (c *LatestCache) key(dependentID string) string {
	return fmt.Sprintf("%s%s:latest", c.keyPrefix, dependentID)
}

// putRetries WATCH 冲突时的重试次数
const putRetries = 10

// Put 写入一条读数；比缓存中已有的同类读数旧时不覆盖
// 比较和写入在同一个 WATCH 事务里完成，并发写入时较新的读数总是保留
func (c *LatestCache) Put(ctx context.Context, reading *models.Reading) error {
	key := c.key(reading.DependentID)
	field := string(reading.Kind)

	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		existing, err := tx.HGet(ctx, key, field).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var prev models.Reading
			if json.Unmarshal([]byte(existing), &prev) == nil && prev.RecordedAt.After(reading.RecordedAt) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		return err
	}

	for i := 0; i < putRetries; i++ {
		err = c.redisClient.Watch(ctx, txf, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to write latest cache: %w", err)
	}
	return nil
}

// GetLatest 读取全部类型的最新读数；缓存未命中返回空 map
func (c *LatestCache) GetLatest(ctx context.Context, dependentID string) (map[models.ReadingKind]*models.Reading, error) {
	values, err := c.redisClient.HGetAll(ctx, c.key(dependentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest cache: %w", err)
	}

	latest := make(map[models.ReadingKind]*models.Reading, len(values))
	for field, raw := range values {
		var r models.Reading
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			c.logger.Warn("Invalid cached reading, skipped",
				zap.String("dependent_id", dependentID),
				zap.String("kind", field),
				zap.Error(err),
			)
			continue
		}
		latest[models.ReadingKind(field)] = &r
	}
	return latest, nil
}
