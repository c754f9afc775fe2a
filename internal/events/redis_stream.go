package events

import (
	"context"
	"fmt"

	rediscommon "github.com/frankss230/AFE-PLUS.2-sub001/common/redis"

	"github.com/go-redis/redis/v8"
)

// RedisStreamPublisher 发布到 Redis Stream（字段：type / data / timestamp）
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher 创建 Redis Stream 发布者
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, ev.Type, ev); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}
	return nil
}

// Close 客户端由调用方管理
func (p *RedisStreamPublisher) Close() error {
	return nil
}
