package propagation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBackplane 基于 Redis PUBLISH/SUBSCRIBE
type RedisBackplane struct {
	client  *redis.Client
	channel string
	logger  logrus.FieldLogger
}

// NewRedisBackplane 创建 Redis Backplane 并检查连通性
func NewRedisBackplane(ctx context.Context, client *redis.Client, channel string, logger logrus.FieldLogger) (*RedisBackplane, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBackplane{client: client, channel: channel, logger: logger}, nil
}

// Publish 发布事件
func (r *RedisBackplane) Publish(ctx context.Context, evt ChangeEvent) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", r.channel, err)
	}
	return nil
}

// Listen 订阅频道
func (r *RedisBackplane) Listen(ctx context.Context, handler func(ChangeEvent)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				r.logger.WithError(err).Warn("dropping malformed redis message")
				continue
			}
			handler(evt)
		}
	}
}

// Close 关闭客户端
func (r *RedisBackplane) Close() error {
	return r.client.Close()
}
