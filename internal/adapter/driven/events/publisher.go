// Package events publishes credential pool changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/credpool/internal/domain/model"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

const publishTimeout = 2 * time.Second

// Compile-time interface satisfaction checks.
var (
	_ driven.EventPublisher = (*LogPublisher)(nil)
	_ driven.EventPublisher = (*RedisPublisher)(nil)
)

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements driven.EventPublisher.
func (p *LogPublisher) Publish(ctx context.Context, event model.Event) {
	p.logger.InfoContext(ctx, "credential event",
		"topic", event.Topic,
		"id", event.CredentialID,
		"payload", event.Payload,
	)
}

// RedisPublisher publishes JSON-encoded events on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisPublisher connects to addr and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password, channel string, logger *slog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}

	return &RedisPublisher{client: client, channel: channel, logger: logger}, nil
}

// Publish implements driven.EventPublisher. Delivery failures are logged.
func (p *RedisPublisher) Publish(ctx context.Context, event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode event", "topic", event.Topic, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.channel, data).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			"topic", event.Topic,
			"channel", p.channel,
			"error", err,
		)
	}
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
