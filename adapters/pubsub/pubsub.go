// Package pubsub relays events between instances over Redis pub/sub.
package pubsub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/smartyellow/services/ports"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every channel name.
	Prefix string
}

// Publisher publishes events to Redis channels named after their topic.
type Publisher struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return NewFromClient(client, cfg.Prefix, logger), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{client: client, prefix: prefix, logger: logger}
}

// Publish sends payload to the channel of topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	n, err := p.client.Publish(ctx, p.channel(topic), payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug().Str("topic", topic).Int64("receivers", n).Msg("event relayed")
	return nil
}

// Subscribe delivers messages on channels matching the topic pattern
// (Redis glob syntax) to fn until ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, pattern string, fn func(ctx context.Context, topic string, payload []byte)) error {
	sub := p.client.PSubscribe(ctx, p.channel(pattern))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	p.logger.Info().Str("pattern", pattern).Msg("subscribed to remote events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, ok := p.topic(msg.Channel)
			if !ok {
				continue
			}
			fn(ctx, topic, []byte(msg.Payload))
		}
	}
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) channel(topic string) string {
	return p.prefix + topic
}

func (p *Publisher) topic(channel string) (string, bool) {
	return strings.CutPrefix(channel, p.prefix)
}

var _ ports.Publisher = (*Publisher)(nil)
