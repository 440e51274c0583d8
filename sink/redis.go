// Package sink abstracts the pub/sub transport the bridge publishes to.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sink is the publish contract the bridge core depends on. Delivery is
// at-most-once; the sink makes no ordering or retention promises.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// RedisConfig holds connection settings for the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds the startup health check.
	DialTimeout time.Duration
}

// Redis publishes payloads on Redis pub/sub channels.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedis connects and verifies the connection with a PING. Startup is
// the only place a sink error is fatal.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	r := &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		cfg: cfg,
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return r, nil
}

// Publish sends payload on the channel. A channel with no subscribers is
// not an error; Redis simply drops the message.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return r.client.Publish(ctx, topic, payload).Err()
}

// Healthy reports whether the connection answers a PING.
func (r *Redis) Healthy(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Reconnect rebuilds the client after a connection loss. The supervisor
// calls this off the consumer loop when publish failures accumulate.
func (r *Redis) Reconnect(ctx context.Context) error {
	_ = r.client.Close()
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Addr,
		Password: r.cfg.Password,
		DB:       r.cfg.DB,
	})
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis reconnect %s: %w", r.cfg.Addr, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
