// Package publish fans pipeline events out to Redis pub/sub so other
// processes can follow installs and generations.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix is the channel prefix; events go to "<prefix>:<pipeline>".
const DefaultPrefix = "mcpanel:events"

// DefaultTimeout bounds a single PUBLISH.
const DefaultTimeout = 2 * time.Second

// Config configures the Redis publisher.
type Config struct {
	// URL is the Redis connection URL: redis://[:password@]host:port[/db]
	URL     string
	Prefix  string
	Timeout time.Duration
}

// Redis publishes encoded events with PUBLISH.
type Redis struct {
	config Config
	client *goredis.Client
	logger *zap.Logger
}

// New creates a Redis publisher. It does not connect until the first
// publish.
func New(cfg Config, logger *zap.Logger) (*Redis, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis publisher requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: invalid URL: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{config: cfg, client: goredis.NewClient(opts), logger: logger}, nil
}

// Channel returns the channel used for pipeline.
func (r *Redis) Channel(pipeline string) string {
	return r.config.Prefix + ":" + pipeline
}

// Publish sends payload to the pipeline's channel. A slow or unavailable
// Redis never holds a pipeline for longer than the configured timeout.
func (r *Redis) Publish(ctx context.Context, pipeline string, payload []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := r.client.Publish(publishCtx, r.Channel(pipeline), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", pipeline, err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
