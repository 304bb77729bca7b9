// Package bus is the Redis pub/sub transport shared by feature feeds, intent
// publishing and the outcome inbox.
package bus

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/multichain-arb/internal/apperror"
)

// Publisher sends raw payloads to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber streams raw payloads from a channel or pattern until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
}

// Config holds Redis connection parameters.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	MaxRetries  int
	TLSEnabled  bool
	DialTimeout time.Duration
	BufferSize  int // per-subscription channel buffer
}

// Client wraps a go-redis client.
type Client struct {
	rdb        *redis.Client
	bufferSize int
}

// New connects and pings Redis.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, apperror.New(apperror.CodeBusConnectionFailed,
			apperror.WithCause(err), apperror.WithContext("redis ping "+cfg.Addr))
	}

	buf := cfg.BufferSize
	if buf <= 0 {
		buf = 256
	}
	return &Client{rdb: rdb, bufferSize: buf}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperror.New(apperror.CodeBusConnectionFailed,
			apperror.WithCause(err), apperror.WithContext("redis ping"))
	}
	return nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish sends payload to channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return apperror.New(apperror.CodeBusPublishFailed,
			apperror.WithCause(err), apperror.WithContext(channel))
	}
	return nil
}

// Subscribe subscribes to channel, using PSUBSCRIBE for glob patterns. The
// returned channel is closed when ctx is cancelled or the subscription ends.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var ps *redis.PubSub
	if isPattern(channel) {
		ps = c.rdb.PSubscribe(ctx, channel)
	} else {
		ps = c.rdb.Subscribe(ctx, channel)
	}

	// wait for the subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperror.New(apperror.CodeBusConnectionFailed,
			apperror.WithCause(err), apperror.WithContext("subscribe "+channel))
	}

	out := make(chan []byte, c.bufferSize)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ Bus = (*Client)(nil)
