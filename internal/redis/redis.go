package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taxfiler/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Namespace prefixes every key the service writes.
const Namespace = "taxfiler"

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// Client wraps the go-redis client shared by the token cache, dashboard cache and rate limiters.
type Client struct {
	inner *redis.Client
}

// Key joins parts under the service namespace, e.g. Key("dashboard", "7") is "taxfiler:dashboard:7".
func Key(parts ...string) string {
	return Namespace + ":" + strings.Join(parts, ":")
}

// Addr returns host:port with local defaults applied.
func Addr(cfg config.RedisConfig) string {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// NewRedisClient connects using the redis section of cfg and pings once.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     Addr(cfg.Redis),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", Addr(cfg.Redis), err)
	}
	return &Client{inner: client}, nil
}

// Wrap adopts an already configured go-redis client.
func Wrap(inner *redis.Client) *Client {
	return &Client{inner: inner}
}

func (c *Client) ready() error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.inner.Get(ctx, key).Result()
}

// SetJSON stores v encoded as JSON.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, payload, ttl)
}

// GetJSON decodes the cached value into dst. A missing key returns ErrCacheMiss.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	return c.inner.TTL(ctx, key).Result()
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes the underlying go-redis client for scripts.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
