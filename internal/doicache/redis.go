package doicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matsen/bipcite/internal/reference"
)

// Redis key prefix for cached resolutions
const keyPrefix = "bipcite:doi:"

// Redis is a Cache shared between processes through a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithTTL sets the expiry of stored resolutions.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRedis wraps an existing client. The client lifecycle is managed by the
// caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Dial connects to addr and checks the connection with PING.
func Dial(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedis(client, opts...), nil
}

// Get returns the cached entry for doi. A missing key is not an error.
func (r *Redis) Get(ctx context.Context, doi string) (reference.Entry, bool, error) {
	key := reference.NormalizeDOI(doi)
	if key == "" {
		return reference.Entry{}, false, nil
	}
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return reference.Entry{}, false, nil
	}
	if err != nil {
		return reference.Entry{}, false, err
	}
	var e reference.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return reference.Entry{}, false, fmt.Errorf("decoding cached entry: %w", err)
	}
	return e, true, nil
}

// Put stores e under doi with the configured TTL.
func (r *Redis) Put(ctx context.Context, doi string, e reference.Entry) error {
	key := reference.NormalizeDOI(doi)
	if key == "" {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+key, data, r.ttl).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
