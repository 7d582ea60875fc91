// Package cache keeps short-lived copies of collaborator lookups in Redis.
package cache

import (
	"encoding/json"
	"errors"
	"time"

	r "gopkg.in/redis.v5"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache is a byte cache with per-entry expiry.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, content []byte, ttl time.Duration) error
}

// DefaultPrefix namespaces every key.
const DefaultPrefix = "_MECHANIC_"

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *r.Client
	prefix string
}

// NewRedis connects using a redis:// URL and verifies the connection.
func NewRedis(url string) (*Redis, error) {
	opts, err := r.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c := &Redis{client: r.NewClient(opts), prefix: DefaultPrefix}
	if err := c.client.Ping().Err(); err != nil {
		c.client.Close()
		return nil, err
	}
	return c, nil
}

// Get returns the cached bytes, or ErrMiss.
func (c *Redis) Get(key string) ([]byte, error) {
	b, err := c.client.Get(c.prefix + key).Bytes()
	if err == r.Nil {
		return nil, ErrMiss
	}
	return b, err
}

// Set stores content for ttl.
func (c *Redis) Set(key string, content []byte, ttl time.Duration) error {
	return c.client.Set(c.prefix+key, content, ttl).Err()
}

// Close releases the connection pool.
func (c *Redis) Close() error { return c.client.Close() }

// GetOrLoad returns the JSON-decoded value under key, calling load on a miss
// and storing its result. Cache failures fall through to load. A nil cache
// always loads.
func GetOrLoad[T any](c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if c != nil {
		if b, err := c.Get(key); err == nil {
			var v T
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}
	v, err := load()
	if err != nil || c == nil {
		return v, err
	}
	if b, merr := json.Marshal(v); merr == nil {
		_ = c.Set(key, b, ttl)
	}
	return v, nil
}
