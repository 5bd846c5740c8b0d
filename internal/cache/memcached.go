package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/user-lookup-service/internal/models"
)

const keyPrefix = "user:"

// memcached treats relative expirations above 30 days as absolute unix times.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache on memcached with JSON-encoded values.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// fall back to the client defaults when zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func itemKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// expiration converts ttl to memcached seconds, falling back to one hour when out of range.
func expiration(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return int32(sec)
}

// Get implements Cache.Get.
func (c *MemcachedCache) Get(ctx context.Context, id int64) (models.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, false, err
	}
	item, err := c.client.Get(itemKey(id))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	var u models.User
	if err := json.Unmarshal(item.Value, &u); err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, id int64, value models.User, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        itemKey(id),
		Value:      raw,
		Expiration: expiration(ttl),
	})
}

// Delete implements Cache.Delete. A miss is not an error.
func (c *MemcachedCache) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.client.Delete(itemKey(id)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
