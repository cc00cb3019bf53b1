package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/ports"
)

var _ ports.RoleCache = (*RoleCache)(nil)

// RoleCache is the shared role tier used across portal processes.
type RoleCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRoleCache creates a role cache. An empty prefix defaults to "role:".
func NewRoleCache(client redis.UniversalClient, prefix string) *RoleCache {
	if prefix == "" {
		prefix = "role:"
	}
	return &RoleCache{client: client, prefix: prefix}
}

func (c *RoleCache) key(k string) string { return c.prefix + domainauth.NormalizeKey(k) }

func (c *RoleCache) Get(ctx context.Context, key string) (ports.RoleEntry, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.RoleEntry{}, false, nil
		}
		return ports.RoleEntry{}, false, fmt.Errorf("redis get role: %w", err)
	}
	var e ports.RoleEntry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is a miss; the next fetch overwrites it.
		return ports.RoleEntry{}, false, nil
	}
	if !e.Role.Assignable() {
		return ports.RoleEntry{}, false, nil
	}
	return e, true, nil
}

func (c *RoleCache) Set(ctx context.Context, key string, entry ports.RoleEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal role entry: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RoleCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
