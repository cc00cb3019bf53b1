package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/testutil"
)

func TestRoleCache_RoundTripNormalizesKey(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewRoleCache(client, "")
	ctx := context.Background()

	entry := ports.RoleEntry{Role: domainauth.RoleMember, FetchedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, cache.Set(ctx, " Resident@Example.com ", entry, time.Minute))

	got, found, err := cache.Get(ctx, "resident@example.com")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domainauth.RoleMember, got.Role)
	assert.True(t, entry.FetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, int64(1), client.Exists(ctx, "role:resident@example.com").Val())
}

func TestRoleCache_MissAndDelete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewRoleCache(client, "test-role:")
	ctx := context.Background()

	_, found, err := cache.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "a@x.com", ports.RoleEntry{Role: domainauth.RoleAdmin}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "a@x.com"))
	_, found, err = cache.Get(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRoleCache_IgnoresCorruptAndUnassignable(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	cache := NewRoleCache(client, "")
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "role:bad@x.com", "{not json", time.Minute).Err())
	require.NoError(t, client.Set(ctx, "role:anon@x.com", `{"role":"anonymous"}`, time.Minute).Err())

	for _, k := range []string{"bad@x.com", "anon@x.com"} {
		_, found, err := cache.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, found, k)
	}

	require.NoError(t, cache.Set(ctx, "zero@x.com", ports.RoleEntry{Role: domainauth.RoleUser}, 0))
	assert.Zero(t, client.Exists(ctx, "role:zero@x.com").Val(), "non-positive ttl is not stored")
}
