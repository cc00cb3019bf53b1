package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/testutil"
)

func testSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID: id,
		Identity: domainauth.Identity{
			UserID:        "uid-123",
			Email:         "resident@example.com",
			DisplayName:   "Pat Resident",
			EmailVerified: true,
		},
		ProviderToken: "idp-token",
		ExpiresAt:     time.Now().Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	sess := testSession("sess-1", 30*time.Minute)
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.Identity, got.Identity)
	assert.Equal(t, "idp-token", got.ProviderToken)
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)

	ttl := client.TTL(ctx, "session:sess-1").Val()
	assert.Greater(t, ttl, 29*time.Minute)
}

func TestSessionStore_GetMissing(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Get(ctx, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("sess-del", time.Minute)))
	require.NoError(t, store.Delete(ctx, "sess-del"))
	require.NoError(t, store.Delete(ctx, ""), "empty id is a no-op")

	_, err := store.Get(ctx, "sess-del")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_ExpiredRecordIsCleanedUp(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("sess-old", time.Hour)))
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := store.Get(ctx, "sess-old")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, client.Exists(ctx, "session:sess-old").Val())
}

func TestSessionStore_RejectsInvalid(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "portal-test:")
	ctx := context.Background()

	err := store.Save(ctx, testSession("", time.Minute))
	require.Error(t, err)
	assert.Equal(t, "id", apperrors.GetField(err))

	err = store.Save(ctx, testSession("sess-x", -time.Minute))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, store.Save(ctx, testSession("sess-p", time.Minute)))
	assert.Equal(t, int64(1), client.Exists(ctx, "portal-test:sess-p").Val())
}
