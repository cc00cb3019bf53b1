package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

func TestMockIdentityProvider_Begin_Defaults(t *testing.T) {
	provider := NewMockIdentityProvider()
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/auth/callback"}
	authURL, state, nonce, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	// Second call should increment counters
	_, state2, nonce2, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockIdentityProvider_Begin_CustomValues(t *testing.T) {
	provider := &MockIdentityProvider{
		AuthURL:     "https://custom-idp/login",
		StatePrefix: "custom-state",
		NoncePrefix: "custom-nonce",
	}
	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)
	assert.Equal(t, "https://custom-idp/login", authURL)
	assert.Equal(t, "custom-state-1", state)
	assert.Equal(t, "custom-nonce-1", nonce)
}

func TestMockIdentityProvider_Exchange_Defaults(t *testing.T) {
	provider := NewMockIdentityProvider()

	res, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "state-1"})
	require.NoError(t, err)
	assert.Equal(t, "mock.user@example.com", res.Identity.Email)
	assert.Equal(t, "Mock User", res.Identity.DisplayName)
	assert.Equal(t, "mock-token-mock.user@example.com", res.Token)
	assert.True(t, res.Identity.ExpiresAt.After(time.Now()))
}

func TestMockIdentityProvider_SignInWithCredentials_UsesEmail(t *testing.T) {
	provider := NewMockIdentityProvider()

	res, err := provider.SignInWithCredentials(context.Background(), ports.CredentialsInput{
		Email:    "resident@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "resident@example.com", res.Identity.Email)
	assert.Equal(t, "mock-token-resident@example.com", res.Token)
}

func TestMockIdentityProvider_CustomFuncs(t *testing.T) {
	provider := &MockIdentityProvider{
		ExchangeFunc: func(context.Context, ports.ExchangeInput) (ports.SignInResult, error) {
			return ports.SignInResult{}, apperrors.PopupClosed("closed")
		},
		CredentialsFunc: func(context.Context, ports.CredentialsInput) (ports.SignInResult, error) {
			return ports.SignInResult{}, apperrors.InvalidCredentials("bad password")
		},
	}
	ctx := context.Background()

	_, err := provider.Exchange(ctx, ports.ExchangeInput{})
	assert.True(t, apperrors.IsPopupClosed(err))
	_, err = provider.SignInWithCredentials(ctx, ports.CredentialsInput{})
	assert.True(t, apperrors.IsInvalidCredentials(err))
}

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	sess := domainauth.Session{
		ID:        "portal-1",
		Identity:  domainauth.Identity{Email: "user@example.com"},
		ExpiresAt: time.Now().Add(30 * time.Minute),
	}

	require.NoError(t, store.Save(ctx, sess))
	got, err := store.Get(ctx, "portal-1")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.Identity.Email)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "portal-1"))
	_, err = store.Get(ctx, "portal-1")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, store.Delete(ctx, ""), "deleting an empty id is a no-op")
}

func TestMemorySessionStore_RejectsEmptyID(t *testing.T) {
	store := NewMemorySessionStore()
	err := store.Save(context.Background(), domainauth.Session{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session ID cannot be empty")

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticRoleSource(t *testing.T) {
	src := NewStaticRoleSource(map[string]domainauth.Role{"a@x.com": domainauth.RoleUser})
	src.Errs["b@x.com"] = errors.New("boom")
	ctx := context.Background()

	r, err := src.FetchRole(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, r)

	_, err = src.FetchRole(ctx, "b@x.com")
	require.Error(t, err)
	_, err = src.FetchRole(ctx, "c@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	src.SetRole("a@x.com", domainauth.RoleAdmin)
	r, _ = src.FetchRole(ctx, "a@x.com")
	assert.Equal(t, domainauth.RoleAdmin, r)
	assert.Equal(t, int64(4), src.Calls())
}

func TestStaticRoleSource_GateHonorsContext(t *testing.T) {
	src := NewStaticRoleSource(map[string]domainauth.Role{"a@x.com": domainauth.RoleUser})
	src.Gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := src.FetchRole(ctx, "a@x.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordingSessionBackend(t *testing.T) {
	b := &RecordingSessionBackend{RevokeErr: errors.New("down")}
	ctx := context.Background()

	require.NoError(t, b.Establish(ctx, ports.SessionCredential{Token: "t"}))
	require.Error(t, b.Revoke(ctx))
	assert.Equal(t, 1, b.EstablishCount())
	assert.Equal(t, 1, b.RevokeCount())
}

func TestMemoryProfileDirectory(t *testing.T) {
	d := NewMemoryProfileDirectory()
	ctx := context.Background()

	ok, err := d.ProfileExists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.CreateProfile(ctx, ports.Profile{Email: "a@x.com", Role: domainauth.RoleUser}))
	ok, _ = d.ProfileExists(ctx, "a@x.com")
	assert.True(t, ok)
	p, found := d.Get("a@x.com")
	require.True(t, found)
	assert.Equal(t, domainauth.RoleUser, p.Role)
}
