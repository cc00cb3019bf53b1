// Package auth contains simple hand-written test doubles for identity, role and session ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*MockIdentityProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.RoleSource       = (*StaticRoleSource)(nil)
	_ ports.RoleCache        = (*MemoryRoleCache)(nil)
	_ ports.SessionBackend   = (*RecordingSessionBackend)(nil)
	_ ports.ProfileDirectory = (*MemoryProfileDirectory)(nil)
)

// MockIdentityProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockIdentityProvider struct {
	BeginFunc       func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc    func(ctx context.Context, in ports.ExchangeInput) (ports.SignInResult, error)
	CredentialsFunc func(ctx context.Context, in ports.CredentialsInput) (ports.SignInResult, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockIdentityProvider creates a MockIdentityProvider with sensible defaults.
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: defaultUser(),
	}
}

func defaultUser() domainauth.Identity {
	return domainauth.Identity{
		UserID:        "mock-user-1",
		Email:         "mock.user@example.com",
		DisplayName:   "Mock User",
		EmailVerified: true,
	}
}

func (m *MockIdentityProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.SignInResult, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	return m.result(), nil
}

func (m *MockIdentityProvider) SignInWithCredentials(
	ctx context.Context,
	in ports.CredentialsInput,
) (ports.SignInResult, error) {
	if m.CredentialsFunc != nil {
		return m.CredentialsFunc(ctx, in)
	}
	res := m.result()
	res.Identity.Email = in.Email
	res.Token = "mock-token-" + res.Identity.Key()
	return res, nil
}

func (m *MockIdentityProvider) result() ports.SignInResult {
	user := m.DefaultUser
	if user.Email == "" {
		user = defaultUser()
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return ports.SignInResult{Identity: user, Token: "mock-token-" + user.Key()}
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu        sync.Mutex
	sessions  map[string]domainauth.Session
	DeleteErr error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrNotFound is returned by doubles when an entity is not present.
var ErrNotFound = apperrors.NotFound("not found")

// StaticRoleSource answers role lookups from a map and counts calls.
// Gate, when non-nil, blocks every fetch until it is closed or the context ends.
type StaticRoleSource struct {
	mu    sync.Mutex
	Roles map[string]domainauth.Role
	Errs  map[string]error
	Gate  chan struct{}
	calls atomic.Int64
}

// NewStaticRoleSource builds a source from key/role pairs.
func NewStaticRoleSource(roles map[string]domainauth.Role) *StaticRoleSource {
	return &StaticRoleSource{Roles: roles, Errs: map[string]error{}}
}

func (s *StaticRoleSource) FetchRole(ctx context.Context, key string) (domainauth.Role, error) {
	s.calls.Add(1)
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs[key]; err != nil {
		return "", err
	}
	if r, ok := s.Roles[key]; ok {
		return r, nil
	}
	return "", ErrNotFound
}

// SetRole changes the role returned for key.
func (s *StaticRoleSource) SetRole(key string, r domainauth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Roles[key] = r
}

// SetErr makes lookups for key fail with err, or succeed again when err is nil.
func (s *StaticRoleSource) SetErr(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Errs, key)
		return
	}
	s.Errs[key] = err
}

// Calls returns how many fetches were issued.
func (s *StaticRoleSource) Calls() int64 { return s.calls.Load() }

// MemoryRoleCache is an in-memory shared role tier.
type MemoryRoleCache struct {
	mu      sync.Mutex
	entries map[string]ports.RoleEntry
}

// NewMemoryRoleCache creates an empty cache.
func NewMemoryRoleCache() *MemoryRoleCache {
	return &MemoryRoleCache{entries: map[string]ports.RoleEntry{}}
}

func (c *MemoryRoleCache) Get(_ context.Context, key string) (ports.RoleEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok, nil
}

func (c *MemoryRoleCache) Set(_ context.Context, key string, e ports.RoleEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	return nil
}

func (c *MemoryRoleCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// RecordingSessionBackend records establish/revoke calls.
type RecordingSessionBackend struct {
	mu          sync.Mutex
	Established []ports.SessionCredential
	Revokes     int
	EstablishFn func(ctx context.Context, cred ports.SessionCredential) error
	RevokeErr   error
}

func (b *RecordingSessionBackend) Establish(ctx context.Context, cred ports.SessionCredential) error {
	b.mu.Lock()
	b.Established = append(b.Established, cred)
	fn := b.EstablishFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, cred)
	}
	return nil
}

func (b *RecordingSessionBackend) Revoke(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Revokes++
	return b.RevokeErr
}

// EstablishCount returns how many exchanges were attempted.
func (b *RecordingSessionBackend) EstablishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Established)
}

// RevokeCount returns how many revokes were attempted.
func (b *RecordingSessionBackend) RevokeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Revokes
}

// MemoryProfileDirectory keeps profiles in memory.
type MemoryProfileDirectory struct {
	mu       sync.Mutex
	Profiles map[string]ports.Profile
}

// NewMemoryProfileDirectory creates an empty directory.
func NewMemoryProfileDirectory() *MemoryProfileDirectory {
	return &MemoryProfileDirectory{Profiles: map[string]ports.Profile{}}
}

func (d *MemoryProfileDirectory) ProfileExists(_ context.Context, email string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.Profiles[email]
	return ok, nil
}

func (d *MemoryProfileDirectory) CreateProfile(_ context.Context, p ports.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Profiles[p.Email] = p
	return nil
}

// Get returns a stored profile.
func (d *MemoryProfileDirectory) Get(email string) (ports.Profile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.Profiles[email]
	return p, ok
}
