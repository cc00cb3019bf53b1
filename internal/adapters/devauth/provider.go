// Package devauth provides a config-driven IdentityProvider for local development.
package devauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// User is a configured development account.
type User struct {
	Email    string
	Password string
	Name     string
}

// Config controls the dev auth provider behavior.
type Config struct {
	// Users are accepted by SignInWithCredentials. The first is the federated identity.
	Users []User
	// SigningKey signs the HS256 tokens handed to the backend at POST /jwt.
	SigningKey      []byte
	Issuer          string
	SessionDuration time.Duration // default 8h when zero
	Now             func() time.Time
}

// Provider implements ports.IdentityProvider for local development. Begin
// redirects straight back to the portal callback, and Exchange returns the first
// configured user.
type Provider struct {
	users    map[string]User
	primary  User
	key      []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Users) == 0 {
		return nil, errors.New("dev auth: at least one user is required")
	}
	if len(cfg.SigningKey) < 16 {
		return nil, errors.New("dev auth: signing key must be at least 16 bytes")
	}
	users := make(map[string]User, len(cfg.Users))
	for i, u := range cfg.Users {
		u.Email = domainauth.NormalizeKey(u.Email)
		if u.Email == "" {
			return nil, fmt.Errorf("dev auth: user %d has no email", i)
		}
		users[u.Email] = u
		cfg.Users[i] = u
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = 8 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "towertrack-devauth"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Provider{
		users:    users,
		primary:  cfg.Users[0],
		key:      append([]byte(nil), cfg.SigningKey...),
		issuer:   cfg.Issuer,
		duration: cfg.SessionDuration,
		now:      cfg.Now,
	}, nil
}

// ParseUsers reads "email:password[:Display Name]" entries separated by commas.
func ParseUsers(raw string) ([]User, error) {
	var out []User
	for entry := range strings.SplitSeq(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("dev auth: malformed user %q", entry)
		}
		u := User{Email: parts[0], Password: parts[1]}
		if len(parts) == 3 {
			u.Name = parts[2]
		}
		out = append(out, u)
	}
	return out, nil
}

// Begin returns a local callback URL and cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	return "/auth/callback?code=dev&state=" + state, state, nonce, nil
}

// Exchange returns the primary dev user. error=access_denied simulates a cancelled popup.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (ports.SignInResult, error) {
	if in.Error == "access_denied" {
		return ports.SignInResult{}, apperrors.PopupClosed("sign-in was cancelled")
	}
	return p.issue(p.primary)
}

func (p *Provider) SignInWithCredentials(_ context.Context, in ports.CredentialsInput) (ports.SignInResult, error) {
	u, ok := p.users[domainauth.NormalizeKey(in.Email)]
	if !ok || subtle.ConstantTimeCompare([]byte(u.Password), []byte(in.Password)) != 1 {
		return ports.SignInResult{}, apperrors.InvalidCredentials("invalid email or password")
	}
	return p.issue(u)
}

type claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (p *Provider) issue(u User) (ports.SignInResult, error) {
	now := p.now()
	exp := now.Add(p.duration)
	c := claims{
		Email:         u.Email,
		EmailVerified: true,
		Name:          u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   "dev-" + u.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.key)
	if err != nil {
		return ports.SignInResult{}, fmt.Errorf("sign dev token: %w", err)
	}
	name := u.Name
	if name == "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	return ports.SignInResult{
		Identity: domainauth.Identity{
			UserID:        c.Subject,
			Email:         u.Email,
			DisplayName:   name,
			EmailVerified: true,
			ExpiresAt:     exp,
		},
		Token: signed,
	}, nil
}

// VerifyToken parses a token minted by this provider.
func (p *Provider) VerifyToken(raw string) (domainauth.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return p.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "invalid dev token")
	}
	return domainauth.Identity{
		UserID:        c.Subject,
		Email:         c.Email,
		DisplayName:   c.Name,
		EmailVerified: c.EmailVerified,
		ExpiresAt:     c.ExpiresAt.Time,
	}, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
