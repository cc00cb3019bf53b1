// Package oidc provides the OIDC/OAuth2 identity provider adapter for resident sign-in.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

var _ ports.IdentityProvider = (*Provider)(nil)

// Provider implements ports.IdentityProvider using OIDC discovery, the
// authorization code flow for federated sign-in, and the resource-owner
// password grant for email/password sign-in.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	allowPwd   bool

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	// PasswordGrant enables SignInWithCredentials against the token endpoint.
	PasswordGrant bool
	HTTPClient    *http.Client // defaults to a 30s-timeout client
}

// NewProvider creates a provider and fetches the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch {
	case config.ClientID == "":
		return nil, errors.New("client ID is required")
	case config.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case config.RedirectURL == "":
		return nil, errors.New("redirect URL is required")
	case config.DiscoveryURL == "":
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(config.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		allowPwd:     config.PasswordGrant,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	// redirect_uri stays the configured one; in.RedirectURL is where the portal lands afterwards.
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.SignInResult, error) {
	if in.Error != "" {
		if in.Error == "access_denied" {
			return ports.SignInResult{}, apperrors.PopupClosed("sign-in was cancelled")
		}
		return ports.SignInResult{}, apperrors.Unauthenticated("identity provider error: " + in.Error)
	}
	switch {
	case in.Code == "":
		return ports.SignInResult{}, apperrors.ValidationField("code", "authorization code is required")
	case in.State == "":
		return ports.SignInResult{}, apperrors.ValidationField("state", "state is required")
	case in.Nonce == "":
		return ports.SignInResult{}, apperrors.ValidationField("nonce", "nonce is required")
	}

	token, err := p.config.Exchange(p.clientContext(ctx), in.Code)
	if err != nil {
		return ports.SignInResult{}, mapTokenError(err, "exchange code for token")
	}
	return p.identityFrom(ctx, token, in.Nonce)
}

// SignInWithCredentials authenticates through the password grant.
func (p *Provider) SignInWithCredentials(ctx context.Context, in ports.CredentialsInput) (ports.SignInResult, error) {
	if !p.allowPwd {
		return ports.SignInResult{}, apperrors.Validation("email/password sign-in is not enabled")
	}
	token, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), in.Email, in.Password)
	if err != nil {
		return ports.SignInResult{}, mapTokenError(err, "password grant")
	}
	return p.identityFrom(ctx, token, "")
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// mapTokenError turns a token endpoint rejection into InvalidCredentials and
// anything else into a network failure.
func mapTokenError(err error, op string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" ||
			(re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized) {
			return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "invalid email or password")
		}
		if re.ErrorCode == "access_denied" {
			return apperrors.Wrap(err, apperrors.ErrCodePopupClosed, "sign-in was cancelled")
		}
	}
	return apperrors.WrapTransport(err, op)
}

func (p *Provider) identityFrom(ctx context.Context, token *oauth2.Token, expectedNonce string) (ports.SignInResult, error) {
	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return ports.SignInResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "extract id_token")
	}
	idTok, err := p.verifier.Verify(gooidc.ClientContext(ctx, p.httpClient), rawID)
	if err != nil {
		return ports.SignInResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "verify id_token")
	}
	var claims idTokenClaims
	if err := idTok.Claims(&claims); err != nil {
		return ports.SignInResult{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "parse id_token claims")
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return ports.SignInResult{}, apperrors.Unauthenticated("invalid nonce")
	}

	f := mapIDTokenClaims(claims)
	if f.email == "" {
		if err := p.fillFromUserInfo(ctx, token, &f); err != nil {
			return ports.SignInResult{}, apperrors.WrapTransport(err, "get user info")
		}
	}
	if f.email == "" {
		return ports.SignInResult{}, apperrors.Unauthenticated("identity provider returned no email")
	}

	return ports.SignInResult{
		Identity: domainauth.Identity{
			UserID:        f.userID,
			Email:         domainauth.NormalizeKey(f.email),
			DisplayName:   f.name,
			AvatarURL:     f.picture,
			EmailVerified: f.verified,
			ExpiresAt:     idTok.Expiry,
		},
		Token: rawID,
	}, nil
}

// UserInfo is the subset of the userinfo response the portal reads.
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p *Provider) fillFromUserInfo(ctx context.Context, token *oauth2.Token, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(gooidc.ClientContext(ctx, p.httpClient), oauth2.StaticTokenSource(token))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var info UserInfo
	if err := ui.Claims(&info); err != nil {
		return fmt.Errorf("decode user info: %w", err)
	}
	fillFromUserInfoClaims(f, info)
	return nil
}

type idFields struct {
	userID   string
	email    string
	name     string
	picture  string
	verified bool
}

// idTokenClaims covers the standard claims plus the Firebase-style user_id.
type idTokenClaims struct {
	Sub           string `json:"sub"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Nonce         string `json:"nonce"`
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		userID:   firstNonEmpty(c.UserID, c.Sub),
		email:    c.Email,
		name:     c.Name,
		picture:  c.Picture,
		verified: c.EmailVerified,
	}
}

// fillFromUserInfoClaims fills only the fields the ID token left empty.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.userID == "" {
		f.userID = ui.Subject
	}
	if f.email == "" {
		f.email = ui.Email
		f.verified = ui.EmailVerified
	}
	if f.name == "" {
		f.name = ui.Name
	}
	if f.picture == "" {
		f.picture = ui.Picture
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a URL-safe random string of exactly length characters.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
