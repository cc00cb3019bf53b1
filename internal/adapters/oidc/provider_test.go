package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

// fakeIdP serves discovery, JWKS, a token endpoint and userinfo. Authorization
// codes are the nonce to echo back, which keeps the test stateless.
type fakeIdP struct {
	srv      *httptest.Server
	key      *rsa.PrivateKey
	claims   jwt.MapClaims
	password string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f := &fakeIdP{
		key:      key,
		password: "hunter22",
		claims: jwt.MapClaims{
			"sub":            "uid-1",
			"email":          "Resident@Example.com",
			"email_verified": true,
			"name":           "Pat Resident",
			"picture":        "https://img.example/p.png",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                f.srv.URL,
			"authorization_endpoint":                f.srv.URL + "/auth",
			"token_endpoint":                        f.srv.URL + "/token",
			"userinfo_endpoint":                     f.srv.URL + "/userinfo",
			"jwks_uri":                              f.srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "k1", "alg": "RS256", "use": "sig",
			"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "uid-1", "email": "info@example.com", "email_verified": true})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	nonce := ""
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		nonce = r.Form.Get("code")
	case "password":
		if r.Form.Get("password") != f.password {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"bad password"}`))
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	claims := jwt.MapClaims{
		"iss": f.srv.URL,
		"aud": "portal",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range f.claims {
		claims[k] = v
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(f.key)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600, "id_token": signed,
	})
}

func newTestProvider(t *testing.T, f *fakeIdP, password bool) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:      "portal",
		ClientSecret:  "secret",
		RedirectURL:   "http://localhost:8080/auth/callback",
		Scope:         "profile email",
		DiscoveryURL:  f.srv.URL + "/.well-known/openid-configuration",
		PasswordGrant: password,
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{"missing client ID", ProviderConfig{ClientSecret: "s", RedirectURL: "r", DiscoveryURL: "d"}, "client ID is required"},
		{"missing client secret", ProviderConfig{ClientID: "c", RedirectURL: "r", DiscoveryURL: "d"}, "client secret is required"},
		{"missing redirect URL", ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "d"}, "redirect URL is required"},
		{"missing discovery URL", ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "r"}, "discovery URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_BeginAddsOpenIDAndNonce(t *testing.T) {
	p := newTestProvider(t, newFakeIdP(t), false)

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/dashboard"})
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "portal", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "openid profile email", q.Get("scope"))

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
}

func TestProvider_ExchangeVerifiesIDToken(t *testing.T) {
	f := newFakeIdP(t)
	p := newTestProvider(t, f, false)

	res, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "n-123", State: "s", Nonce: "n-123"})
	require.NoError(t, err)
	assert.Equal(t, "resident@example.com", res.Identity.Email, "email is normalized")
	assert.Equal(t, "uid-1", res.Identity.UserID)
	assert.Equal(t, "Pat Resident", res.Identity.DisplayName)
	assert.Equal(t, "https://img.example/p.png", res.Identity.AvatarURL)
	assert.True(t, res.Identity.EmailVerified)
	assert.NotEmpty(t, res.Token, "raw id token is forwarded to the backend")
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.Identity.ExpiresAt, time.Minute)
}

func TestProvider_ExchangeRejectsNonceMismatch(t *testing.T) {
	p := newTestProvider(t, newFakeIdP(t), false)
	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "n-123", State: "s", Nonce: "other"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestProvider_ExchangeFallsBackToUserInfo(t *testing.T) {
	f := newFakeIdP(t)
	delete(f.claims, "email")
	p := newTestProvider(t, f, false)

	res, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "n", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "info@example.com", res.Identity.Email)
}

func TestProvider_ExchangeErrors(t *testing.T) {
	p := newTestProvider(t, newFakeIdP(t), false)
	ctx := context.Background()

	_, err := p.Exchange(ctx, ports.ExchangeInput{Error: "access_denied"})
	assert.True(t, apperrors.IsPopupClosed(err), "closing the consent screen is not a failure")

	_, err = p.Exchange(ctx, ports.ExchangeInput{Error: "server_error"})
	assert.True(t, apperrors.IsUnauthenticated(err))

	for _, in := range []ports.ExchangeInput{
		{State: "s", Nonce: "n"},
		{Code: "c", Nonce: "n"},
		{Code: "c", State: "s"},
	} {
		_, err := p.Exchange(ctx, in)
		assert.True(t, apperrors.IsValidation(err), "%+v", in)
	}
}

func TestProvider_SignInWithCredentials(t *testing.T) {
	f := newFakeIdP(t)
	p := newTestProvider(t, f, true)
	ctx := context.Background()

	res, err := p.SignInWithCredentials(ctx, ports.CredentialsInput{Email: "resident@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "resident@example.com", res.Identity.Email)

	_, err = p.SignInWithCredentials(ctx, ports.CredentialsInput{Email: "resident@example.com", Password: "wrong-pass"})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidCredentials(err))

	disabled := newTestProvider(t, f, false)
	_, err = disabled.SignInWithCredentials(ctx, ports.CredentialsInput{Email: "a@x.com", Password: "hunter22"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestProvider_NetworkFailure(t *testing.T) {
	f := newFakeIdP(t)
	p := newTestProvider(t, f, true)
	f.srv.Close()

	_, err := p.SignInWithCredentials(context.Background(), ports.CredentialsInput{Email: "a@x.com", Password: "hunter22"})
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
}

func TestGenerateRandomString(t *testing.T) {
	a, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)
	b, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, b, 32)
	assert.NotEqual(t, a, b[:16])
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	raw, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", raw)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{}))
	require.ErrorContains(t, err, "missing id_token")
	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func Test_fillFromUserInfoClaims(t *testing.T) {
	f := mapIDTokenClaims(idTokenClaims{Sub: "sub", UserID: "fb-uid", Name: "Kept"})
	fillFromUserInfoClaims(&f, UserInfo{Subject: "x", Email: "e@x.com", EmailVerified: true, Name: "Other", Picture: "p"})
	assert.Equal(t, "fb-uid", f.userID)
	assert.Equal(t, "e@x.com", f.email)
	assert.True(t, f.verified)
	assert.Equal(t, "Kept", f.name)
	assert.Equal(t, "p", f.picture)
}
