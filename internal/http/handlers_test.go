package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	mocks "github.com/target/towertrack-portal/internal/mocks/auth"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/service"
)

func decode(t *testing.T, resp *http.Response, v any) error {
	t.Helper()
	return json.NewDecoder(resp.Body).Decode(v)
}

func TestRouter_AnonymousDashboardRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/dashboard/profile?tab=1")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard%2Fprofile%3Ftab%3D1", resp.Header.Get("Location"))

	api := env.getJSON(t, "/dashboard/profile")
	assert.Equal(t, http.StatusUnauthorized, api.StatusCode)
	var body map[string]string
	require.NoError(t, decode(t, api, &body))
	assert.Equal(t, "UNAUTHENTICATED", body["error"])
}

func TestRouter_HTMXDenialUsesHXRedirect(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/dashboard/announcements", "text/html", nil, "Hx-Request", "true")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard%2Fannouncements", resp.Header.Get("Hx-Redirect"))
}

func TestRouter_PortalCookieIssuedOnce(t *testing.T) {
	env := newTestEnv(t)

	first := env.get(t, "/")
	require.Equal(t, http.StatusOK, first.StatusCode)
	var issued *http.Cookie
	for _, c := range first.Cookies() {
		if c.Name == DefaultPortalCookieName {
			issued = c
		}
	}
	require.NotNil(t, issued)
	assert.True(t, issued.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, issued.SameSite)

	second := env.get(t, "/")
	for _, c := range second.Cookies() {
		assert.NotEqual(t, DefaultPortalCookieName, c.Name, "live portal keeps its cookie")
	}
	assert.Equal(t, 1, env.reg.Len())
}

func TestLogin_RedirectsToRememberedPath(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetRole("member@example.com", "member")
	env.backend.AddPayment("member@example.com", 1250)

	resp := env.postForm(t, "/login", url.Values{
		"email":        {"Member@Example.com"},
		"password":     {"secret123"},
		"redirect_uri": {"/dashboard/payment-history"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard/payment-history", resp.Header.Get("Location"))

	page := env.get(t, "/dashboard/payment-history")
	require.Equal(t, http.StatusOK, page.StatusCode)
	body := readBody(t, page)
	assert.Contains(t, body, "Payment History")
	assert.Contains(t, body, "$1,250.00")
	assert.Contains(t, body, `href="/dashboard/make-payment"`, "member menu rendered")
	assert.NotContains(t, body, `href="/dashboard/admin-profile"`)
}

func TestLogin_RejectsOffsiteRedirect(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/login", url.Values{
		"email":        {"a@example.com"},
		"password":     {"secret123"},
		"redirect_uri": {"//evil.example.com/x"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestLogin_InvalidCredentialsRerendersForm(t *testing.T) {
	env := newTestEnv(t)
	env.provider.CredentialsFunc = func(_ context.Context, _ ports.CredentialsInput) (ports.SignInResult, error) {
		return ports.SignInResult{}, apperrors.InvalidCredentials("bad password")
	}

	resp := env.postForm(t, "/login", url.Values{"email": {"a@example.com"}, "password": {"nope-nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "The email or password is incorrect.")
	assert.Contains(t, body, `value="a@example.com"`)
}

func TestLogin_JSONClient(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/login", "application/json",
		strings.NewReader(`{"email":"api@example.com","password":"secret123"}`),
		"Content-Type", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Identity domainauth.Identity `json:"identity"`
	}
	require.NoError(t, decode(t, resp, &body))
	assert.Equal(t, "api@example.com", body.Identity.Email)

	bad := env.do(t, http.MethodPost, "/login", "application/json",
		strings.NewReader(`{"email":"not-an-email","password":"secret123"}`),
		"Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	var errBody map[string]string
	require.NoError(t, decode(t, bad, &errBody))
	assert.Equal(t, "validation", errBody["error"])
	assert.Equal(t, "email", errBody["field"])
}

func TestCSRF_RejectsFormWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	env.csrf(t)

	resp := env.do(t, http.MethodPost, "/login", "text/html",
		strings.NewReader("email=a%40example.com&password=secret123"),
		"Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGuard_MemberDeniedAdminPage(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.get(t, "/dashboard/admin-profile")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/unauthorized", resp.Header.Get("Location"))

	api := env.getJSON(t, "/dashboard/admin-profile")
	assert.Equal(t, http.StatusForbidden, api.StatusCode)

	unknown := env.get(t, "/dashboard/no-such-page")
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}

func TestDashboard_IndexRedirectsToFirstEntry(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "boss@example.com", "admin")

	resp := env.get(t, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard/admin-profile", resp.Header.Get("Location"))

	page := env.get(t, "/dashboard/admin-profile")
	require.Equal(t, http.StatusOK, page.StatusCode)
	body := readBody(t, page)
	assert.Contains(t, body, "Pending agreements")
	assert.Contains(t, body, "50%", "one of two apartments available")
}

func TestDashboard_PartialForHTMX(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.do(t, http.MethodGet, "/dashboard/make-payment", "text/html", nil, "Hx-Request", "true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.NotContains(t, body, "<!doctype html>")
	assert.Contains(t, body, `hx-swap-oob="outerHTML"`)
	assert.Contains(t, body, `data-publishable-key="pk_test_123"`)
	assert.Contains(t, resp.Header.Get("Hx-Trigger"), "nav:activate")
}

func TestDashboard_BackendFailureShowsBanner(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")
	env.backend.FailPath("/announcements", http.StatusBadGateway)

	resp := env.get(t, "/dashboard/announcements")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Some information could not be loaded")
}

func TestPending_WhileRoleLoads(t *testing.T) {
	src := mocks.NewStaticRoleSource(map[string]domainauth.Role{"slow@example.com": domainauth.RoleMember})
	src.Gate = make(chan struct{})
	env := newTestEnv(t, withSettleWait(30*time.Millisecond), func(o *service.RegistryOptions, _ *RouterServices) {
		o.RoleSource = src
	})
	t.Cleanup(func() { close(src.Gate) })

	resp := env.postForm(t, "/login", url.Values{"email": {"slow@example.com"}, "password": {"secret123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	api := env.getJSON(t, "/dashboard/profile")
	assert.Equal(t, http.StatusAccepted, api.StatusCode)
	var body map[string]string
	require.NoError(t, decode(t, api, &body))
	assert.Equal(t, "pending", body["decision"])

	page := env.get(t, "/dashboard/profile")
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, readBody(t, page), `http-equiv="refresh"`)
}

func TestLogout_RevokesAccessImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.postForm(t, "/logout", url.Values{})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth/signed-out", resp.Header.Get("Location"))
	assert.Zero(t, env.backend.ActiveSessions())

	after := env.get(t, "/dashboard/profile")
	assert.Equal(t, http.StatusSeeOther, after.StatusCode)
	assert.True(t, strings.HasPrefix(after.Header.Get("Location"), "/login?"))
}

func TestLogout_RemoteFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")
	env.backend.FailPath("/logout", http.StatusBadGateway)

	resp := env.do(t, http.MethodPost, "/logout", "application/json", strings.NewReader(`{}`),
		"Content-Type", "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, decode(t, resp, &body))
	assert.Equal(t, true, body["signed_out"])
	assert.NotEmpty(t, body["warning"])

	var st AuthStatus
	require.NoError(t, decode(t, env.getJSON(t, "/auth/status"), &st))
	assert.Equal(t, domainauth.StatusAnonymous, st.Identity.Status)
	assert.Empty(t, st.Navigation)
}

func TestStatus_ReportsRoleAndNavigation(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.getJSON(t, "/auth/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	var st AuthStatus
	require.NoError(t, decode(t, resp, &st))
	assert.Equal(t, "member@example.com", st.Identity.Key())
	assert.Equal(t, domainauth.RoleStatusResolved, st.Role.Status)
	assert.Len(t, st.Navigation, 4)
}

func TestFederated_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	start := env.get(t, "/auth/federated?redirect_uri=%2Fdashboard%2Fannouncements")
	require.Equal(t, http.StatusFound, start.StatusCode)
	assert.Equal(t, "https://mock-idp/auth", start.Header.Get("Location"))

	cb := env.get(t, "/auth/callback?code=abc&state=state-1")
	require.Equal(t, http.StatusSeeOther, cb.StatusCode)
	assert.Equal(t, "/dashboard/announcements", cb.Header.Get("Location"))

	replay := env.get(t, "/auth/callback?code=abc&state=state-1")
	assert.Equal(t, http.StatusUnauthorized, replay.StatusCode, "a flow completes once")
}

func TestFederated_MissingCode(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/auth/callback?state=x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAcceptAgreement_PromotesResident(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetRole("tenant@example.com", "user")
	id := env.backend.AddAgreement("tenant@example.com", "Tenant")
	env.signIn(t, "boss@example.com", "admin")

	list := env.get(t, "/dashboard/agreement-requests")
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Contains(t, readBody(t, list), "tenant@example.com")

	resp := env.postForm(t, "/dashboard/agreement-requests/"+id+"/accept", url.Values{"email": {"tenant@example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Agreement accepted")
	assert.Equal(t, "member", env.backend.Role("tenant@example.com"))
}

func TestAcceptAgreement_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.postForm(t, "/dashboard/agreement-requests/agr-1/accept", url.Values{"email": {"x@example.com"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/unauthorized", resp.Header.Get("Location"))
}

func TestMakeAnnouncement(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "boss@example.com", "admin")

	bad := env.postForm(t, "/dashboard/make-announcement", url.Values{"title": {"  "}, "description": {"Water off"}})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Contains(t, readBody(t, bad), "title is required")

	ok := env.postForm(t, "/dashboard/make-announcement", url.Values{"title": {"Maintenance"}, "description": {"Water off at noon"}})
	require.Equal(t, http.StatusSeeOther, ok.StatusCode)
	assert.Equal(t, "/dashboard/announcements", ok.Header.Get("Location"))

	posted := env.backend.Announcements()
	require.Len(t, posted, 1)
	assert.Equal(t, "Maintenance", posted[0]["title"])
	assert.Equal(t, "boss@example.com", posted[0]["postedBy"])
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/login")

	health := env.getJSON(t, "/healthz")
	require.Equal(t, http.StatusOK, health.StatusCode)
	var hb map[string]any
	require.NoError(t, decode(t, health, &hb))
	assert.Equal(t, "ok", hb["status"])
	assert.InDelta(t, 1, hb["portals"], 0)
	cache, ok := hb["role_cache"].(map[string]any)
	require.True(t, ok, "role cache stats are reported")
	assert.Positive(t, cache["capacity"])
	assert.Contains(t, cache, "evictions")

	m := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, m.StatusCode)
	body := readBody(t, m)
	assert.Contains(t, body, `portal_http_requests_total{method="GET",route="GET /login",status="200"} 1`)
}
