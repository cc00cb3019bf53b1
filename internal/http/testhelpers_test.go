package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	mocks "github.com/target/towertrack-portal/internal/mocks/auth"
	"github.com/target/towertrack-portal/internal/observability/metrics"
	"github.com/target/towertrack-portal/internal/service"
	"github.com/target/towertrack-portal/internal/testutil"
)

type testEnv struct {
	backend  *testutil.FakeBackend
	provider *mocks.MockIdentityProvider
	reg      *service.Registry
	srv      *httptest.Server
	client   *http.Client
}

type envOption func(*service.RegistryOptions, *RouterServices)

func withSettleWait(d time.Duration) envOption {
	return func(_ *service.RegistryOptions, rs *RouterServices) { rs.SettleWait = d }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		backend:  testutil.NewFakeBackend(t),
		provider: mocks.NewMockIdentityProvider(),
	}

	promReg := prometheus.NewRegistry()
	m, err := metrics.New(metrics.Options{Registerer: promReg})
	require.NoError(t, err)

	regOpts := service.RegistryOptions{
		Provider:       env.provider,
		Sessions:       mocks.NewMemorySessionStore(),
		Backend:        service.BackendOptions{BaseURL: env.backend.URL(), Timeout: 2 * time.Second},
		RetryOnceOn401: true,
		BridgeTimeout:  2 * time.Second,
		GraceWindow:    time.Second,
		Metrics:        m,
	}
	rs := RouterServices{
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		PaymentKey:     "pk_test_123",
		SettleWait:     2 * time.Second,
		TemplateFS:     os.DirFS(TemplatePathFromTest),
	}
	for _, o := range opts {
		o(&regOpts, &rs)
	}

	env.reg, err = service.NewRegistry(regOpts)
	require.NoError(t, err)
	t.Cleanup(env.reg.Close)
	rs.Registry = env.reg

	h, err := NewRouter(rs)
	require.NoError(t, err)
	env.srv = httptest.NewServer(h)
	t.Cleanup(env.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

// do issues a request as a browser (html) or API client (json).
func (e *testEnv) do(t *testing.T, method, path, accept string, body io.Reader, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Accept", accept)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, "text/html", nil)
}

func (e *testEnv) getJSON(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodGet, path, "application/json", nil)
}

// csrf returns the token cookie, fetching a page first if the jar has none.
func (e *testEnv) csrf(t *testing.T) string {
	t.Helper()
	if tok := e.cookie(t, DefaultCSRFCookieName); tok != "" {
		return tok
	}
	e.get(t, "/login")
	tok := e.cookie(t, DefaultCSRFCookieName)
	require.NotEmpty(t, tok)
	return tok
}

func (e *testEnv) cookie(t *testing.T, name string) string {
	t.Helper()
	u, err := url.Parse(e.srv.URL)
	require.NoError(t, err)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	form.Set("csrf_token", e.csrf(t))
	return e.do(t, http.MethodPost, path, "text/html", strings.NewReader(form.Encode()),
		"Content-Type", "application/x-www-form-urlencoded")
}

// signIn signs the browser in with role and waits for the role to settle.
func (e *testEnv) signIn(t *testing.T, email, role string) {
	t.Helper()
	e.backend.SetRole(email, role)
	resp := e.postForm(t, "/login", url.Values{"email": {email}, "password": {"secret123"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Eventually(t, func() bool {
		var st AuthStatus
		resp := e.getJSON(t, "/auth/status")
		if resp.StatusCode != http.StatusOK || decode(t, resp, &st) != nil {
			return false
		}
		return string(st.Role.Role) == role
	}, 2*time.Second, 10*time.Millisecond)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
