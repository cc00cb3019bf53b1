package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/resident"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
	"github.com/target/towertrack-portal/internal/testutil"
)

type graceStub struct {
	in     atomic.Bool
	awaits atomic.Int64
}

func (g *graceStub) InGracePeriod() bool { return g.in.Load() }

func (g *graceStub) Await(context.Context) error {
	g.awaits.Add(1)
	return nil
}

func newTestAPI(t *testing.T, baseURL string, mode CredentialMode, policy AuthPolicy, grace Grace) (*Client, *API) {
	t.Helper()
	c, err := NewClient(Options{BaseURL: baseURL, Credential: mode, Timeout: 2 * time.Second})
	require.NoError(t, err)
	api, err := c.API(policy, grace, RoleOptions{})
	require.NoError(t, err)
	return c, api
}

func signIn(t *testing.T, c *Client, email string) {
	t.Helper()
	require.NoError(t, c.Establish(context.Background(), ports.SessionCredential{
		Token: "mock-token-" + email, Email: email,
	}))
	require.True(t, c.HasSession())
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestEstablish_CredentialModes(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	c, _ := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "a@x.com")
	assert.Equal(t, map[string]string{"token": "mock-token-a@x.com"}, fb.LastJWTBody())

	c2, _ := newTestAPI(t, fb.URL(), CredentialEmail, AuthPolicy{}, nil)
	signIn(t, c2, "b@x.com")
	assert.Equal(t, map[string]string{"email": "b@x.com"}, fb.LastJWTBody())

	err := c2.Establish(context.Background(), ports.SessionCredential{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestFetchRole(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetRole("a@x.com", "member")
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	ctx := context.Background()

	_, err := api.FetchRole(ctx, "a@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err), "no cookie before the exchange")

	signIn(t, c, "a@x.com")
	role, err := api.FetchRole(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleMember, role)
}

func TestFetchRole_MissingField(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetRole("a@x.com", "")
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "a@x.com")

	_, err := api.FetchRole(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsRoleFetchFailed(err), "missing role is not silently a user")

	lenient, err := c.API(AuthPolicy{}, nil, RoleOptions{MissingIsUser: true})
	require.NoError(t, err)
	role, err := lenient.FetchRole(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)
}

func TestFetchRole_ExpressionAndUnknownRole(t *testing.T) {
	var body atomic.Value
	body.Store(`{"data":{"role":"admin"}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/role/a+b@x.com", r.URL.Path)
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL + "/api/"})
	require.NoError(t, err)
	api, err := c.API(AuthPolicy{}, nil, RoleOptions{Expression: "data.role"})
	require.NoError(t, err)

	role, err := api.FetchRole(context.Background(), "a+b@x.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)

	body.Store(`{"data":{"role":"superuser"}}`)
	_, err = api.FetchRole(context.Background(), "a+b@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsRoleFetchFailed(err))

	_, err = c.API(AuthPolicy{}, nil, RoleOptions{Expression: "data.["})
	require.Error(t, err)
}

func TestAuthRetry_RetriesOnceWithinGrace(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetRole("a@x.com", "user")
	grace := &graceStub{}
	grace.in.Store(true)
	var failures atomic.Int64
	policy := AuthPolicy{RetryOnceOn401: true, OnAuthFailure: func(context.Context, *http.Request) { failures.Add(1) }}
	c, api := newTestAPI(t, fb.URL(), CredentialToken, policy, grace)
	signIn(t, c, "a@x.com")

	fb.Reject401(1)
	role, err := api.FetchRole(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)
	assert.Equal(t, int64(2), fb.Count("GET /users/role/a@x.com"))
	assert.Equal(t, int64(1), grace.awaits.Load())
	assert.Zero(t, failures.Load())

	// Two rejections: exactly one retry, then the failure hook.
	fb.Reject401(2)
	_, err = api.FetchRole(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
	assert.Equal(t, int64(4), fb.Count("GET /users/role/a@x.com"))
	assert.Equal(t, int64(1), failures.Load())
}

func TestAuthRetry_NoRetryOutsideGrace(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetRole("a@x.com", "user")
	grace := &graceStub{}
	var failures atomic.Int64
	policy := AuthPolicy{RetryOnceOn401: true, OnAuthFailure: func(context.Context, *http.Request) { failures.Add(1) }}
	c, api := newTestAPI(t, fb.URL(), CredentialToken, policy, grace)
	signIn(t, c, "a@x.com")

	fb.Reject401(1)
	_, err := api.FetchRole(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.Equal(t, int64(1), fb.Count("GET /users/role/a@x.com"))
	assert.Zero(t, grace.awaits.Load())
	assert.Equal(t, int64(1), failures.Load())
}

func TestAuthRetry_ReplaysBody(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	grace := &graceStub{}
	grace.in.Store(true)
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{RetryOnceOn401: true}, grace)
	signIn(t, c, "admin@x.com")

	fb.Reject401(1)
	require.NoError(t, api.PostAnnouncement(context.Background(), resident.Announcement{
		Title: "Water", Description: "Off Tuesday", PostedBy: "admin@x.com",
	}))
	posted := fb.Announcements()
	require.Len(t, posted, 1)
	assert.Equal(t, "Water", posted[0]["title"])
	assert.Equal(t, int64(2), fb.Count("POST /announcements"))
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	cb := NewBreaker(BreakerSettings{MinRequests: 3, FailureRatio: 0.5, Timeout: time.Minute})
	c, err := NewClient(Options{BaseURL: srv.URL, Breaker: cb})
	require.NoError(t, err)
	api, err := c.API(AuthPolicy{}, nil, RoleOptions{})
	require.NoError(t, err)

	for range 3 {
		_, err := api.FetchRole(context.Background(), "a@x.com")
		require.Error(t, err)
		assert.True(t, apperrors.IsNetwork(err))
	}
	_, err = api.FetchRole(context.Background(), "a@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
	assert.Equal(t, int64(3), hits.Load(), "open circuit short-circuits")
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	cb := NewBreaker(BreakerSettings{MinRequests: 2, FailureRatio: 0.5})
	c, err := NewClient(Options{BaseURL: fb.URL(), Breaker: cb})
	require.NoError(t, err)
	api, err := c.API(AuthPolicy{}, nil, RoleOptions{})
	require.NoError(t, err)

	for range 5 {
		_, err := api.FetchRole(context.Background(), "a@x.com")
		assert.True(t, apperrors.IsUnauthenticated(err))
	}
	assert.Equal(t, int64(5), fb.Count("GET /users/role/a@x.com"))
}

func TestRevoke_ClearsJar(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c, _ := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "a@x.com")
	require.Equal(t, 1, fb.ActiveSessions())

	require.NoError(t, c.Revoke(context.Background()))
	assert.False(t, c.HasSession())
	assert.Zero(t, fb.ActiveSessions())

	fb.FailPath("/logout", http.StatusServiceUnavailable)
	signIn(t, c, "a@x.com")
	err := c.Revoke(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
	assert.False(t, c.HasSession(), "local cookie dropped even when logout fails")
}

func TestProfiles(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "new@x.com")
	ctx := context.Background()

	ok, err := api.ProfileExists(ctx, "new@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, api.CreateProfile(ctx, ports.Profile{Name: "New", Email: "new@x.com", Role: domainauth.RoleUser}))
	ok, err = api.ProfileExists(ctx, "new@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user", fb.Role("new@x.com"))
}

func TestAcceptAgreement(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.AddUser("res@x.com", "Res", "user")
	id := fb.AddAgreement("res@x.com", "Res")
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "admin@x.com")
	ctx := context.Background()

	pending, err := api.PendingAgreements(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, api.AcceptAgreement(ctx, id, "res@x.com"))
	assert.Equal(t, "member", fb.Role("res@x.com"))

	pending, err = api.PendingAgreements(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = api.AcceptAgreement(ctx, "missing", "res@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResidentListings(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.AddUser("res@x.com", "Res", "member")
	fb.AddPayment("res@x.com", 1200)
	fb.AddAgreement("res@x.com", "Res")
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "res@x.com")
	ctx := context.Background()

	payments, err := api.PaymentsFor(ctx, "res@x.com")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.InDelta(t, 1200, payments[0].Amount, 0)

	coupons, err := api.Coupons(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SPRING10", coupons[0].Code)

	anns, err := api.Announcements(ctx)
	require.NoError(t, err)
	assert.Empty(t, anns)

	sum, err := api.AdminSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Apartments)
	assert.Equal(t, 1, sum.Members)
	assert.Equal(t, 1, sum.PendingAgreements)
}

func TestApartmentsAndAgreementRequests(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "res@x.com")
	ctx := context.Background()

	apartments, err := api.Apartments(ctx)
	require.NoError(t, err)
	require.Len(t, apartments, 2)
	assert.Equal(t, "A-301", apartments[0].ApartmentNo)
	assert.True(t, apartments[0].Available)

	_, err = api.AgreementFor(ctx, "res@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err), "an empty body means no agreement")

	require.NoError(t, api.RequestAgreement(ctx, resident.AgreementFor(apartments[0], "Res", "res@x.com")))
	agr, err := api.AgreementFor(ctx, "res@x.com")
	require.NoError(t, err)
	assert.Equal(t, resident.AgreementPending, agr.Status)
	assert.NotEmpty(t, agr.ID)
	assert.False(t, agr.CreatedAt.IsZero())
}

func TestCouponEndpoints(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "admin@x.com")
	ctx := context.Background()

	require.NoError(t, api.CreateCoupon(ctx, resident.Coupon{ID: "ignored", Title: "Fall", Code: "FALL5", Discount: 5}))
	require.NoError(t, api.UpdateCoupon(ctx, "c1", resident.Coupon{Title: "Spring", Code: "SPRING10", Discount: 12}))
	coupons, err := api.Coupons(ctx)
	require.NoError(t, err)
	require.Len(t, coupons, 2)
	assert.InDelta(t, 12, coupons[0].Discount, 0)
	assert.NotEqual(t, "ignored", coupons[1].ID, "the backend assigns ids")

	check, err := api.ValidateCoupon(ctx, "fall5")
	require.NoError(t, err)
	assert.True(t, check.Valid)
	assert.InDelta(t, 5, check.DiscountPercentage, 0)

	require.NoError(t, api.DeleteCoupon(ctx, "c1"))
	check, err = api.ValidateCoupon(ctx, "SPRING10")
	require.NoError(t, err)
	assert.False(t, check.Valid)
	assert.Equal(t, int64(1), fb.Count("DELETE /coupons/c1"))
}

func TestSetUserRole(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.AddUser("m@x.com", "M", "member")
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "admin@x.com")
	ctx := context.Background()

	users, err := api.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)

	require.NoError(t, api.SetUserRole(ctx, "m@x.com", domainauth.RoleUser))
	assert.Equal(t, "user", fb.Role("m@x.com"))
	assert.True(t, apperrors.IsNotFound(api.SetUserRole(ctx, "ghost@x.com", domainauth.RoleUser)))
}

func TestPaymentEndpoints(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	c, api := newTestAPI(t, fb.URL(), CredentialToken, AuthPolicy{}, nil)
	signIn(t, c, "res@x.com")
	ctx := context.Background()

	secret, err := api.CreatePaymentIntent(ctx, 1080, "res@x.com")
	require.NoError(t, err)
	assert.Contains(t, secret, "_secret")

	_, err = api.CreatePaymentIntent(ctx, 0, "res@x.com")
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, api.RecordPayment(ctx, resident.Payment{Email: "res@x.com", Amount: 1080, Month: "2025-03", TransactionID: "pi_1"}))
	payments, err := api.PaymentsFor(ctx, "res@x.com")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "pi_1", payments[0].TransactionID)
}

func TestCreatePaymentIntent_BodyShapes(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch calls.Add(1) {
		case 1:
			_, _ = w.Write([]byte(`"pi_9_secret_x"`))
		case 2:
			_, _ = w.Write([]byte(`{"clientSecret":"pi_10_secret_y"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	_, api := newTestAPI(t, srv.URL, CredentialToken, AuthPolicy{}, nil)
	ctx := context.Background()

	secret, err := api.CreatePaymentIntent(ctx, 10, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "pi_9_secret_x", secret)

	secret, err = api.CreatePaymentIntent(ctx, 10, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "pi_10_secret_y", secret)

	_, err = api.CreatePaymentIntent(ctx, 10, "a@x.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}
