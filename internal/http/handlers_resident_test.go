package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/towertrack-portal/internal/domain/resident"
)

func (e *testEnv) postJSON(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	return e.do(t, method, path, "application/json", strings.NewReader(body), "Content-Type", "application/json")
}

func TestApartments_ListAndRequest(t *testing.T) {
	env := newTestEnv(t)

	anon := env.get(t, "/apartments")
	assert.Equal(t, http.StatusSeeOther, anon.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fapartments", anon.Header.Get("Location"))

	env.signIn(t, "tenant@example.com", "user")
	list := env.get(t, "/apartments")
	require.Equal(t, http.StatusOK, list.StatusCode)
	body := readBody(t, list)
	assert.Contains(t, body, "Apartment A-301")
	assert.Contains(t, body, "/apartments/a1/agreement")
	assert.NotContains(t, body, "/apartments/a2/agreement", "leased apartments have no request form")

	resp := env.postForm(t, "/apartments/a1/agreement", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Request sent for apartment A-301")

	stored := env.backend.Agreements()
	require.Len(t, stored, 1)
	assert.Equal(t, "tenant@example.com", stored[0]["userEmail"])

	leased := env.postForm(t, "/apartments/a2/agreement", url.Values{})
	assert.Equal(t, http.StatusBadRequest, leased.StatusCode)
	assert.Len(t, env.backend.Agreements(), 1)
}

func TestApartments_JSONRequest(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "tenant@example.com", "user")

	resp := env.postJSON(t, http.MethodPost, "/apartments/a1/agreement", `{}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var agr resident.Agreement
	require.NoError(t, decode(t, resp, &agr))
	assert.Equal(t, resident.AgreementPending, agr.Status)

	missing := env.postJSON(t, http.MethodPost, "/apartments/zz/agreement", `{}`)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestManageCoupons_CreateUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "boss@example.com", "admin")

	form := url.Values{
		"title": {"Summer"}, "description": {"Summer offer"}, "code": {"summer15"},
		"discount": {"15"}, "validTill": {"2099-08-31"},
	}
	created := env.postForm(t, "/dashboard/manage-coupons", form)
	require.Equal(t, http.StatusSeeOther, created.StatusCode)
	assert.Equal(t, "/dashboard/manage-coupons", created.Header.Get("Location"))
	coupons := env.backend.Coupons()
	require.Len(t, coupons, 2)
	assert.Equal(t, "SUMMER15", coupons[1]["code"])

	form.Set("discount", "abc")
	bad := env.postForm(t, "/dashboard/manage-coupons/c1", form)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Contains(t, readBody(t, bad), "discount must be a number")

	patched := env.postJSON(t, http.MethodPatch, "/dashboard/manage-coupons/c1",
		`{"title":"Spring","description":"Spring offer","code":"SPRING25","discount":25,"validTill":"2099-04-30"}`)
	require.Equal(t, http.StatusOK, patched.StatusCode)
	assert.InDelta(t, 25, env.backend.Coupons()[0]["discount"], 0)

	deleted := env.postForm(t, "/dashboard/manage-coupons/c1/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, deleted.StatusCode)
	assert.Len(t, env.backend.Coupons(), 1)

	again := env.do(t, http.MethodDelete, "/dashboard/manage-coupons/c1", "application/json", nil,
		DefaultCSRFHeaderName, env.csrf(t))
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestManageCoupons_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	resp := env.postForm(t, "/dashboard/manage-coupons/c1/delete", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/unauthorized", resp.Header.Get("Location"))
	assert.Len(t, env.backend.Coupons(), 1)
}

func TestManageMembers_Demote(t *testing.T) {
	env := newTestEnv(t)
	env.backend.AddUser("m@example.com", "Mia", "member")
	env.signIn(t, "boss@example.com", "admin")

	page := env.get(t, "/dashboard/manage-members")
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, readBody(t, page), "/dashboard/manage-members/m@example.com/demote")

	resp := env.postForm(t, "/dashboard/manage-members/m@example.com/demote", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "m@example.com is no longer a member.")
	assert.Equal(t, "user", env.backend.Role("m@example.com"))

	self := env.postJSON(t, http.MethodPost, "/dashboard/manage-members/boss@example.com/demote", `{}`)
	assert.Equal(t, http.StatusBadRequest, self.StatusCode)
	assert.Equal(t, "admin", env.backend.Role("boss@example.com"))
}

func TestMakePayment_QuoteIntentConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.backend.AddAgreement("member@example.com", "Member")
	env.signIn(t, "member@example.com", "member")

	page := env.get(t, "/dashboard/make-payment")
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, readBody(t, page), "apartment A-301")

	quote := env.postForm(t, "/dashboard/make-payment", url.Values{"month": {"2025-03"}, "coupon": {"spring10"}})
	require.Equal(t, http.StatusOK, quote.StatusCode)
	qbody := readBody(t, quote)
	assert.Contains(t, qbody, "Total $1,080.00")
	assert.Contains(t, qbody, `data-publishable-key="pk_test_123"`)

	badCoupon := env.postForm(t, "/dashboard/make-payment", url.Values{"month": {"2025-03"}, "coupon": {"NOPE"}})
	assert.Equal(t, http.StatusBadRequest, badCoupon.StatusCode)
	assert.Contains(t, readBody(t, badCoupon), "coupon is invalid or expired")

	intentResp := env.postJSON(t, http.MethodPost, "/dashboard/make-payment/intent", `{"month":"2025-03","coupon":"SPRING10"}`)
	require.Equal(t, http.StatusOK, intentResp.StatusCode)
	var intent resident.PaymentIntent
	require.NoError(t, decode(t, intentResp, &intent))
	assert.NotEmpty(t, intent.ClientSecret)
	assert.InDelta(t, 1080, intent.Quote.Amount, 0.001)

	confirm := env.postForm(t, "/dashboard/make-payment/confirm",
		url.Values{"month": {"2025-03"}, "coupon": {"SPRING10"}, "transactionId": {"pi_1"}})
	require.Equal(t, http.StatusSeeOther, confirm.StatusCode)
	assert.Equal(t, "/dashboard/payment-history", confirm.Header.Get("Location"))

	recorded := env.backend.Payments("member@example.com")
	require.Len(t, recorded, 1)
	assert.InDelta(t, 1080, recorded[0]["amount"], 0.001)
}

func TestMakePayment_NoAgreementAndRoleGate(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "member@example.com", "member")

	page := env.get(t, "/dashboard/make-payment")
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, readBody(t, page), "No lease agreement is on file")

	intent := env.postJSON(t, http.MethodPost, "/dashboard/make-payment/intent", `{"month":"2025-03"}`)
	assert.Equal(t, http.StatusBadRequest, intent.StatusCode)
	assert.Zero(t, env.backend.Count("POST /create-payment-intent"))

	tenant := newTestEnv(t)
	tenant.signIn(t, "tenant@example.com", "user")
	denied := tenant.postJSON(t, http.MethodPost, "/dashboard/make-payment/confirm", `{"month":"2025-03","transactionId":"pi_1"}`)
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
}
