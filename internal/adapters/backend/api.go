package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/resident"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/ports"
)

var (
	_ ports.RoleSource       = (*API)(nil)
	_ ports.ProfileDirectory = (*API)(nil)
	_ ports.ResidentAPI      = (*API)(nil)
)

// RoleOptions controls how GET /users/role/{email} is read.
type RoleOptions struct {
	// Expression is a JMESPath expression selecting the role from the response body.
	Expression string
	// MissingIsUser treats an absent role field as "user" instead of an error.
	MissingIsUser bool
}

// API is the privileged surface of the REST API for one portal. Requests go
// through the 401 policy and then the Client's breaker.
type API struct {
	client *Client
	doer   Doer
	roleEx string
	miss   bool
	logger *slog.Logger
}

// API wraps the client with the given auth policy. grace may be nil.
func (c *Client) API(policy AuthPolicy, grace Grace, roles RoleOptions) (*API, error) {
	if roles.Expression == "" {
		roles.Expression = "role"
	}
	if _, err := jmespath.Compile(roles.Expression); err != nil {
		return nil, fmt.Errorf("invalid role expression %q: %w", roles.Expression, err)
	}
	return &API{
		client: c,
		doer:   authRetry(c, policy, grace, c.logger),
		roleEx: roles.Expression,
		miss:   roles.MissingIsUser,
		logger: c.logger,
	}, nil
}

func (a *API) get(ctx context.Context, target string, out any) error {
	req, err := a.client.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return a.client.call(a.doer, req, out)
}

func (a *API) send(ctx context.Context, method, target string, body, out any) error {
	req, err := a.client.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}
	return a.client.call(a.doer, req, out)
}

// FetchRole reads the role bound to key.
func (a *API) FetchRole(ctx context.Context, key string) (domainauth.Role, error) {
	var payload any
	if err := a.get(ctx, a.client.endpoint(nil, "users", "role", key), &payload); err != nil {
		return "", err
	}
	v, err := jmespath.Search(a.roleEx, payload)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeRoleFetchFailed, "evaluate %q", a.roleEx)
	}
	s, _ := v.(string)
	if s == "" {
		if v == nil && a.miss {
			return domainauth.RoleUser, nil
		}
		return "", apperrors.New(apperrors.ErrCodeRoleFetchFailed,
			fmt.Sprintf("no role at %q in /users/role response", a.roleEx))
	}
	r, err := domainauth.ParseRole(s)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeRoleFetchFailed, "unrecognized role")
	}
	return r, nil
}

// ProfileExists checks GET /users/{email}.
func (a *API) ProfileExists(ctx context.Context, email string) (bool, error) {
	err := a.get(ctx, a.client.endpoint(nil, "users", email), nil)
	switch {
	case err == nil:
		return true, nil
	case apperrors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// CreateProfile posts a new user record.
func (a *API) CreateProfile(ctx context.Context, p ports.Profile) error {
	return a.send(ctx, http.MethodPost, a.client.endpoint(nil, "users"), p, nil)
}

func (a *API) Announcements(ctx context.Context) ([]resident.Announcement, error) {
	var out []resident.Announcement
	if err := a.get(ctx, a.client.endpoint(nil, "announcements"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) PostAnnouncement(ctx context.Context, ann resident.Announcement) error {
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = time.Now().UTC()
	}
	return a.send(ctx, http.MethodPost, a.client.endpoint(nil, "announcements"), ann, nil)
}

func (a *API) PaymentsFor(ctx context.Context, email string) ([]resident.Payment, error) {
	var out []resident.Payment
	if err := a.get(ctx, a.client.endpoint(nil, "payments", "user", email), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) Coupons(ctx context.Context) ([]resident.Coupon, error) {
	var out []resident.Coupon
	if err := a.get(ctx, a.client.endpoint(nil, "coupons"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) PendingAgreements(ctx context.Context) ([]resident.Agreement, error) {
	var out []resident.Agreement
	q := url.Values{"status": {string(resident.AgreementPending)}}
	if err := a.get(ctx, a.client.endpoint(q, "agreements"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptAgreement marks the agreement checked, then promotes the requester.
// The role change makes any cached role for email stale.
func (a *API) AcceptAgreement(ctx context.Context, id, email string) error {
	status := map[string]string{"status": string(resident.AgreementChecked)}
	if err := a.send(ctx, http.MethodPatch, a.client.endpoint(nil, "agreements", id, "status"), status, nil); err != nil {
		return fmt.Errorf("check agreement %s: %w", id, err)
	}
	promote := map[string]string{"email": email, "role": string(domainauth.RoleMember)}
	if err := a.send(ctx, http.MethodPatch, a.client.endpoint(nil, "users", "role"), promote, nil); err != nil {
		return fmt.Errorf("promote %s: %w", email, err)
	}
	return nil
}

func (a *API) Apartments(ctx context.Context) ([]resident.Apartment, error) {
	var out []resident.Apartment
	if err := a.get(ctx, a.client.endpoint(nil, "apartments"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) RequestAgreement(ctx context.Context, agr resident.Agreement) error {
	if agr.CreatedAt.IsZero() {
		agr.CreatedAt = time.Now().UTC()
	}
	return a.send(ctx, http.MethodPost, a.client.endpoint(nil, "agreements"), agr, nil)
}

func (a *API) AgreementFor(ctx context.Context, email string) (resident.Agreement, error) {
	var out resident.Agreement
	if err := a.get(ctx, a.client.endpoint(nil, "agreements", email), &out); err != nil {
		return resident.Agreement{}, err
	}
	if out.UserEmail == "" {
		// The backend answers 200 with an empty object when there is no agreement.
		return resident.Agreement{}, apperrors.NotFoundf("no agreement for %s", email)
	}
	return out, nil
}

func (a *API) CreateCoupon(ctx context.Context, c resident.Coupon) error {
	c.ID = ""
	return a.send(ctx, http.MethodPost, a.client.endpoint(nil, "coupons"), c, nil)
}

func (a *API) UpdateCoupon(ctx context.Context, id string, c resident.Coupon) error {
	c.ID = ""
	return a.send(ctx, http.MethodPatch, a.client.endpoint(nil, "coupons", id), c, nil)
}

func (a *API) DeleteCoupon(ctx context.Context, id string) error {
	return a.send(ctx, http.MethodDelete, a.client.endpoint(nil, "coupons", id), nil, nil)
}

func (a *API) ValidateCoupon(ctx context.Context, code string) (resident.CouponCheck, error) {
	var out resident.CouponCheck
	body := map[string]string{"code": code}
	if err := a.send(ctx, http.MethodPost, a.client.endpoint(nil, "validate-coupon"), body, &out); err != nil {
		return resident.CouponCheck{}, err
	}
	return out, nil
}

func (a *API) Users(ctx context.Context) ([]resident.UserRecord, error) {
	var out []resident.UserRecord
	if err := a.get(ctx, a.client.endpoint(nil, "users"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) SetUserRole(ctx context.Context, email string, role domainauth.Role) error {
	body := map[string]string{"role": role.String()}
	return a.send(ctx, http.MethodPatch, a.client.endpoint(nil, "users", email), body, nil)
}

// CreatePaymentIntent accepts either a bare JSON string or {"clientSecret": ...}.
func (a *API) CreatePaymentIntent(ctx context.Context, amount float64, email string) (string, error) {
	var raw json.RawMessage
	body := map[string]any{"amount": amount, "email": email}
	if err := a.send(ctx, http.MethodPost, a.client.endpoint(nil, "create-payment-intent"), body, &raw); err != nil {
		return "", err
	}
	var secret string
	if err := json.Unmarshal(raw, &secret); err != nil {
		var obj struct {
			ClientSecret string `json:"clientSecret"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode payment intent")
		}
		secret = obj.ClientSecret
	}
	if secret == "" {
		return "", apperrors.Internal("payment intent has no client secret")
	}
	return secret, nil
}

func (a *API) RecordPayment(ctx context.Context, p resident.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return a.send(ctx, http.MethodPost, a.client.endpoint(nil, "payments"), p, nil)
}

// AdminSummary aggregates apartments, agreements and users.
func (a *API) AdminSummary(ctx context.Context) (resident.AdminSummary, error) {
	var (
		apartments []resident.Apartment
		agreements []resident.Agreement
		users      []resident.UserRecord
	)
	for _, l := range []struct {
		path string
		out  any
	}{
		{"apartments", &apartments},
		{"agreements", &agreements},
		{"users", &users},
	} {
		if err := a.get(ctx, a.client.endpoint(nil, l.path), l.out); err != nil {
			return resident.AdminSummary{}, fmt.Errorf("list %s: %w", l.path, err)
		}
	}
	return resident.Summarize(apartments, agreements, users), nil
}
