package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/target/towertrack-portal/internal/domain/nav"
	"github.com/target/towertrack-portal/internal/domain/resident"
	apperrors "github.com/target/towertrack-portal/internal/errors"
)

// formFailure re-renders page with err shown against the form. An expired session is
// sent to sign in instead.
func (h *DashboardHandlers) formFailure(w http.ResponseWriter, r *http.Request, page string, b *TemplateDataBuilder, err error, action string) {
	switch {
	case apperrors.IsUnauthenticated(err):
		redirectToLogin(w, r, pagePath(page))
		return
	case apperrors.IsValidation(err):
		b.WithError(errMsgFixBelow).WithFieldErrors(map[string]string{apperrors.GetField(err): validationMessage(err)})
	case apperrors.IsNotFound(err):
		b.WithError("That item no longer exists.")
	default:
		h.logger().WarnContext(r.Context(), action+" failed", "error", err)
		b.WithError("Something went wrong. Please try again.")
	}
	writeHTMLStatus(w, StatusFor(err))
	h.renderPage(w, r, page, b)
}

func pagePath(page string) string {
	if page == PageApartments {
		return "/apartments"
	}
	return "/dashboard/" + page
}

// Apartments lists the building's apartments with a lease request form on each free one.
// GET /apartments (signed in).
func (h *DashboardHandlers) Apartments(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, PageApartments, NewTemplateData(r, h.meta(PageApartments)))
}

// RequestAgreement files a lease request for the viewer.
// POST /apartments/{id}/agreement (signed in).
func (h *DashboardHandlers) RequestAgreement(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	agr, err := p.RequestAgreement(r.Context(), r.PathValue("id"))
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, agr)
		return
	}
	b := NewTemplateData(r, h.meta(PageApartments))
	if err != nil {
		h.formFailure(w, r, PageApartments, b, err, "request agreement")
		return
	}
	triggerToast(w, "Agreement requested", "success")
	h.renderPage(w, r, PageApartments,
		b.WithFlash("Request sent for apartment "+agr.ApartmentNo+". An administrator will review it."))
}

// SaveCoupon creates a coupon, or updates one when the path names it.
// POST /dashboard/manage-coupons, POST|PATCH /dashboard/manage-coupons/{id} (admin only).
func (h *DashboardHandlers) SaveCoupon(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	id := r.PathValue("id")

	var c resident.Coupon
	var err error
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &c) {
			return
		}
	} else {
		c, err = couponFromForm(r)
	}
	if err == nil {
		err = p.SaveCoupon(r.Context(), id, c)
	}

	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		status := http.StatusOK
		if id == "" {
			status = http.StatusCreated
		}
		WriteJSON(w, status, map[string]any{"saved": true})
		return
	}
	if err != nil {
		h.formFailure(w, r, nav.PageManageCoupons,
			NewTemplateData(r, h.meta(nav.PageManageCoupons)).With("Form", c).With("EditID", id), err, "save coupon")
		return
	}
	triggerToast(w, "Coupon saved", "success")
	redirectTo(w, r, pagePath(nav.PageManageCoupons))
}

func couponFromForm(r *http.Request) (resident.Coupon, error) {
	c := resident.Coupon{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Code:        r.PostFormValue("code"),
		ValidTill:   r.PostFormValue("validTill"),
	}
	raw := strings.TrimSpace(r.PostFormValue("discount"))
	if raw == "" {
		return c, apperrors.ValidationField("discount", "discount is required")
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return c, apperrors.ValidationField("discount", "discount must be a number")
	}
	c.Discount = d
	return c, nil
}

// DeleteCoupon removes a coupon.
// POST /dashboard/manage-coupons/{id}/delete, DELETE /dashboard/manage-coupons/{id} (admin only).
func (h *DashboardHandlers) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	err := p.DeleteCoupon(r.Context(), r.PathValue("id"))
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.formFailure(w, r, nav.PageManageCoupons, NewTemplateData(r, h.meta(nav.PageManageCoupons)), err, "delete coupon")
		return
	}
	triggerToast(w, "Coupon deleted", "success")
	redirectTo(w, r, pagePath(nav.PageManageCoupons))
}

// DemoteMember returns a member to the resident role.
// POST /dashboard/manage-members/{email}/demote (admin only).
func (h *DashboardHandlers) DemoteMember(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	email := r.PathValue("email")
	err := p.DemoteMember(r.Context(), email)
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"demoted": true})
		return
	}
	b := NewTemplateData(r, h.meta(nav.PageManageMembers))
	if err != nil {
		h.formFailure(w, r, nav.PageManageMembers, b, err, "demote member")
		return
	}
	triggerToast(w, "Member removed", "success")
	h.renderPage(w, r, nav.PageManageMembers, b.WithFlash(email+" is no longer a member."))
}

type paymentRequest struct {
	Month  string `json:"month"`
	Coupon string `json:"coupon"`
}

func decodePayment(w http.ResponseWriter, r *http.Request) (paymentRequest, bool) {
	var req paymentRequest
	if isJSONRequest(r) {
		return req, DecodeJSON(w, r, &req)
	}
	return paymentRequest{Month: r.PostFormValue("month"), Coupon: r.PostFormValue("coupon")}, true
}

// QuotePayment prices a month with an optional coupon.
// POST /dashboard/make-payment (member only).
func (h *DashboardHandlers) QuotePayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	req, ok := decodePayment(w, r)
	if !ok {
		return
	}
	q, err := p.QuotePayment(r.Context(), req.Month, req.Coupon)
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, q)
		return
	}
	b := NewTemplateData(r, h.meta(nav.PageMakePayment)).With("Form", req)
	if err != nil {
		h.formFailure(w, r, nav.PageMakePayment, b, err, "quote payment")
		return
	}
	h.renderPage(w, r, nav.PageMakePayment, b.With("Quote", q))
}

// PaymentIntent opens a card payment for the quoted amount. The browser's payment
// script calls it and confirms the card with the returned client secret.
// POST /dashboard/make-payment/intent (member only).
func (h *DashboardHandlers) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	req, ok := decodePayment(w, r)
	if !ok {
		return
	}
	intent, err := p.StartPayment(r.Context(), req.Month, req.Coupon)
	if err != nil {
		if apperrors.IsNetwork(err) {
			h.logger().WarnContext(r.Context(), "payment intent failed", "error", err)
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, intent)
}

// ConfirmPayment records a payment the gateway accepted.
// POST /dashboard/make-payment/confirm (member only).
func (h *DashboardHandlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	var c resident.PaymentConfirmation
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &c) {
			return
		}
	} else {
		c = resident.PaymentConfirmation{
			Month:         r.PostFormValue("month"),
			Coupon:        r.PostFormValue("coupon"),
			TransactionID: r.PostFormValue("transactionId"),
		}
	}

	pay, err := p.ConfirmPayment(r.Context(), c)
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, pay)
		return
	}
	if err != nil {
		h.formFailure(w, r, nav.PageMakePayment,
			NewTemplateData(r, h.meta(nav.PageMakePayment)).With("Form", paymentRequest{Month: c.Month, Coupon: c.Coupon}),
			err, "confirm payment")
		return
	}
	triggerToast(w, "Payment recorded", "success")
	redirectTo(w, r, pagePath(nav.PagePaymentHistory))
}
