package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/target/towertrack-portal/internal/domain/nav"
	"github.com/target/towertrack-portal/internal/domain/resident"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/service"
)

const errMsgFixBelow = "Please fix the errors below."

// DashboardHandlers serves the role-specific dashboard pages.
type DashboardHandlers struct {
	*Pages
	Guard GuardConfig
	// PaymentKey is the payment gateway's publishable key shown on the payment page.
	PaymentKey string
}

//nolint:gochecknoglobals // static read-only page titles
var pageTitles = map[string]string{
	nav.PageProfile:          "My Profile",
	nav.PageAnnouncements:    "Announcements",
	nav.PageMakePayment:      "Make Payment",
	nav.PagePaymentHistory:   "Payment History",
	nav.PageAdminProfile:     "Admin Profile",
	nav.PageMakeAnnouncement: "Make Announcement",
	nav.PageManageCoupons:    "Manage Coupons",
	nav.PageManageMembers:    "Manage Members",
	nav.PageAgreementRequest: "Agreement Requests",
	PageApartments:           "Apartments",
}

// pageFetch loads a page's data from the backend into data.
type pageFetch func(ctx context.Context, h *DashboardHandlers, p *service.Portal, data map[string]any) error

//nolint:gochecknoglobals // static read-only fetch table
var pageFetches = map[string]pageFetch{
	nav.PageAnnouncements: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.API().Announcements(ctx)
		data["Announcements"] = items
		return err
	},
	nav.PageMakePayment: func(ctx context.Context, h *DashboardHandlers, p *service.Portal, data map[string]any) error {
		data["PaymentKey"] = h.PaymentKey
		agr, err := p.API().AgreementFor(ctx, p.CurrentIdentity().Key())
		if apperrors.IsNotFound(err) {
			data["NoAgreement"] = true
			return nil
		}
		data["Agreement"] = agr
		return err
	},
	nav.PagePaymentHistory: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.API().PaymentsFor(ctx, p.CurrentIdentity().Key())
		data["Payments"] = items
		return err
	},
	nav.PageAdminProfile: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		summary, err := p.API().AdminSummary(ctx)
		data["Summary"] = summary
		return err
	},
	nav.PageManageCoupons: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.API().Coupons(ctx)
		data["Coupons"] = items
		return err
	},
	nav.PageManageMembers: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.Members(ctx)
		data["Members"] = items
		return err
	},
	nav.PageAgreementRequest: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.API().PendingAgreements(ctx)
		data["Agreements"] = items
		return err
	},
	PageApartments: func(ctx context.Context, _ *DashboardHandlers, p *service.Portal, data map[string]any) error {
		items, err := p.API().Apartments(ctx)
		data["Apartments"] = items
		return err
	},
}

// Index sends the viewer to the first page of their menu.
// GET /dashboard (behind the private guard).
func (h *DashboardHandlers) Index(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	entries := p.Navigation()
	if len(entries) == 0 {
		// Signed in but no usable role: the guard on any page would deny.
		redirectTo(w, r, "/unauthorized")
		return
	}
	redirectTo(w, r, entries[0].Path)
}

// Page renders one dashboard page after its guard allows it.
// GET /dashboard/{page}.
func (h *DashboardHandlers) Page(w http.ResponseWriter, r *http.Request) {
	page := r.PathValue("page")
	g, ok := nav.PageGuard(page)
	if !ok {
		h.NotFound(w, r)
		return
	}
	if !enforceGuard(w, r, g, h.Guard) {
		return
	}
	h.renderPage(w, r, page, NewTemplateData(r, h.meta(page)))
}

func (h *DashboardHandlers) meta(page string) PageMeta {
	title := pageTitles[page]
	return PageMeta{Title: title + " · TowerTrack", PageTitle: title, CurrentPage: page}
}

// renderPage runs the page's fetch and renders it. Auth failures from the backend send
// the viewer to sign in; anything else becomes a banner over whatever did load.
func (h *DashboardHandlers) renderPage(w http.ResponseWriter, r *http.Request, page string, b *TemplateDataBuilder) {
	p, _ := PortalFromContext(r.Context())
	data := b.Build()
	if fetch := pageFetches[page]; fetch != nil {
		if err := fetch(r.Context(), h, p, data); err != nil {
			switch {
			case apperrors.IsUnauthenticated(err):
				h.logger().InfoContext(r.Context(), "backend rejected session", "page", page, "error", err)
				redirectToLogin(w, r, r.URL.RequestURI())
				return
			case apperrors.IsUnauthorized(err):
				redirectTo(w, r, "/unauthorized")
				return
			default:
				h.logger().WarnContext(r.Context(), "dashboard fetch failed", "page", page, "error", err)
				if _, set := data["Error"]; !set {
					data["Error"] = true
					data["ErrorMessage"] = "Some information could not be loaded. Please try again shortly."
				}
			}
		}
	}
	h.render(w, r, data)
}

// AcceptAgreement checks an agreement request and promotes the requester.
// POST /dashboard/agreement-requests/{id}/accept (admin only).
func (h *DashboardHandlers) AcceptAgreement(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())
	email := r.PostFormValue("email")
	if email == "" {
		email = r.URL.Query().Get("email")
	}

	err := p.AcceptAgreement(r.Context(), r.PathValue("id"), email)
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"accepted": true})
		return
	}
	if err != nil {
		if apperrors.IsUnauthenticated(err) {
			redirectToLogin(w, r, "/dashboard/"+nav.PageAgreementRequest)
			return
		}
		h.logger().WarnContext(r.Context(), "accept agreement failed", "error", err)
		writeHTMLStatus(w, StatusFor(err))
		h.renderPage(w, r, nav.PageAgreementRequest,
			NewTemplateData(r, h.meta(nav.PageAgreementRequest)).WithError("The agreement could not be accepted."))
		return
	}
	triggerToast(w, "Agreement accepted", "success")
	h.renderPage(w, r, nav.PageAgreementRequest,
		NewTemplateData(r, h.meta(nav.PageAgreementRequest)).WithFlash("Agreement accepted. The resident is now a member."))
}

// MakeAnnouncement posts a building notice.
// POST /dashboard/make-announcement (admin only).
func (h *DashboardHandlers) MakeAnnouncement(w http.ResponseWriter, r *http.Request) {
	p, _ := PortalFromContext(r.Context())

	var a resident.Announcement
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &a) {
			return
		}
	} else {
		a = resident.Announcement{Title: r.PostFormValue("title"), Description: r.PostFormValue("description")}
	}

	err := p.PostAnnouncement(r.Context(), a)
	if !IsBrowserRequest(r) {
		if err != nil {
			WriteAppError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]any{"posted": true})
		return
	}
	if err != nil {
		b := NewTemplateData(r, h.meta(nav.PageMakeAnnouncement)).With("Form", a)
		switch {
		case apperrors.IsUnauthenticated(err):
			redirectToLogin(w, r, "/dashboard/"+nav.PageMakeAnnouncement)
			return
		case apperrors.IsValidation(err):
			b.WithError(errMsgFixBelow).WithFieldErrors(map[string]string{apperrors.GetField(err): validationMessage(err)})
		default:
			h.logger().WarnContext(r.Context(), "post announcement failed", "error", err)
			b.WithError("The announcement could not be posted. Please try again.")
		}
		writeHTMLStatus(w, StatusFor(err))
		h.render(w, r, b.Build())
		return
	}
	triggerToast(w, "Announcement posted", "success")
	redirectTo(w, r, "/dashboard/"+nav.PageAnnouncements)
}

func validationMessage(err error) string {
	var ae *apperrors.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
