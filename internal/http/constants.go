package httpx

import "github.com/target/towertrack-portal/internal/domain/nav"

// Page identifiers outside the dashboard shell.
const (
	PageHome         = "home"
	PageLogin        = "login"
	PageSignedOut    = "signed-out"
	PageUnauthorized = "unauthorized"
	PageApartments   = "apartments"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "frontend/templates"
	TemplatePathFromTest = "../../frontend/templates"
)

//nolint:gochecknoglobals // static read-only lookup for templates
var contentTemplates = map[string]string{
	PageHome:                 "home-content",
	PageLogin:                "login-content",
	PageSignedOut:            "signed-out-content",
	PageUnauthorized:         "unauthorized-content",
	PageApartments:           "apartments-content",
	nav.PageProfile:          "profile-content",
	nav.PageAnnouncements:    "announcements-content",
	nav.PageMakePayment:      "make-payment-content",
	nav.PagePaymentHistory:   "payment-history-content",
	nav.PageAdminProfile:     "admin-profile-content",
	nav.PageMakeAnnouncement: "make-announcement-content",
	nav.PageManageCoupons:    "manage-coupons-content",
	nav.PageManageMembers:    "manage-members-content",
	nav.PageAgreementRequest: "agreement-requests-content",
}

// ContentTemplateMap returns the mapping from CurrentPage to template name.
func ContentTemplateMap() map[string]string { return contentTemplates }

// ContentTemplateFor returns the content template for the given CurrentPage.
// Falls back to home-content for unknown pages.
func ContentTemplateFor(currentPage string) string {
	if name, ok := contentTemplates[currentPage]; ok {
		return name
	}
	return "home-content"
}
