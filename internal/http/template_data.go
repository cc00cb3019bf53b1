package httpx

import (
	"net/http"

	"github.com/target/towertrack-portal/internal/domain/nav"
)

// PageMeta contains metadata for page rendering.
type PageMeta struct {
	Title       string
	PageTitle   string
	CurrentPage string
}

// Viewer is the signed-in resident as shown in the layout.
type Viewer struct {
	Name      string
	Email     string
	AvatarURL string
	Role      string
}

// Layout is the data every full page shares.
type Layout struct {
	PageMeta
	CSRFToken       string
	IsAuthenticated bool
	RoleLoading     bool
	User            *Viewer
	Nav             []nav.Entry
}

func buildLayout(r *http.Request, meta PageMeta) Layout {
	layout := Layout{PageMeta: meta, CSRFToken: GetCSRFToken(r)}
	p, ok := PortalFromContext(r.Context())
	if !ok {
		return layout
	}
	snap := p.CurrentIdentity()
	if !snap.IsAuthenticated() {
		return layout
	}
	layout.IsAuthenticated = true
	layout.User = &Viewer{
		Name:      snap.Identity.DisplayName,
		Email:     snap.Identity.Email,
		AvatarURL: snap.Identity.AvatarURL,
	}
	st := p.RoleState()
	if role, ok := st.Resolved(); ok && st.For(snap.Key()) {
		layout.User.Role = role.String()
	}
	layout.RoleLoading = st.IsLoading()
	layout.Nav = p.Navigation()
	return layout
}

// basePageData constructs the common page data map with viewer context.
func basePageData(r *http.Request, meta PageMeta) map[string]any {
	layout := buildLayout(r, meta)
	data := map[string]any{
		"Title":           layout.Title,
		"PageTitle":       layout.PageTitle,
		"CurrentPage":     layout.CurrentPage,
		"CurrentPath":     r.URL.Path,
		"IsAuthenticated": layout.IsAuthenticated,
		"RoleLoading":     layout.RoleLoading,
		"Nav":             layout.Nav,
	}
	if layout.CSRFToken != "" {
		data["CSRFToken"] = layout.CSRFToken
	}
	if layout.User != nil {
		data["User"] = layout.User
	}
	return data
}

// TemplateDataBuilder provides a fluent API for building template data maps.
type TemplateDataBuilder struct {
	data map[string]any
}

// NewTemplateData creates a new TemplateDataBuilder initialized with basePageData.
func NewTemplateData(r *http.Request, meta PageMeta) *TemplateDataBuilder {
	return &TemplateDataBuilder{data: basePageData(r, meta)}
}

// WithError sets a general error message.
func (b *TemplateDataBuilder) WithError(msg string) *TemplateDataBuilder {
	b.data["Error"] = true
	b.data["ErrorMessage"] = msg
	return b
}

// WithFieldErrors adds field-level validation errors.
func (b *TemplateDataBuilder) WithFieldErrors(errs map[string]string) *TemplateDataBuilder {
	if len(errs) > 0 {
		b.data["Errors"] = errs
	}
	return b
}

// WithFlash adds a one-shot success message.
func (b *TemplateDataBuilder) WithFlash(msg string) *TemplateDataBuilder {
	if msg != "" {
		b.data["Flash"] = msg
	}
	return b
}

// With adds a custom field to the template data.
func (b *TemplateDataBuilder) With(key string, value any) *TemplateDataBuilder {
	b.data[key] = value
	return b
}

// Build returns the final template data map.
func (b *TemplateDataBuilder) Build() map[string]any {
	return b.data
}
