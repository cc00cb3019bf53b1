package httpx

import (
	"errors"
	"net/http"
	"net/url"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
	"github.com/target/towertrack-portal/internal/domain/nav"
	apperrors "github.com/target/towertrack-portal/internal/errors"
	"github.com/target/towertrack-portal/internal/service"
	"github.com/target/towertrack-portal/internal/sessionbridge"
)

// AuthHandlers provides HTTP handlers for sign-in, sign-out and auth status.
type AuthHandlers struct {
	*Pages
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURI string `json:"redirect_uri"`
}

func portalOr500(w http.ResponseWriter, r *http.Request) (*service.Portal, bool) {
	p, ok := PortalFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: errNoPortal})
	}
	return p, ok
}

// LoginPage renders the sign-in form.
// GET /login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if p.CurrentIdentity().IsAuthenticated() {
		redirectTo(w, r, redirectURI)
		return
	}
	h.renderLogin(w, r, redirectURI, "", "")
}

func (h *AuthHandlers) renderLogin(w http.ResponseWriter, r *http.Request, redirectURI, email, errMsg string) {
	b := NewTemplateData(r, PageMeta{Title: "Sign in", PageTitle: "Sign in", CurrentPage: PageLogin}).
		With("RedirectURI", redirectURI).
		With("Email", email)
	if errMsg != "" {
		b.WithError(errMsg)
	}
	h.render(w, r, b.Build())
}

// Login signs in with email and password.
// POST /login (form or JSON).
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if isJSONRequest(r) {
		if !DecodeJSON(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
			return
		}
		req = loginRequest{
			Email:       r.PostFormValue("email"),
			Password:    r.PostFormValue("password"),
			RedirectURI: r.PostFormValue("redirect_uri"),
		}
	}
	redirectURI := safeRedirectPath(req.RedirectURI)

	id, err := p.SignInWithCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		writeHTMLStatus(w, StatusFor(err))
		h.renderLogin(w, r, redirectURI, req.Email, signInMessage(err))
		return
	}

	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{"identity": id, "redirect_uri": redirectURI})
		return
	}
	redirectTo(w, r, redirectURI)
}

// signInMessage turns a sign-in failure into text safe to show on the form.
func signInMessage(err error) string {
	switch {
	case apperrors.IsValidation(err):
		return "Enter a valid email address and password."
	case apperrors.IsInvalidCredentials(err):
		return "The email or password is incorrect."
	case apperrors.IsPopupClosed(err):
		return "Sign-in was cancelled."
	case apperrors.IsUnauthenticated(err):
		return "Your sign-in attempt expired. Please try again."
	case apperrors.IsNetwork(err):
		return "The sign-in service is unreachable. Please try again shortly."
	default:
		return "Sign-in failed. Please try again."
	}
}

// Federated starts a sign-in with the external identity provider.
// GET /auth/federated?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Federated(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}
	authURL, err := p.BeginFederated(r.Context(), safeRedirectPath(r.URL.Query().Get("redirect_uri")))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "federated sign-in start failed", "error", err)
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		writeHTMLStatus(w, http.StatusBadGateway)
		h.renderLogin(w, r, "/", "", "The sign-in service is unavailable.")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes a federated sign-in.
// GET /auth/callback?code=<code>&state=<state>[&error=<error>].
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("code") == "" && q.Get("error") == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}

	returnTo, err := p.CompleteFederated(r.Context(), service.CallbackInput{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		writeHTMLStatus(w, StatusFor(err))
		h.renderLogin(w, r, "/", "", signInMessage(err))
		return
	}
	redirectTo(w, r, safeRedirectPath(returnTo))
}

// Logout signs the portal out. Access is revoked immediately; a failed backend logout
// is reported as a warning.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}
	warn := p.SignOut(r.Context())

	if !IsBrowserRequest(r) {
		body := map[string]any{"signed_out": true}
		if warn != nil {
			body["warning"] = warn.Error()
		}
		WriteJSON(w, http.StatusOK, body)
		return
	}
	target := "/auth/signed-out"
	if warn != nil {
		target += "?" + url.Values{"warning": {"remote"}}.Encode()
	}
	redirectTo(w, r, target)
}

// SignedOut confirms the sign-out.
// GET /auth/signed-out.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	b := NewTemplateData(r, PageMeta{Title: "Signed out", PageTitle: "Signed out", CurrentPage: PageSignedOut})
	if r.URL.Query().Get("warning") != "" {
		b.With("Warning", "You are signed out here, but the server session could not be closed. It will expire on its own.")
	}
	h.render(w, r, b.Build())
}

// Unauthorized explains a denied page.
// GET /unauthorized.
func (h *AuthHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, basePageData(r, PageMeta{Title: "Not permitted", PageTitle: "Not permitted", CurrentPage: PageUnauthorized}))
}

// AuthStatus is the JSON view of a portal's auth state.
type AuthStatus struct {
	Identity   domainauth.IdentitySnapshot `json:"identity"`
	Role       domainauth.RoleState        `json:"role"`
	RoleError  string                      `json:"role_error,omitempty"`
	Session    sessionbridge.State         `json:"session"`
	Navigation []nav.Entry                 `json:"navigation"`
}

// Status reports the identity, role and session state.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := portalOr500(w, r)
	if !ok {
		return
	}
	st := AuthStatus{
		Identity:   p.CurrentIdentity(),
		Role:       p.RoleState(),
		Session:    p.Session(),
		Navigation: p.Navigation(),
	}
	if st.Role.Err != nil {
		st.RoleError = string(apperrors.GetCode(st.Role.Err))
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, st)
}
