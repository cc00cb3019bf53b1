package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

const (
	// DefaultCSRFCookieName is the default name for the CSRF cookie and form field.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the header htmx sends the token in (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes = 32
	csrfMaxAge     = 12 * 3600
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	CookieName    string
	HeaderName    string
	FormFieldName string
	CookieDomain  string
	// Exempt skips validation for matching requests, e.g. JSON clients authenticated otherwise.
	Exempt func(*http.Request) bool
}

// CSRFProtection guards state-changing requests with the double-submit cookie pattern.
// The token lives in a cookie readable by the page and must come back in the
// X-Csrf-Token header or the csrf_token form field.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCSRFCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultCSRFCookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				token = c.Value
			}
			// A request that arrived without the cookie cannot carry a matching token.
			presented := token
			if token == "" {
				var err error
				if token, err = newCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					HttpOnly: false, // htmx reads it to set the header
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   csrfMaxAge,
				})
			}

			if unsafeMethod(r.Method) && (cfg.Exempt == nil || !cfg.Exempt(r)) {
				if !csrfTokenMatches(r, presented, cfg) {
					http.Error(w, "CSRF token validation failed", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token)))
		})
	}
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// newCSRFToken fails closed rather than falling back to a predictable token.
func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func csrfTokenMatches(r *http.Request, cookieToken string, cfg CSRFConfig) bool {
	if cookieToken == "" {
		return false
	}
	sent := r.Header.Get(cfg.HeaderName)
	if sent == "" {
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
			if err := r.ParseForm(); err != nil {
				return false
			}
			sent = r.PostFormValue(cfg.FormFieldName)
		}
	}
	return sent != "" && subtle.ConstantTimeCompare([]byte(sent), []byte(cookieToken)) == 1
}

type csrfTokenKey struct{}

// GetCSRFToken returns the token templates embed in forms and htmx headers.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
