package httpx

import (
	"html"
	"log/slog"
	"net/http"
)

// Pages renders portal pages, switching to fragment output for htmx navigation.
type Pages struct {
	T      *TemplateRenderer
	IsDev  bool // show template errors in the response
	Logger *slog.Logger
}

func (p *Pages) logger() *slog.Logger {
	if p != nil && p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// render writes data as a full page, or as the content fragment plus out-of-band title
// updates when htmx asked for a partial.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, data map[string]any) {
	if !WantsPartial(r) {
		if err := p.T.RenderFull(w, r, data); err != nil {
			p.logAndRenderTemplateError(w, r, err, "full page render")
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	SetHXTrigger(w, "nav:activate", map[string]string{"path": r.URL.Path})

	title, _ := data["Title"].(string)
	pageTitle, _ := data["PageTitle"].(string)
	if _, err := w.Write([]byte(`<title>` + html.EscapeString(title) + `</title>` +
		`<h1 id="header-title" class="header-title" hx-swap-oob="outerHTML">` + html.EscapeString(pageTitle) + `</h1>`)); err != nil {
		p.logger().Error("failed to write partial header", "error", err)
		return
	}
	if err := p.T.RenderPartial(w, r, data); err != nil {
		p.logAndRenderTemplateError(w, r, err, "partial content render")
	}
}

// renderError shows the error page with the given status.
func (p *Pages) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := basePageData(r, PageMeta{Title: http.StatusText(status), PageTitle: http.StatusText(status)})
	data["StatusCode"] = status
	data["ErrorMessage"] = message
	writeHTMLStatus(w, status)
	if err := p.T.RenderError(w, r, data); err != nil {
		p.logger().Error("error page render failed", "error", err, "status", status)
	}
}

// logAndRenderTemplateError logs template errors and renders them in dev mode.
func (p *Pages) logAndRenderTemplateError(w http.ResponseWriter, r *http.Request, err error, context string) {
	p.logger().Error("template rendering failed",
		"error", err,
		"context", context,
		"path", r.URL.Path,
		"method", r.Method,
	)
	if !p.IsDev {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<div class="template-error"><h2>Template Rendering Error</h2><p><strong>Context:</strong> ` +
		html.EscapeString(context) + `</p><p><strong>Path:</strong> ` + html.EscapeString(r.URL.Path) +
		`</p><pre>` + html.EscapeString(err.Error()) + `</pre></div>`))
}

// Home renders the landing page.
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, basePageData(r, PageMeta{Title: "TowerTrack", PageTitle: "Welcome", CurrentPage: PageHome}))
}

// NotFound renders a 404 for unknown paths.
func (p *Pages) NotFound(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
		return
	}
	p.renderError(w, r, http.StatusNotFound, "The page you are looking for does not exist.")
}

// writeHTMLStatus commits a non-200 status for an HTML body that follows.
func writeHTMLStatus(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
}
