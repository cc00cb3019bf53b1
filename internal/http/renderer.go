package httpx

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	corefuncs "github.com/target/towertrack-portal/internal/http/templates/core"
)

var templatePatterns = []string{"*.tmpl", "pages/*.tmpl", "partials/*.tmpl"}

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	fsys    fs.FS
	devMode bool // re-parse templates on every render
	logger  *slog.Logger

	mu sync.RWMutex
	t  *template.Template
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing templates (required)
	DevMode    bool         // Reload templates from TemplateFS on each render
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer constructs a renderer by parsing templates from the provided config.
// In dev mode TemplateFS should be os.DirFS("frontend/templates") so edits show up without a restart.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &TemplateRenderer{fsys: cfg.TemplateFS, devMode: cfg.DevMode, logger: cfg.Logger}
	t, err := r.parse()
	if err != nil {
		r.logger.Error("template parsing failed",
			slog.Any("error", err),
			slog.String("phase", "initialization"),
		)
		return nil, err
	}
	r.t = t
	return r, nil
}

func (r *TemplateRenderer) parse() (*template.Template, error) {
	var t *template.Template
	funcs := corefuncs.Funcs(corefuncs.Deps{
		Template:           &t,
		ContentTemplateFor: ContentTemplateFor,
	})
	parsed, err := template.New("root").Funcs(funcs).ParseFS(r.fsys, templatePatterns...)
	if err != nil {
		return nil, err
	}
	t = parsed
	return t, nil
}

func (r *TemplateRenderer) templates() *template.Template {
	if r.devMode {
		if t, err := r.parse(); err == nil {
			r.mu.Lock()
			r.t = t
			r.mu.Unlock()
		} else {
			r.logger.Warn("template reload failed", slog.Any("error", err))
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.t
}

// RenderFull renders the full page (layout + page content).
func (r *TemplateRenderer) RenderFull(w http.ResponseWriter, _ *http.Request, data any) error {
	return r.renderTemplate(w, "layout", data)
}

// RenderPartial renders only the main content area.
func (r *TemplateRenderer) RenderPartial(w http.ResponseWriter, _ *http.Request, data any) error {
	return r.renderTemplate(w, "content", data)
}

// RenderError renders an error page using the error template.
func (r *TemplateRenderer) RenderError(w http.ResponseWriter, _ *http.Request, data any) error {
	return r.renderTemplate(w, "error-layout", data)
}

// RenderPending renders the self-refreshing page shown while identity or role is loading.
func (r *TemplateRenderer) RenderPending(w http.ResponseWriter, _ *http.Request, data any) error {
	return r.renderTemplate(w, "pending-layout", data)
}

func (r *TemplateRenderer) renderTemplate(w http.ResponseWriter, templateName string, data any) error {
	var buf bytes.Buffer
	if err := r.templates().ExecuteTemplate(&buf, templateName, data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("template", templateName),
			slog.Any("error", err),
		)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template",
			slog.String("template", templateName),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}
