// Package core provides the template helpers shared by every portal page.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/target/towertrack-portal/internal/http/uiutil"
)

// Deps holds optional dependencies for constructing the core template func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
}

// Funcs returns a template.FuncMap with the helpers portal templates use.
func Funcs(deps Deps) template.FuncMap {
	funcs := template.FuncMap{
		"sectionTmpl":  deps.ContentTemplateFor,
		"friendlyTime": friendlyTime(uiutil.FormatFriendlyDateTime),
		"friendlyDate": friendlyTime(uiutil.FormatFriendlyDate),
		"ago":          func(t time.Time) string { return uiutil.FriendlyRelativeTime(t, time.Now()) },
		"money":        uiutil.FormatMoney,
		"truncate":     uiutil.TruncateWithEllipsis,
		"add":          func(a, b int) int { return a + b },
		"upper":        strings.ToUpper,
		"hasPrefix":    strings.HasPrefix,
		"roleLabel":    roleLabel,
	}

	funcs["renderSection"] = func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - output of our own html/template set; values were escaped during execution.
		return template.HTML(buf.String()), nil
	}

	funcs["toJSON"] = func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return funcs
}

func friendlyTime(format func(time.Time) string) func(any) string {
	return func(ts any) string {
		switch v := ts.(type) {
		case time.Time:
			return format(v)
		case *time.Time:
			if v != nil {
				return format(*v)
			}
		}
		return ""
	}
}

func roleLabel(role string) string {
	switch role {
	case "admin":
		return "Administrator"
	case "member":
		return "Member"
	case "user":
		return "Resident"
	default:
		return ""
	}
}
