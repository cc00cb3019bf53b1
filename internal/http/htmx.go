package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// IsHTMX reports whether the request was initiated by htmx (Hx-Request: true).
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Hx-Request"), "true")
}

// WantsPartial returns true when the handler should return only the main fragment (not full layout).
func WantsPartial(r *http.Request) bool {
	return IsHTMX(r) && !strings.EqualFold(r.Header.Get("Hx-History-Restore-Request"), "true")
}

// SetHXRedirect instructs htmx to redirect the browser to the given URL.
func SetHXRedirect(w http.ResponseWriter, url string) { w.Header().Set("Hx-Redirect", url) }

// SetHXTrigger sets Hx-Trigger with a single event and payload. Falls back to the bare
// event name when the payload cannot be encoded.
func SetHXTrigger(w http.ResponseWriter, event string, payload any) {
	b, err := json.Marshal(map[string]any{event: payload})
	if err != nil {
		w.Header().Set("Hx-Trigger", event)
		return
	}
	w.Header().Set("Hx-Trigger", string(b))
}

// triggerToast asks the page to show a toast notification.
func triggerToast(w http.ResponseWriter, message, toastType string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	SetHXTrigger(w, "showToast", map[string]string{"message": message, "type": toastType})
}

func isJSONRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
