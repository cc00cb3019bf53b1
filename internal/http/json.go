package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/target/towertrack-portal/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode, "message": p.Err.Error()}
	if p.Field != "" {
		body["field"] = p.Field
	}
	WriteJSON(w, p.Code, body)
}

// WriteAppError maps an application error onto a status code and writes it.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	msg := err
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = errors.New(appErr.Message)
	}
	WriteError(w, ErrorParams{Code: StatusFor(err), ErrCode: string(code), Err: msg, Field: apperrors.GetField(err)})
}

// StatusFor returns the HTTP status matching an application error code.
func StatusFor(err error) int {
	switch {
	case apperrors.IsUnauthenticated(err), apperrors.IsInvalidCredentials(err):
		return http.StatusUnauthorized
	case apperrors.IsUnauthorized(err):
		return http.StatusForbidden
	case apperrors.IsValidation(err), apperrors.IsPopupClosed(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsNetwork(err), apperrors.IsRoleFetchFailed(err), apperrors.IsSessionEstablish(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
