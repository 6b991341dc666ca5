package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/saptiva-copilot/gateway/internal/apierr"
)

// problemDetails is the RFC 7807 + semantic-code envelope (§4.9 "Error
// envelope"): { type, title, status, detail, code, instance, errors? }.
type problemDetails struct {
	Type         string               `json:"type"`
	Title        string               `json:"title"`
	Status       int                  `json:"status"`
	Detail       string               `json:"detail"`
	Code         string               `json:"code"`
	Instance     string               `json:"instance,omitempty"`
	Errors       []apierr.FieldError  `json:"errors,omitempty"`
	RetryAfterMs int64                `json:"retry_after_ms,omitempty"`
}

// renderJSON writes v as a 200 (or the given status) JSON body.
func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// renderError is the single translation point (§4.9) from a Go error to the
// RFC 7807 wire envelope. Any error that isn't an *apierr.Error is folded
// into a generic 500 INTERNAL_ERROR, never leaking its message.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierr.Internal(err)
	}

	for k, v := range noStoreHeaders {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(problemDetails{
		Type:         "about:blank",
		Title:        apiErr.Title,
		Status:       apiErr.Status,
		Detail:       apiErr.Detail,
		Code:         apiErr.Code,
		Instance:     r.URL.Path,
		Errors:       apiErr.Fields,
		RetryAfterMs: apiErr.RetryAfterMs,
	})
}

var noStoreHeaders = map[string]string{
	"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
}
