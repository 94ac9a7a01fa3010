package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/trace"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps the core error taxonomy onto HTTP. Unknown errors are 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err. Server-side failures never echo their cause, so a
// rolled back transaction cannot leak a partial-success message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		fields := applog.NewFields().WithError(err)
		fields[applog.FieldPath] = r.URL.Path
		if m := currentMember(r.Context()); m.HouseholdID != 0 {
			fields.WithHousehold(m.HouseholdID, m.UserID)
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code, RequestID: trace.GetRequestID(r.Context())})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code, RequestID: trace.GetRequestID(r.Context())})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusNotFound, "not_found", "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry in a minute")
}
