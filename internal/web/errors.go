package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical detail and request id, then
// returned to the client as a coded user message from core.MapError. The
// HTTP status comes from statusFor.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/saleimport/internal/accounts"
	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/sheet"
	"github.com/JonMunkholm/saleimport/internal/store"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrInUse),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrNoFile),
		errors.Is(err, accounts.ErrEmailRejected),
		errors.Is(err, sheet.ErrMissingColumns),
		errors.Is(err, sheet.ErrNoHeader),
		errors.Is(err, importer.ErrNoRows):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message with the mapped status.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("request error", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v with the given status. Encoding errors are logged
// because the header is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
