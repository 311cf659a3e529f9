package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"potluck"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    potluck.Kind `json:"kind"`
	Message string       `json:"message"`
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind potluck.Kind) int {
	switch kind {
	case potluck.KindValidation:
		return http.StatusBadRequest
	case potluck.KindNotFound:
		return http.StatusNotFound
	case potluck.KindForbidden:
		return http.StatusForbidden
	case potluck.KindInvalidState, potluck.KindConflict:
		return http.StatusConflict
	case potluck.KindGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("API: Failed to encode response", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := potluck.KindOf(err)
	status := statusFor(kind)

	message := potluck.Message(err)
	if kind == potluck.KindInternal {
		slog.Error("API: Internal error", "error", err, "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()))
		message = "internal error"
	} else {
		slog.Info("API: Request rejected", "kind", kind, "error", err, "path", r.URL.Path)
	}

	writeJSON(w, r, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}
