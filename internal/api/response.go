package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"gwi.com/todo-assistant/internal/core"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Only the client-safe message of a *core.Error is
// exposed; anything else is logged and reported as a bare 500.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, err, 0)
}

// writeErrorStatus is writeError with the validation status overridden when
// validationStatus is non-zero.
func (h *APIHandler) writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, validationStatus int) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Kind == core.KindInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    core.KindInternal.String(),
			Message: "internal server error",
		})
		return
	}

	status := statusForKind(coreErr.Kind)
	if coreErr.Kind == core.KindValidation && validationStatus != 0 {
		status = validationStatus
	}
	if coreErr.Err != nil && coreErr.Kind == core.KindUpstreamUnavailable {
		h.logger.WarnContext(r.Context(), "upstream unavailable", slog.Any("error", coreErr.Err))
	}
	writeJSON(w, status, ErrorResponse{Code: coreErr.Kind.String(), Message: coreErr.Message})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("request body is required")
		}
		return core.NewValidationError("invalid request body")
	}
	return nil
}
