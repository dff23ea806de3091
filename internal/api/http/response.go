package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// insufficientCreditsResponse tells the client how many credits are missing so
// it can offer a top-up.
type insufficientCreditsResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Balance   int64  `json:"balance"`
	Required  int64  `json:"required"`
	Shortfall int64  `json:"shortfall"`
	TopUp     bool   `json:"top_up"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *domain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusPaymentRequired, insufficientCreditsResponse{
			Error:     "insufficient_credits",
			Message:   insufficient.Error(),
			Balance:   insufficient.Balance,
			Required:  insufficient.Required,
			Shortfall: insufficient.Shortfall,
			TopUp:     true,
		})
		return
	}

	var invalid *domain.ValidationError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: invalid.Message, Field: invalid.Field})
		return
	}

	status, code := statusFor(err)
	// A canceled request means the client went away, not a server fault.
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: code, Message: publicMessage(status, err)})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}

// publicMessage hides internal error details from clients on server faults.
func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
