package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_tickets/internal/checkout"
	"github.com/fjod/go_tickets/internal/domain"
	"github.com/fjod/go_tickets/internal/logger"
	"github.com/fjod/go_tickets/internal/payment"
	"github.com/fjod/go_tickets/internal/repository"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondServiceError is the single place service errors become HTTP statuses.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var declined *payment.DeclineError
	var invalid *domain.ValidationError

	switch {
	case errors.As(err, &invalid):
		respondError(w, http.StatusBadRequest, "validation_failed", invalid.Error())
	case errors.Is(err, checkout.ErrAmountMismatch):
		respondError(w, http.StatusBadRequest, "amount_mismatch", err.Error())
	case errors.Is(err, repository.ErrInvalidID):
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid cart item id")
	case errors.Is(err, repository.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", "cart item not found")
	case errors.Is(err, payment.ErrIntentNotFound):
		respondError(w, http.StatusNotFound, "not_found", "payment intent not found")
	case errors.As(err, &declined):
		respondError(w, http.StatusPaymentRequired, "payment_declined", declined.Message)
	case errors.Is(err, checkout.ErrPaymentNotSucceeded):
		respondError(w, http.StatusPaymentRequired, "payment_not_succeeded", "payment has not succeeded")
	case errors.Is(err, repository.ErrTransient):
		logFailure(r, log, err)
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", "cart storage temporarily unavailable")
	case errors.Is(err, payment.ErrUnavailable):
		logFailure(r, log, err)
		respondError(w, http.StatusServiceUnavailable, "payment_unavailable", "payment processor unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		logFailure(r, log, err)
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logFailure(r, log, err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func logFailure(r *http.Request, log *zap.Logger, err error) {
	logger.WithContext(r.Context(), log).Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
