package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ledgerlink/internal/domain/item"
	"ledgerlink/internal/infrastructure/provider"
)

type errorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	DaysUntilNext int    `json:"daysUntilNext,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeDomainError maps lifecycle errors onto HTTP statuses. Anything not in
// the map is a 500 with a generic message so internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	var rateErr *item.DeletionRateLimitedError
	var provErr *provider.Error

	switch {
	case errors.Is(err, item.ErrAuthenticationRequired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication_required", Message: "Authentication required"})
	case errors.Is(err, item.ErrSecurityFactorRequired):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "security_factor_required", Message: "A second authentication factor is required"})
	case errors.Is(err, item.ErrSubscriptionRequired):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: "subscription_required", Message: "An active subscription is required"})
	case errors.Is(err, item.ErrConnectionLimitReached):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "connection_limit_reached", Message: "Your plan's connection limit has been reached"})
	case errors.As(err, &rateErr):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:         "deletion_rate_limited",
			Message:       rateErr.Error(),
			DaysUntilNext: rateErr.DaysUntilNext,
		})
	case errors.Is(err, item.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Connection not found"})
	case errors.Is(err, item.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "You do not have access to this connection"})
	case errors.As(err, &provErr) && provErr.Transient():
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "provider_unavailable", Message: "The provider is temporarily unavailable"})
	default:
		log.Printf("Unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "Internal server error"})
	}
}
