package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/payment"
	"github.com/fjod/book_market/internal/repository"
	"github.com/fjod/book_market/internal/service"
	"github.com/sony/gobreaker/v2"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// respondServiceError maps service and repository errors to HTTP replies.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var partial *service.PartialCommitError
	switch {
	case errors.As(err, &partial):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   service.ErrPartialCommit.Error(),
			Code:    "partial_commit",
			Details: partial.Error(),
		})
	case errors.Is(err, service.ErrIdentityMissing):
		respondError(w, http.StatusUnauthorized, "identity_missing", err.Error())
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, service.ErrCommitInProgress):
		respondError(w, http.StatusConflict, "commit_in_progress", err.Error())
	case errors.Is(err, service.ErrPaymentMismatch):
		respondError(w, http.StatusConflict, "payment_mismatch", err.Error())
	case errors.Is(err, service.ErrUnsettled):
		respondError(w, http.StatusConflict, "checkout_unsettled", err.Error())
	case errors.Is(err, repository.ErrListingExists):
		respondError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, payment.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidListing),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrAddressRequired),
		errors.Is(err, service.ErrInvalidProfile),
		errors.Is(err, payment.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, repository.ErrBookNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrAddressNotFound),
		errors.Is(err, repository.ErrWishlistItemNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrSellerNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, payment.ErrGatewayRejected):
		respondError(w, http.StatusBadGateway, "payment_gateway", err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "payment gateway temporarily unavailable")
	default:
		log.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", getRequestID(r.Context())),
			slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
