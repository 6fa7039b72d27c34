package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/services"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func statusFor(err error) int {
	var verr *apperrors.ErrValidation
	switch {
	case errors.As(err, &verr),
		errors.Is(err, apperrors.ErrInvalidQuote),
		errors.Is(err, apperrors.ErrUnknownAsset):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrMissingRate):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrOutOfOrder),
		errors.Is(err, apperrors.ErrDuplicateTimestamp),
		errors.Is(err, services.ErrIngestionRunning):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrStaleRate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var verr *apperrors.ErrValidation
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, field, msg string) {
	writeError(w, &apperrors.ErrValidation{Field: field, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
