// Package response provides utilities for sending consistent HTTP responses.
// It includes helpers for JSON responses and standardized error responses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
	"github.com/ndewijer/networth-tracker/internal/validation"
)

// ErrorResponse represents a structured error response returned by the API.
// The Details field is optional and can contain additional context about the error.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// RespondJSON sends a JSON response with the given status code.
// If data is nil, only the status code is sent.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logrus.WithError(err).Error("failed to encode JSON response")
		}
	}
}

// RespondError sends a structured error response with the given status code.
//
// Example:
//
//	response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
func RespondError(w http.ResponseWriter, status int, message string, details interface{}) {
	RespondJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// StatusFor maps an error to the HTTP status it should be reported with.
func StatusFor(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr),
		errors.Is(err, apperrors.ErrInvalidSymbol),
		errors.Is(err, apperrors.ErrInvalidCurrency),
		errors.Is(err, apperrors.ErrInvalidDate),
		errors.Is(err, apperrors.ErrInvalidMode),
		errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrInvalidPeriod),
		errors.Is(err, apperrors.ErrUnknownConfigKey),
		errors.Is(err, apperrors.ErrInvalidConfigValue):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrAgentNotFound), errors.Is(err, apperrors.ErrAssetNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrAgentRunning), errors.Is(err, apperrors.ErrAgentNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError sends err with the status from StatusFor. message is used for server errors;
// client errors report the error text itself.
func RespondServiceError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		RespondError(w, status, message, err.Error())
		return
	}
	RespondError(w, status, err.Error(), nil)
}
