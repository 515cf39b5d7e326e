package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/logger"
	"github.com/utafrali/checkout-saga/pkg/validator"
)

// Response is the JSON envelope shared by the checkout API and the services it calls.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   any               `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope for err. AppErrors keep their code and
// status; 5xx errors are logged with the request-scoped logger when one is
// present, otherwise with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	WriteErrorWithDetails(w, r, err, nil, fallback)
}

// WriteErrorWithDetails is WriteError with an extra payload under error.details.
func WriteErrorWithDetails(w http.ResponseWriter, r *http.Request, err error, details any, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	resp := &ErrorResponse{
		Code:      "INTERNAL_ERROR",
		Message:   "an internal error occurred",
		Details:   details,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}
	status := apperrors.HTTPStatus(err)

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		resp.Code = appErr.Code
		resp.Message = appErr.Message
	case errors.Is(err, apperrors.ErrNotFound):
		resp.Code = "NOT_FOUND"
		resp.Message = "resource not found"
	case errors.Is(err, apperrors.ErrInvalidInput):
		resp.Code = "INVALID_INPUT"
		resp.Message = err.Error()
	case errors.Is(err, apperrors.ErrServiceUnavail):
		resp.Code = "SERVICE_UNAVAILABLE"
		resp.Message = "a downstream service is unavailable"
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.Int("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: resp})
}

// WriteValidationError writes a 400 response with field-level messages when
// err is a *validator.ValidationError.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

// ParseUUID parses param as a UUID. On failure it writes a 400 response and
// returns false so the handler can return early.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid UUID: " + param,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}
