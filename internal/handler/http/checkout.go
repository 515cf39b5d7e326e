package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/utafrali/checkout-saga/internal/domain"
	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/httputil"
	"github.com/utafrali/checkout-saga/pkg/pagination"
	"github.com/utafrali/checkout-saga/pkg/validator"
)

const maxBodyBytes = 1 << 20

// CheckoutService is the part of service.CheckoutService the handler uses.
type CheckoutService interface {
	Checkout(ctx context.Context, username string, req *domain.CheckoutRequest) *domain.CheckoutResult
	GetAttempt(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error)
	ListAttempts(ctx context.Context, username string, page pagination.Params) (pagination.Result[domain.CheckoutAttempt], error)
}

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// Checkout handles POST /api/v1/checkout/{username}. total_price is an integer
// in minor currency units, like every price the basket and order services
// exchange. A committed checkout answers 200 with the result; any other
// outcome answers with an error whose code is the outcome kind and whose
// details carry the result.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.CheckoutRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: bodyErrorMessage(err)},
		})
		return
	}

	res := h.service.Checkout(r.Context(), username, &req)
	if res.Succeeded() {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
		return
	}

	var details any = res
	var valErr *validator.ValidationError
	if errors.As(res.Err, &valErr) {
		details = valErr.Fields()
	}
	httputil.WriteErrorWithDetails(w, r, outcomeError(res), details, h.logger)
}

func bodyErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "total_price" {
		return "total_price must be an integer amount in minor currency units"
	}
	return "invalid request body: " + err.Error()
}

// outcomeError maps a failed checkout to the error written to the client.
func outcomeError(res *domain.CheckoutResult) *apperrors.AppError {
	var err *apperrors.AppError
	switch res.Kind {
	case domain.OutcomeInvalidRequest:
		err = apperrors.InvalidInput(res.Error())
	case domain.OutcomeCartNotFound:
		err = apperrors.NotFound("cart", res.Username)
	case domain.OutcomeCheckoutInProgress:
		err = apperrors.Conflict("a checkout for this user is already in progress")
	case domain.OutcomeInventoryDebitFailed:
		err = apperrors.Conflict(fmt.Sprintf("item %s could not be debited", res.FailedItemNo))
	case domain.OutcomeOrderCreationFailed:
		err = apperrors.Unprocessable("order could not be created")
	case domain.OutcomeCartDeletionFailed:
		err = apperrors.Unprocessable("cart could not be cleared")
	case domain.OutcomeOrderLookupFailed:
		err = apperrors.ServiceUnavailable("created order could not be read back")
	case domain.OutcomeLockUnavailable:
		err = apperrors.ServiceUnavailable("checkout lock is unavailable")
	case domain.OutcomeCompensationIncomplete:
		err = apperrors.ServiceUnavailable("checkout failed and could not be fully rolled back")
	default:
		err = apperrors.Internal(res.Err)
	}
	return err.WithCode(string(res.Kind))
}

// GetAttempt handles GET /api/v1/checkout/attempts/{id}.
func (h *CheckoutHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	attempt, err := h.service.GetAttempt(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: attempt})
}

// ListAttempts handles GET /api/v1/checkout/users/{username}/attempts?page=N&per_page=M.
func (h *CheckoutHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.ListAttempts(r.Context(), chi.URLParam(r, "username"), page)
	if err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			httputil.WriteValidationError(w, err)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
