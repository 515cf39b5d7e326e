package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/checkout-saga/internal/domain"
	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/health"
	"github.com/utafrali/checkout-saga/pkg/pagination"
	"github.com/utafrali/checkout-saga/pkg/validator"
)

// --- Mock Checkout Service ---

type mockCheckoutService struct {
	mock.Mock
}

func (m *mockCheckoutService) Checkout(ctx context.Context, username string, req *domain.CheckoutRequest) *domain.CheckoutResult {
	args := m.Called(ctx, username, req)
	return args.Get(0).(*domain.CheckoutResult)
}

func (m *mockCheckoutService) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutAttempt), args.Error(1)
}

func (m *mockCheckoutService) ListAttempts(ctx context.Context, username string, page pagination.Params) (pagination.Result[domain.CheckoutAttempt], error) {
	args := m.Called(ctx, username, page)
	return args.Get(0).(pagination.Result[domain.CheckoutAttempt]), args.Error(1)
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRouter(svc *mockCheckoutService) http.Handler {
	return NewRouter(svc, health.NewHandler(), RouterConfig{ServiceName: "checkout-service-test"}, testLogger())
}

type response struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
		Details json.RawMessage   `json:"details"`
	} `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func checkoutBody() []byte {
	return []byte(`{"total_price":25,"first_name":"Alice","last_name":"Liddell","email":"alice@example.com"}`)
}

func postCheckout(t *testing.T, h http.Handler, username string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/"+username, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// POST /api/v1/checkout/{username}
// ---------------------------------------------------------------------------

func TestCheckout_Success(t *testing.T) {
	svc := &mockCheckoutService{}
	result := &domain.CheckoutResult{
		ID:              uuid.New(),
		Kind:            domain.OutcomeSuccess,
		Username:        "alice",
		OrderID:         7,
		OrderDocumentNo: "ORD-7",
		TotalPrice:      25,
	}
	svc.On("Checkout", mock.Anything, "alice", mock.MatchedBy(func(req *domain.CheckoutRequest) bool {
		return req.TotalPrice == 25 && req.Email == "alice@example.com"
	})).Return(result)

	rec := postCheckout(t, setupRouter(svc), "alice", checkoutBody())

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	var got domain.CheckoutResult
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, domain.OutcomeSuccess, got.Kind)
	assert.Equal(t, "ORD-7", got.OrderDocumentNo)
	svc.AssertExpectations(t)
}

func TestCheckout_RateLimitedPerUsername(t *testing.T) {
	svc := &mockCheckoutService{}
	svc.On("Checkout", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.CheckoutResult{Kind: domain.OutcomeSuccess})
	h := NewRouter(svc, health.NewHandler(), RouterConfig{
		ServiceName:   "checkout-service-test",
		CheckoutRPS:   0.001,
		CheckoutBurst: 1,
	}, testLogger())

	assert.Equal(t, http.StatusOK, postCheckout(t, h, "alice", checkoutBody()).Code)

	rec := postCheckout(t, h, "alice", checkoutBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeResponse(t, rec).Error.Code)

	assert.Equal(t, http.StatusOK, postCheckout(t, h, "bob", checkoutBody()).Code)
	svc.AssertNumberOfCalls(t, "Checkout", 2)
}

func TestCheckout_FailureOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.CheckoutResult
		status int
	}{
		{"cart not found", &domain.CheckoutResult{Kind: domain.OutcomeCartNotFound}, http.StatusNotFound},
		{"in progress", &domain.CheckoutResult{Kind: domain.OutcomeCheckoutInProgress}, http.StatusConflict},
		{"inventory", &domain.CheckoutResult{Kind: domain.OutcomeInventoryDebitFailed, FailedItemNo: "SKU-2"}, http.StatusConflict},
		{"order creation", &domain.CheckoutResult{Kind: domain.OutcomeOrderCreationFailed}, http.StatusUnprocessableEntity},
		{"cart deletion", &domain.CheckoutResult{Kind: domain.OutcomeCartDeletionFailed}, http.StatusUnprocessableEntity},
		{"order lookup", &domain.CheckoutResult{Kind: domain.OutcomeOrderLookupFailed}, http.StatusServiceUnavailable},
		{"lock unavailable", &domain.CheckoutResult{Kind: domain.OutcomeLockUnavailable}, http.StatusServiceUnavailable},
		{"compensation incomplete", &domain.CheckoutResult{
			Kind:         domain.OutcomeCompensationIncomplete,
			Compensation: &domain.CompensationReport{Reason: domain.OutcomeInventoryDebitFailed},
		}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{}
			tt.result.Username = "alice"
			tt.result.Err = errors.New("boom")
			svc.On("Checkout", mock.Anything, "alice", mock.Anything).Return(tt.result)

			rec := postCheckout(t, setupRouter(svc), "alice", checkoutBody())

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.result.Kind), resp.Error.Code)

			var details domain.CheckoutResult
			require.NoError(t, json.Unmarshal(resp.Error.Details, &details))
			assert.Equal(t, tt.result.Kind, details.Kind)
		})
	}
}

func TestCheckout_InventoryFailureNamesItem(t *testing.T) {
	svc := &mockCheckoutService{}
	svc.On("Checkout", mock.Anything, "alice", mock.Anything).Return(&domain.CheckoutResult{
		Kind:         domain.OutcomeInventoryDebitFailed,
		Username:     "alice",
		FailedItemNo: "SKU-2",
	})

	rec := postCheckout(t, setupRouter(svc), "alice", checkoutBody())

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "SKU-2")
}

func TestCheckout_ValidationFailure(t *testing.T) {
	valErr := validator.Validate(&domain.CheckoutRequest{TotalPrice: 1, FirstName: "A", LastName: "B", Email: "bad"})
	require.Error(t, valErr)

	svc := &mockCheckoutService{}
	svc.On("Checkout", mock.Anything, "alice", mock.Anything).Return(&domain.CheckoutResult{
		Kind:     domain.OutcomeInvalidRequest,
		Username: "alice",
		Err:      valErr,
	})

	rec := postCheckout(t, setupRouter(svc), "alice", checkoutBody())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_request", resp.Error.Code)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(resp.Error.Details, &fields))
	assert.Contains(t, fields, "email")
}

func TestCheckout_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"unknown field", `{"total_price":25,"coupon":"FREE"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCheckoutService{}

			rec := postCheckout(t, setupRouter(svc), "alice", []byte(tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_INPUT", decodeResponse(t, rec).Error.Code)
			svc.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCheckout_FractionalTotalPrice(t *testing.T) {
	svc := &mockCheckoutService{}
	body := []byte(`{"total_price":25.50,"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}`)

	rec := postCheckout(t, setupRouter(svc), "alice", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "minor currency units")
	svc.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_RejectsNonJSONContentType(t *testing.T) {
	svc := &mockCheckoutService{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/alice", bytes.NewReader(checkoutBody()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	svc.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
}

// ---------------------------------------------------------------------------
// Attempts
// ---------------------------------------------------------------------------

func TestGetAttempt_Success(t *testing.T) {
	svc := &mockCheckoutService{}
	id := uuid.New()
	svc.On("GetAttempt", mock.Anything, id).Return(&domain.CheckoutAttempt{
		ID:       id,
		Username: "alice",
		Outcome:  domain.OutcomeSuccess,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/attempts/"+id.String(), nil)
	rec := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got domain.CheckoutAttempt
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &got))
	assert.Equal(t, id, got.ID)
}

func TestGetAttempt_InvalidID(t *testing.T) {
	svc := &mockCheckoutService{}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/attempts/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetAttempt", mock.Anything, mock.Anything)
}

func TestGetAttempt_NotFound(t *testing.T) {
	svc := &mockCheckoutService{}
	id := uuid.New()
	svc.On("GetAttempt", mock.Anything, id).Return(nil, apperrors.NotFound("checkout_attempt", id.String()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/attempts/"+id.String(), nil)
	rec := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeResponse(t, rec).Error.Code)
}

func TestListAttempts(t *testing.T) {
	svc := &mockCheckoutService{}
	first := pagination.DefaultParams()
	third := pagination.Params{Page: 3, PerPage: 5}
	svc.On("ListAttempts", mock.Anything, "alice", first).
		Return(pagination.NewResult([]domain.CheckoutAttempt{{Username: "alice"}}, 1, first), nil).Once()
	svc.On("ListAttempts", mock.Anything, "alice", third).
		Return(pagination.NewResult([]domain.CheckoutAttempt{}, 11, third), nil).Once()

	h := setupRouter(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/users/alice/attempts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page pagination.Result[domain.CheckoutAttempt]
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.TotalCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/users/alice/attempts?page=3&per_page=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeResponse(t, rec).Data, &page))
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.HasNext)

	svc.AssertExpectations(t)
}

func TestListAttempts_BadQuery(t *testing.T) {
	for _, query := range []string{"page=ten", "page=0", "per_page=500"} {
		svc := &mockCheckoutService{}

		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/users/alice/attempts?"+query, nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, "INVALID_INPUT", decodeResponse(t, rec).Error.Code, query)
		svc.AssertNotCalled(t, "ListAttempts", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestListAttempts_ServiceErrors(t *testing.T) {
	var empty pagination.Result[domain.CheckoutAttempt]

	t.Run("invalid username", func(t *testing.T) {
		svc := &mockCheckoutService{}
		valErr := validator.Var("username", " ", "username")
		require.Error(t, valErr)
		svc.On("ListAttempts", mock.Anything, " ", pagination.DefaultParams()).Return(empty, valErr)

		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/users/%20/attempts", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeResponse(t, rec).Error.Code)
	})

	t.Run("attempt log disabled", func(t *testing.T) {
		svc := &mockCheckoutService{}
		svc.On("ListAttempts", mock.Anything, "alice", pagination.DefaultParams()).
			Return(empty, apperrors.ServiceUnavailable("checkout attempt log is not configured"))

		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/users/alice/attempts", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

// ---------------------------------------------------------------------------
// Infrastructure routes
// ---------------------------------------------------------------------------

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := setupRouter(&mockCheckoutService{})

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
