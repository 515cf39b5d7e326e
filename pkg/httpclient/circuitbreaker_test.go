package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func get(t *testing.T, cb *CircuitBreakerClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return cb.Do(context.Background(), req)
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("basket-closed"), testLogger())

	resp, err := get(t, cb, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, "basket-closed", cb.Name())
}

func TestCircuitBreaker_ServerErrorIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"SERVICE_UNAVAILABLE","message":"draining"}}`))
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("inventory-typed"), testLogger())

	_, err := get(t, cb, server.URL)
	require.Error(t, err)

	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}

func TestCircuitBreaker_TripsOnFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testCBConfig("order-trip")
	cfg.Timeout = 5 * time.Second
	cb := NewCircuitBreakerClient(New(fastConfig(0)), cfg, testLogger())

	for i := 0; i < 3; i++ {
		_, _ = get(t, cb, server.URL)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := get(t, cb, server.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestCircuitBreaker_4xxNotCountedAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("basket-4xx"), testLogger())

	for i := 0; i < 5; i++ {
		resp, err := get(t, cb, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_WithFallback_InvokedWhenOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testCBConfig("inventory-fallback")
	cfg.Timeout = 5 * time.Second
	cb := NewCircuitBreakerClient(New(fastConfig(0)), cfg, testLogger()).
		WithFallback(func(ctx context.Context, err error) (*http.Response, error) {
			return nil, apperrors.ServiceUnavailable("inventory is unavailable")
		})

	for i := 0; i < 3; i++ {
		_, _ = get(t, cb, server.URL)
	}

	_, err := get(t, cb, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.False(t, errors.Is(err, ErrCircuitOpen))
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("order-cancel"), testLogger())

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := cb.Do(ctx, req)
		require.Error(t, err)
		cancel()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
