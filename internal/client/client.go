// Package client contains the HTTP gateways to the basket, order and
// inventory services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/utafrali/checkout-saga/pkg/httpclient"
)

// ErrMalformedResponse is returned when a 2xx response cannot be decoded or
// lacks a required field.
var ErrMalformedResponse = errors.New("malformed downstream response")

// maxBody bounds how much of a success response is decoded.
const maxBody = 4 << 20

// HTTPDoer is implemented by *httpclient.Client and *httpclient.CircuitBreakerClient.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// envelope is the {"data": ...} wrapper every platform service responds with.
type envelope[T any] struct {
	Data *T `json:"data"`
}

type base struct {
	http    HTTPDoer
	baseURL string
	service string
}

func newBase(doer HTTPDoer, baseURL, service string) base {
	return base{http: doer, baseURL: strings.TrimRight(baseURL, "/"), service: service}
}

// do sends a JSON request. path must already be escaped.
func (b *base) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", b.service, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", b.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", b.service, method, path, err)
	}
	return resp, nil
}

// decode reads the data member of a success envelope and closes the body.
func decode[T any](resp *http.Response, service string) (*T, error) {
	defer func() { _ = resp.Body.Close() }()

	var env envelope[T]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w: %w", service, ErrMalformedResponse, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%s: response has no data: %w", service, ErrMalformedResponse)
	}
	return env.Data, nil
}

// discard drains and closes a body so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	_ = resp.Body.Close()
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// expectSuccess turns a non-2xx response into an error and closes it.
func (b *base) expectSuccess(resp *http.Response) error {
	if isSuccess(resp) {
		discard(resp)
		return nil
	}
	return httpclient.ParseResponseError(resp, b.service)
}
