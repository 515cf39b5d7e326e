package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/pkg/httpclient"
)

// OrderClient talks to the order service.
type OrderClient struct {
	base
}

// NewOrderClient creates an order client rooted at baseURL.
func NewOrderClient(doer HTTPDoer, baseURL string) *OrderClient {
	return &OrderClient{base: newBase(doer, baseURL, "order")}
}

func orderPath(id int64) string {
	return "/api/v1/orders/" + strconv.FormatInt(id, 10)
}

type createdOrder struct {
	ID int64 `json:"id"`
}

// CreateOrder creates an order and returns the id assigned by the order
// service. Callers must treat a non-positive id as a failed creation.
func (c *OrderClient) CreateOrder(ctx context.Context, in *domain.CreateOrderInput) (int64, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/orders", in)
	if err != nil {
		return 0, err
	}
	if !isSuccess(resp) {
		return 0, httpclient.ParseResponseError(resp, c.service)
	}

	created, err := decode[createdOrder](resp, c.service)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// GetOrder fetches an order, including its document number.
func (c *OrderClient) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	resp, err := c.do(ctx, http.MethodGet, orderPath(id), nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp) {
		return nil, httpclient.ParseResponseError(resp, c.service)
	}

	order, err := decode[domain.Order](resp, c.service)
	if err != nil {
		return nil, err
	}
	if order.DocumentNo == "" {
		return nil, fmt.Errorf("order %d has no document number: %w", id, ErrMalformedResponse)
	}
	return order, nil
}

// DeleteOrder removes an order.
func (c *OrderClient) DeleteOrder(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, http.MethodDelete, orderPath(id), nil)
	if err != nil {
		return err
	}
	return c.expectSuccess(resp)
}
