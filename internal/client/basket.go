package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/pkg/httpclient"
)

// BasketClient talks to the basket service.
type BasketClient struct {
	base
}

// NewBasketClient creates a basket client rooted at baseURL.
func NewBasketClient(doer HTTPDoer, baseURL string) *BasketClient {
	return &BasketClient{base: newBase(doer, baseURL, "basket")}
}

func basketPath(username string) string {
	return "/api/baskets/" + url.PathEscape(username)
}

// GetCart returns the user's cart, or nil when the basket service reports
// not found or the cart has no items. Transport failures and unexpected
// statuses are returned as errors so callers can log them.
func (c *BasketClient) GetCart(ctx context.Context, username string) (*domain.Cart, error) {
	resp, err := c.do(ctx, http.MethodGet, basketPath(username), nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		discard(resp)
		return nil, nil
	}
	if !isSuccess(resp) {
		return nil, httpclient.ParseResponseError(resp, c.service)
	}

	cart, err := decode[domain.Cart](resp, c.service)
	if err != nil {
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, nil
	}
	if cart.Username == "" {
		cart.Username = username
	}
	return cart, nil
}

// DeleteCart reports whether the basket service accepted the delete. A
// non-2xx answer is (false, nil); only transport failures return an error.
func (c *BasketClient) DeleteCart(ctx context.Context, username string) (bool, error) {
	resp, err := c.do(ctx, http.MethodDelete, basketPath(username), nil)
	if err != nil {
		return false, err
	}
	ok := isSuccess(resp)
	discard(resp)
	return ok, nil
}
