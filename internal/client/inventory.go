package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/pkg/httpclient"
)

// InventoryClient talks to the inventory service.
type InventoryClient struct {
	base
}

// NewInventoryClient creates an inventory client rooted at baseURL.
func NewInventoryClient(doer HTTPDoer, baseURL string) *InventoryClient {
	return &InventoryClient{base: newBase(doer, baseURL, "inventory")}
}

// CreateSale debits quantity units of itemNo against the order identified by
// externalDocumentNo and returns the document number of the sale record.
func (c *InventoryClient) CreateSale(ctx context.Context, itemNo string, quantity int, externalDocumentNo string) (string, error) {
	body := domain.SaleInput{
		ExternalDocumentNo: externalDocumentNo,
		Quantity:           quantity,
		DocumentType:       domain.DocumentTypeSale,
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/inventory/sales/"+url.PathEscape(itemNo), body)
	if err != nil {
		return "", err
	}
	if !isSuccess(resp) {
		return "", httpclient.ParseResponseError(resp, c.service)
	}

	record, err := decode[domain.InventorySaleRecord](resp, c.service)
	if err != nil {
		return "", err
	}
	if record.DocumentNo == "" {
		return "", fmt.Errorf("sale of %s has no document number: %w", itemNo, ErrMalformedResponse)
	}
	return record.DocumentNo, nil
}

// DeleteSaleByDocumentNo removes every inventory entry carrying documentNo.
func (c *InventoryClient) DeleteSaleByDocumentNo(ctx context.Context, documentNo string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/inventory/document-no/"+url.PathEscape(documentNo), nil)
	if err != nil {
		return err
	}
	return c.expectSuccess(resp)
}
