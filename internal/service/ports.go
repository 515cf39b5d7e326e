package service

import (
	"context"

	"github.com/utafrali/checkout-saga/internal/domain"
)

// BasketClient reads and clears a user's cart.
type BasketClient interface {
	GetCart(ctx context.Context, username string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, username string) (bool, error)
}

// OrderClient creates, reads and removes orders.
type OrderClient interface {
	CreateOrder(ctx context.Context, in *domain.CreateOrderInput) (int64, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// InventoryClient debits stock and undoes debits.
type InventoryClient interface {
	CreateSale(ctx context.Context, itemNo string, quantity int, externalDocumentNo string) (string, error)
	DeleteSaleByDocumentNo(ctx context.Context, documentNo string) error
}

// EventPublisher announces finished checkouts.
type EventPublisher interface {
	PublishOutcome(ctx context.Context, r *domain.CheckoutResult) error
}
