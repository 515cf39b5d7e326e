package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/pkg/pagination"
)

// AttemptRepository stores finished checkout attempts.
type AttemptRepository interface {
	// Create inserts a finished attempt.
	Create(ctx context.Context, attempt *domain.CheckoutAttempt) error

	// GetByID retrieves an attempt by its identifier.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error)

	// ListByUsername returns one page of the user's attempts, newest first,
	// with the user's total attempt count.
	ListByUsername(ctx context.Context, username string, page pagination.Params) ([]domain.CheckoutAttempt, int, error)
}
