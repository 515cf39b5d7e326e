package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/checkout-saga/internal/domain"
	"github.com/utafrali/checkout-saga/pkg/database"
	apperrors "github.com/utafrali/checkout-saga/pkg/errors"
	"github.com/utafrali/checkout-saga/pkg/pagination"
)

const attemptColumns = `id, username, outcome, order_id, order_document_no, total_price,
			sale_document_nos, failed_item_no, compensation, steps, error, created_at`

// AttemptRepository implements repository.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	db      database.DBTX
	queries *database.QueryObserver
}

// NewAttemptRepository creates a new PostgreSQL-backed attempt repository.
// queries may be nil.
func NewAttemptRepository(db database.DBTX, queries *database.QueryObserver) *AttemptRepository {
	return &AttemptRepository{db: db, queries: queries}
}

// Create inserts a finished checkout attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) error {
	saleDocsJSON, err := json.Marshal(a.SaleDocumentNos)
	if err != nil {
		return fmt.Errorf("marshal sale document numbers: %w", err)
	}

	stepsJSON, err := json.Marshal(a.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var compensationJSON []byte
	if a.Compensation != nil {
		compensationJSON, err = json.Marshal(a.Compensation)
		if err != nil {
			return fmt.Errorf("marshal compensation: %w", err)
		}
	}

	query := `
		INSERT INTO checkout_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := r.queries.Start(ctx, "CreateCheckoutAttempt", query)
	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.Username,
		string(a.Outcome),
		nullableInt64(a.OrderID),
		nullableString(a.OrderDocumentNo),
		a.TotalPrice,
		saleDocsJSON,
		nullableString(a.FailedItemNo),
		compensationJSON,
		stepsJSON,
		nullableString(a.Error),
		a.CreatedAt,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("insert checkout attempt: %w", err)
	}

	return nil
}

// GetByID retrieves a checkout attempt by its ID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CheckoutAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM checkout_attempts
		WHERE id = $1`

	ctx, end := r.queries.Start(ctx, "GetCheckoutAttempt", query)
	attempt, err := scanAttempt(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		end(nil)
		return nil, apperrors.NotFound("checkout_attempt", id.String())
	}
	end(err)
	if err != nil {
		return nil, fmt.Errorf("get checkout attempt: %w", err)
	}
	return attempt, nil
}

// ListByUsername returns one page of attempts for username, newest first,
// together with the total number of attempts the user has.
func (r *AttemptRepository) ListByUsername(ctx context.Context, username string, page pagination.Params) (_ []domain.CheckoutAttempt, _ int, err error) {
	// count(*) OVER() is evaluated before LIMIT, so every row carries the total.
	query := `
		SELECT ` + attemptColumns + `,
			count(*) OVER() AS total_count
		FROM checkout_attempts
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, end := r.queries.Start(ctx, "ListCheckoutAttempts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, username, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list checkout attempts: %w", err)
	}
	defer rows.Close()

	var totalCount int
	attempts := []domain.CheckoutAttempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan checkout attempt row: %w", err)
		}
		attempts = append(attempts, *attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate checkout attempt rows: %w", err)
	}

	return attempts, totalCount, nil
}

// scanAttempt reads one row from either a pgx.Row or pgx.Rows. Columns
// selected after attemptColumns are scanned into extra.
func scanAttempt(row pgx.Row, extra ...any) (*domain.CheckoutAttempt, error) {
	var (
		a                domain.CheckoutAttempt
		outcome          string
		orderID          *int64
		orderDocumentNo  *string
		saleDocsJSON     []byte
		failedItemNo     *string
		compensationJSON []byte
		stepsJSON        []byte
		errMsg           *string
	)

	dest := []any{
		&a.ID,
		&a.Username,
		&outcome,
		&orderID,
		&orderDocumentNo,
		&a.TotalPrice,
		&saleDocsJSON,
		&failedItemNo,
		&compensationJSON,
		&stepsJSON,
		&errMsg,
		&a.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	a.Outcome = domain.OutcomeKind(outcome)
	if orderID != nil {
		a.OrderID = *orderID
	}
	if orderDocumentNo != nil {
		a.OrderDocumentNo = *orderDocumentNo
	}
	if failedItemNo != nil {
		a.FailedItemNo = *failedItemNo
	}
	if errMsg != nil {
		a.Error = *errMsg
	}

	if err := json.Unmarshal(saleDocsJSON, &a.SaleDocumentNos); err != nil {
		return nil, fmt.Errorf("unmarshal sale document numbers: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &a.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if len(compensationJSON) > 0 {
		a.Compensation = &domain.CompensationReport{}
		if err := json.Unmarshal(compensationJSON, a.Compensation); err != nil {
			return nil, fmt.Errorf("unmarshal compensation: %w", err)
		}
	}

	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt64(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}
