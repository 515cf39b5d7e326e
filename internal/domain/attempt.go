package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutAttempt is the stored record of a finished checkout. It is written
// once after the saga ends and is never used to resume one.
type CheckoutAttempt struct {
	ID              uuid.UUID           `json:"id"`
	Username        string              `json:"username"`
	Outcome         OutcomeKind         `json:"outcome"`
	OrderID         int64               `json:"order_id,omitempty"`
	OrderDocumentNo string              `json:"order_document_no,omitempty"`
	TotalPrice      int64               `json:"total_price"`
	SaleDocumentNos []string            `json:"sale_document_nos"`
	FailedItemNo    string              `json:"failed_item_no,omitempty"`
	Compensation    *CompensationReport `json:"compensation,omitempty"`
	Steps           []SagaStep          `json:"steps"`
	Error           string              `json:"error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// NewCheckoutAttempt snapshots a result for storage.
func NewCheckoutAttempt(r *CheckoutResult) *CheckoutAttempt {
	saleDocs := r.SaleDocumentNos
	if saleDocs == nil {
		saleDocs = []string{}
	}
	steps := r.Steps
	if steps == nil {
		steps = []SagaStep{}
	}
	return &CheckoutAttempt{
		ID:              r.ID,
		Username:        r.Username,
		Outcome:         r.Kind,
		OrderID:         r.OrderID,
		OrderDocumentNo: r.OrderDocumentNo,
		TotalPrice:      r.TotalPrice,
		SaleDocumentNos: saleDocs,
		FailedItemNo:    r.FailedItemNo,
		Compensation:    r.Compensation,
		Steps:           steps,
		Error:           r.Error(),
		CreatedAt:       time.Now().UTC(),
	}
}
