package domain

import (
	"github.com/google/uuid"
)

// OutcomeKind names how a checkout ended.
type OutcomeKind string

const (
	OutcomeSuccess                OutcomeKind = "success"
	OutcomeInvalidRequest         OutcomeKind = "invalid_request"
	OutcomeCheckoutInProgress     OutcomeKind = "checkout_in_progress"
	OutcomeLockUnavailable        OutcomeKind = "lock_unavailable"
	OutcomeCartNotFound           OutcomeKind = "cart_not_found"
	OutcomeOrderCreationFailed    OutcomeKind = "order_creation_failed"
	OutcomeOrderLookupFailed      OutcomeKind = "order_lookup_failed"
	OutcomeInventoryDebitFailed   OutcomeKind = "inventory_debit_failed"
	OutcomeCartDeletionFailed     OutcomeKind = "cart_deletion_failed"
	OutcomeCompensationIncomplete OutcomeKind = "compensation_incomplete"
)

// CompensationReport describes an undo pass. Compensation is best effort:
// failed deletes are reported here and never retried.
type CompensationReport struct {
	Reason                 OutcomeKind `json:"reason"`
	OrderDeleted           bool        `json:"order_deleted"`
	DeletedSaleDocumentNos []string    `json:"deleted_sale_document_nos"`
	FailedSaleDocumentNos  []string    `json:"failed_sale_document_nos,omitempty"`
	Errors                 []string    `json:"errors,omitempty"`
}

// Complete reports whether every undo call succeeded.
func (r *CompensationReport) Complete() bool {
	return r.OrderDeleted && len(r.FailedSaleDocumentNos) == 0
}

// CheckoutResult is the tagged outcome of one checkout saga.
//
// When compensation ran but left records behind, Kind is
// OutcomeCompensationIncomplete and Compensation.Reason holds the failure
// that triggered it.
type CheckoutResult struct {
	ID              uuid.UUID           `json:"id"`
	Kind            OutcomeKind         `json:"kind"`
	Username        string              `json:"username"`
	OrderID         int64               `json:"order_id,omitempty"`
	OrderDocumentNo string              `json:"order_document_no,omitempty"`
	TotalPrice      int64               `json:"total_price,omitempty"`
	SaleDocumentNos []string            `json:"sale_document_nos,omitempty"`
	FailedItemNo    string              `json:"failed_item_no,omitempty"`
	Compensation    *CompensationReport `json:"compensation,omitempty"`
	Steps           []SagaStep          `json:"steps"`
	Err             error               `json:"-"`
}

// Succeeded reports whether the checkout committed.
func (r *CheckoutResult) Succeeded() bool {
	return r.Kind == OutcomeSuccess
}

// Cause returns the failure that ended the saga, looking through an
// incomplete compensation to the step that triggered it.
func (r *CheckoutResult) Cause() OutcomeKind {
	if r.Kind == OutcomeCompensationIncomplete && r.Compensation != nil {
		return r.Compensation.Reason
	}
	return r.Kind
}

// Error returns the message of Err, or "".
func (r *CheckoutResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
