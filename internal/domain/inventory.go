package domain

// DocumentTypeSale marks an inventory entry as a stock debit.
const DocumentTypeSale = "sale"

// SaleInput is the body of a sale request to the inventory service.
// Quantity is positive; the inventory service records it as a negative movement.
type SaleInput struct {
	ExternalDocumentNo string `json:"external_document_no"`
	Quantity           int    `json:"quantity"`
	DocumentType       string `json:"document_type"`
}

// InventorySaleRecord is the inventory entry created by a sale. DocumentNo is
// the key used to undo it.
type InventorySaleRecord struct {
	ID                 string `json:"id,omitempty"`
	DocumentNo         string `json:"document_no"`
	ItemNo             string `json:"item_no"`
	Quantity           int    `json:"quantity"`
	DocumentType       string `json:"document_type,omitempty"`
	ExternalDocumentNo string `json:"external_document_no"`
}
