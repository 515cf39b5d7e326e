package domain

// CheckoutRequest carries the customer details submitted with a checkout.
// TotalPrice is what the client believes it owes, in minor currency units;
// it is validated but the order is always priced from the cart.
type CheckoutRequest struct {
	TotalPrice      int64  `json:"total_price" validate:"gt=0"`
	FirstName       string `json:"first_name" validate:"required,max=250"`
	LastName        string `json:"last_name" validate:"required,max=250"`
	Email           string `json:"email" validate:"required,email"`
	ShippingAddress string `json:"shipping_address,omitempty" validate:"max=500"`
	InvoiceAddress  string `json:"invoice_address,omitempty" validate:"max=500"`
}
