package domain

// OrderStatus mirrors the order service's status codes.
type OrderStatus int

const (
	OrderStatusNew       OrderStatus = 1
	OrderStatusPending   OrderStatus = 2
	OrderStatusPaid      OrderStatus = 3
	OrderStatusShipping  OrderStatus = 4
	OrderStatusShipped   OrderStatus = 5
	OrderStatusCancelled OrderStatus = 6
	OrderStatusCompleted OrderStatus = 7
	OrderStatusFulfilled OrderStatus = 8
)

// Order is the order service's view of a created order.
type Order struct {
	ID              int64       `json:"id"`
	DocumentNo      string      `json:"document_no"`
	UserName        string      `json:"user_name"`
	TotalPrice      int64       `json:"total_price"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	EmailAddress    string      `json:"email_address"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	InvoiceAddress  string      `json:"invoice_address,omitempty"`
	Status          OrderStatus `json:"status"`
}

// CreateOrderInput is the payload sent to the order service.
type CreateOrderInput struct {
	UserName        string      `json:"user_name"`
	TotalPrice      int64       `json:"total_price"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	EmailAddress    string      `json:"email_address"`
	ShippingAddress string      `json:"shipping_address,omitempty"`
	InvoiceAddress  string      `json:"invoice_address,omitempty"`
	Status          OrderStatus `json:"status"`
}

// NewCreateOrderInput maps a checkout request onto an order payload. The total
// is taken from the cart, never from the request.
func NewCreateOrderInput(username string, req *CheckoutRequest, cart *Cart) *CreateOrderInput {
	return &CreateOrderInput{
		UserName:        username,
		TotalPrice:      cart.TotalPrice(),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		EmailAddress:    req.Email,
		ShippingAddress: req.ShippingAddress,
		InvoiceAddress:  req.InvoiceAddress,
		Status:          OrderStatusNew,
	}
}
