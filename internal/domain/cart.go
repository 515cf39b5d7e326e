package domain

// CartItem is one line of a shopper's basket. Prices are in minor currency units.
type CartItem struct {
	ItemNo    string `json:"item_no"`
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	ItemPrice int64  `json:"item_price"`
}

// LineTotal returns quantity times unit price.
func (i CartItem) LineTotal() int64 {
	return int64(i.Quantity) * i.ItemPrice
}

// Cart is the basket owned by the basket service, keyed by username.
type Cart struct {
	Username string     `json:"username"`
	Items    []CartItem `json:"items"`
}

// TotalPrice is the sum of all line totals. It is the authoritative amount
// charged for an order, whatever the client claimed.
func (c *Cart) TotalPrice() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// IsEmpty reports whether the cart is missing or has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}
