package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is a company's live shopping cart. At most one active cart per owner.
type Cart struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"ownerId"`
	Active    bool       `json:"active"`
	Version   int64      `json:"version"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Owner implements authz.Owned.
func (c *Cart) Owner() string { return c.OwnerID }

// Kind implements authz.Owned.
func (c *Cart) Kind() string { return "cart" }

// Key implements authz.Owned.
func (c *Cart) Key() string { return c.ID }

// Total recomputes the cart total from the current lines. It is never stored.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ItemCount is the sum of line quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Item returns the line with the given id.
func (c *Cart) Item(itemID string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// CartItem is a cart line. UnitPriceSnapshot is the product price at the
// moment the line was first added.
type CartItem struct {
	ID                string          `json:"id"`
	CartID            string          `json:"cartId"`
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	AddedAt           time.Time       `json:"addedAt"`
}

// Subtotal is quantity × unit price snapshot.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPriceSnapshot.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartView is the API shape of a cart, total included.
type CartView struct {
	*Cart
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// NewCartView computes the live total for c.
func NewCartView(c *Cart) *CartView {
	return &CartView{Cart: c, Total: c.Total(), ItemCount: c.ItemCount()}
}

// AddItemRequest is the body for POST /v1/cart/items.
type AddItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity,omitempty"`
}

// UpdateQuantityRequest is the body for PATCH /v1/cart/items/{itemId}.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}
