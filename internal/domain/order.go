package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the fulfilment state of an order.
type OrderState string

const (
	OrderPending    OrderState = "pending"
	OrderPaid       OrderState = "paid"
	OrderProcessing OrderState = "processing"
	OrderShipped    OrderState = "shipped"
	OrderDelivered  OrderState = "delivered"
	OrderCancelled  OrderState = "cancelled"
)

var orderTransitions = map[OrderState][]OrderState{
	OrderPending:    {OrderPaid, OrderCancelled},
	OrderPaid:       {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

// ParseOrderState accepts canonical and legacy tokens.
func ParseOrderState(s string) (OrderState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "pendente":
		return OrderPending, true
	case "paid", "pago":
		return OrderPaid, true
	case "processing", "processando":
		return OrderProcessing, true
	case "shipped", "enviado":
		return OrderShipped, true
	case "delivered", "entregue":
		return OrderDelivered, true
	case "cancelled", "canceled", "cancelado":
		return OrderCancelled, true
	}
	return "", false
}

// CanTransitionTo reports whether s → next is an allowed move.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentMethod is how the buyer intends to pay.
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
	PaymentBoleto     PaymentMethod = "boleto"
)

// ParsePaymentMethod accepts canonical and legacy tokens.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit_card", "cartao_credito":
		return PaymentCreditCard, true
	case "debit_card", "cartao_debito":
		return PaymentDebitCard, true
	case "pix":
		return PaymentPix, true
	case "boleto":
		return PaymentBoleto, true
	}
	return "", false
}

// DeliveryInfo is the shipping block of an order.
type DeliveryInfo struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Phone   string `json:"phone"`
}

// Validate returns an ErrValidation listing every missing or malformed field.
func (d DeliveryInfo) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Address) == "" {
		fields["address"] = "endereço é obrigatório"
	}
	if strings.TrimSpace(d.City) == "" {
		fields["city"] = "cidade é obrigatória"
	}
	switch st := strings.TrimSpace(d.State); {
	case st == "":
		fields["state"] = "estado é obrigatório"
	case len(st) != 2:
		fields["state"] = "use a sigla do estado com 2 letras"
	}
	if strings.TrimSpace(d.Zip) == "" {
		fields["zip"] = "CEP é obrigatório"
	}
	if strings.TrimSpace(d.Phone) == "" {
		fields["phone"] = "telefone é obrigatório"
	}
	if len(fields) > 0 {
		return &ErrValidation{Fields: fields}
	}
	return nil
}

// Order is an immutable snapshot of a checked-out cart.
type Order struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	CartID        string          `json:"cartId"`
	Items         []OrderItem     `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Delivery      DeliveryInfo    `json:"delivery"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Notes         string          `json:"notes,omitempty"`
	State         OrderState      `json:"state"`
	PaymentRef    string          `json:"paymentRef,omitempty"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Owner implements authz.Owned.
func (o *Order) Owner() string { return o.OwnerID }

// Kind implements authz.Owned.
func (o *Order) Kind() string { return "order" }

// Key implements authz.Owned.
func (o *Order) Key() string { return o.ID }

// OrderItem is a frozen order line. ProductID is kept as plain data so that
// deleting the product never touches historical orders.
type OrderItem struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	Subtotal          decimal.Decimal `json:"subtotal"`
}

// FreezeCart copies the cart lines into order lines and computes the total.
// IDs are left for the caller to assign.
func FreezeCart(c *Cart) ([]OrderItem, decimal.Decimal) {
	items := make([]OrderItem, 0, len(c.Items))
	total := decimal.Zero
	for _, it := range c.Items {
		sub := it.Subtotal()
		items = append(items, OrderItem{
			ProductID:         it.ProductID,
			ProductName:       it.ProductName,
			Quantity:          it.Quantity,
			UnitPriceSnapshot: it.UnitPriceSnapshot,
			Subtotal:          sub,
		})
		total = total.Add(sub)
	}
	return items, total
}

// CheckoutRequest is the body for POST /v1/cart/checkout. CartID and
// CartVersion pin the cart the client last saw; when set, a cart that was
// already checked out or changed since then is a conflict. An unpinned retry
// of a successful checkout sees the next, empty cart and fails validation.
type CheckoutRequest struct {
	CartID        string       `json:"cartId,omitempty"`
	CartVersion   int64        `json:"cartVersion,omitempty"`
	Delivery      DeliveryInfo `json:"delivery"`
	PaymentMethod string       `json:"paymentMethod"`
	Notes         string       `json:"notes,omitempty"`
}

// UpdateOrderStateRequest is the body for PATCH /v1/admin/orders/{orderId}/status.
type UpdateOrderStateRequest struct {
	State string `json:"state"`
}
