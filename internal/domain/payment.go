package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState tracks the gateway side of an order payment.
type PaymentState string

const (
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentApproved   PaymentState = "approved"
	PaymentRejected   PaymentState = "rejected"
	PaymentCancelled  PaymentState = "cancelled"
)

// ParsePaymentState accepts canonical and legacy tokens.
func ParsePaymentState(s string) (PaymentState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "pendente":
		return PaymentPending, true
	case "processing", "processando":
		return PaymentProcessing, true
	case "approved", "aprovado":
		return PaymentApproved, true
	case "rejected", "rejeitado", "reprovado":
		return PaymentRejected, true
	case "cancelled", "canceled", "cancelado":
		return PaymentCancelled, true
	}
	return "", false
}

// Payment is one gateway payment attempt per order.
type Payment struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId"`
	OwnerID    string          `json:"ownerId"`
	Method     PaymentMethod   `json:"method"`
	State      PaymentState    `json:"state"`
	SessionID  string          `json:"sessionId,omitempty"`
	SessionURL string          `json:"sessionUrl,omitempty"`
	PaymentRef string          `json:"paymentRef,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	PaidAt     *time.Time      `json:"paidAt,omitempty"`
}

// Owner implements authz.Owned.
func (p *Payment) Owner() string { return p.OwnerID }

// Kind implements authz.Owned.
func (p *Payment) Kind() string { return "payment" }

// Key implements authz.Owned.
func (p *Payment) Key() string { return p.ID }

// CheckoutLine is one line sent to the gateway. Amounts are in cents.
type CheckoutLine struct {
	Name           string
	UnitAmountCent int64
	Quantity       int
}

// CheckoutSessionRequest is what the payment service asks the gateway for.
type CheckoutSessionRequest struct {
	OrderID       string
	CustomerEmail string
	Currency      string
	Lines         []CheckoutLine
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the gateway's answer.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Webhook event types handled by the payment service.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventChargeFailed          = "charge.failed"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// PaymentEvent is a verified, decoded webhook event.
type PaymentEvent struct {
	ID            string
	Type          string
	OrderID       string
	SessionID     string
	PaymentIntent string
}

// ToCents converts a decimal BRL amount into integer cents, rounding half up.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
