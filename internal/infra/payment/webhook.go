package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the accepted clock skew between signing and receipt.
const DefaultTolerance = 300 * time.Second

var _ port.WebhookVerifier = (*WebhookVerifier)(nil)

// WebhookVerifier checks the "t=<unix>,v1=<hex hmac>" signature scheme.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewWebhookVerifier creates a verifier. A non-positive tolerance uses DefaultTolerance.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &WebhookVerifier{secret: []byte(strings.TrimSpace(secret)), tolerance: tolerance}
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			Object            string            `json:"object"`
			PaymentIntent     string            `json:"payment_intent"`
			ClientReferenceID string            `json:"client_reference_id"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Verify authenticates payload and decodes the event. Every failure is
// reported as ErrInvalidSignature so callers cannot tell which check failed.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string, now time.Time) (*domain.PaymentEvent, error) {
	invalid := &domain.ErrInvalidSignature{Provider: gatewayService}
	if len(v.secret) == 0 {
		return nil, invalid
	}

	ts, signatures := parseSignatureHeader(signatureHeader)
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || unix <= 0 || len(signatures) == 0 {
		return nil, invalid
	}

	skew := now.UTC().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return nil, invalid
	}

	expected := computeSignature(v.secret, ts, payload)
	valid := false
	for _, sigHex := range signatures {
		decoded, err := hex.DecodeString(sigHex)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, invalid
	}

	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, &domain.ErrValidation{Field: "body", Message: fmt.Sprintf("evento inválido: %v", err)}
	}

	obj := evt.Data.Object
	out := &domain.PaymentEvent{
		ID:            evt.ID,
		Type:          evt.Type,
		OrderID:       obj.Metadata["order_id"],
		PaymentIntent: obj.PaymentIntent,
	}
	if out.OrderID == "" {
		out.OrderID = obj.ClientReferenceID
	}
	if strings.HasPrefix(evt.Type, "checkout.session.") {
		out.SessionID = obj.ID
	} else if obj.Object == "payment_intent" && out.PaymentIntent == "" {
		out.PaymentIntent = obj.ID
	}
	return out, nil
}

// SignPayload builds a valid signature header for payload at ts.
// Used by tests and the local webhook replay tool.
func SignPayload(secret string, ts time.Time, payload []byte) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(computeSignature([]byte(secret), t, payload))
}

func computeSignature(secret []byte, ts string, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (string, []string) {
	var ts string
	var v1 []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		k, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch {
		case k == "t" && ts == "":
			ts = val
		case k == "v1" && val != "":
			v1 = append(v1, val)
		}
	}
	return ts, v1
}
