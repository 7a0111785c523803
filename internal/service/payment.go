package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var paymentTracer = otel.Tracer("service/payment")

// PaymentStore is what payments need from persistence.
type PaymentStore interface {
	port.OrderStore
	port.PaymentStore
}

// PaymentURLs are the gateway redirect targets after checkout.
type PaymentURLs struct {
	Success string
	Cancel  string
}

// PaymentService opens hosted checkout sessions and applies gateway webhooks.
type PaymentService struct {
	store    PaymentStore
	gateway  port.PaymentGateway
	verifier port.WebhookVerifier
	urls     PaymentURLs
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewPaymentService creates a new payment service.
func NewPaymentService(store PaymentStore, gateway port.PaymentGateway, verifier port.WebhookVerifier, urls PaymentURLs, metrics *observability.Metrics, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		verifier: verifier,
		urls:     urls,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateCheckoutSession opens a gateway session for a pending order the
// caller owns and records the payment as pending.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, id *domain.Identity, orderID string) (*domain.Payment, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if err := authz.Authorize(id, authz.Role(domain.RoleCompany)); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(o)); err != nil {
		return nil, err
	}
	if o.State != domain.OrderPending {
		return nil, &domain.ErrConflict{Message: "pedido não está pendente de pagamento"}
	}

	lines := make([]domain.CheckoutLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, domain.CheckoutLine{
			Name:           it.ProductName,
			UnitAmountCent: domain.ToCents(it.UnitPriceSnapshot),
			Quantity:       it.Quantity,
		})
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, &domain.CheckoutSessionRequest{
		OrderID:       o.ID,
		CustomerEmail: id.Email,
		Currency:      "brl",
		Lines:         lines,
		SuccessURL:    s.urls.Success,
		CancelURL:     s.urls.Cancel,
		Metadata:      map[string]string{"order_id": o.ID},
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Payment{
		ID:         uuid.New().String(),
		OrderID:    o.ID,
		OwnerID:    o.OwnerID,
		Method:     o.PaymentMethod,
		State:      domain.PaymentPending,
		SessionID:  session.ID,
		SessionURL: session.URL,
		Amount:     o.Total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("order_id", o.ID),
		zap.String("session_id", session.ID),
	)
	return p, nil
}

// Status returns the payment of an order the caller owns.
func (s *PaymentService) Status(ctx context.Context, id *domain.Identity, orderID string) (*domain.Payment, error) {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.Status")
	defer span.End()

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	p, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// HandleWebhook verifies and applies one gateway event. Redelivery of an
// already applied completion and failures arriving after the payment was
// finalized are accepted and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := paymentTracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	ev, err := s.verifier.Verify(payload, signature, s.now())
	if err != nil {
		s.metrics.IncrWebhook("unknown", "rejected")
		s.logger.Warn("webhook rejected", zap.Error(err))
		return err
	}
	span.SetAttributes(attribute.String("event.type", ev.Type), attribute.String("event.id", ev.ID))

	var result string
	switch ev.Type {
	case domain.EventCheckoutCompleted, domain.EventAsyncPaymentSucceeded:
		result, err = s.applyCompleted(ctx, ev)
	case domain.EventChargeFailed, domain.EventAsyncPaymentFailed:
		result, err = s.applyFailed(ctx, ev)
	default:
		s.metrics.IncrWebhook(ev.Type, "ignored")
		s.logger.Debug("webhook event ignored", zap.String("type", ev.Type), zap.String("event_id", ev.ID))
		return nil
	}
	if err != nil {
		s.metrics.IncrWebhook(ev.Type, "failed")
		return err
	}
	s.metrics.IncrWebhook(ev.Type, result)
	return nil
}

// applyCompleted settles the order. A completion for an order that is already
// paid with the same reference is a redelivery. Any other non-pending order
// keeps its state, the captured payment is recorded and flagged for refund.
func (s *PaymentService) applyCompleted(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	orderID, err := s.resolveOrderID(ctx, ev)
	if err != nil {
		return "", err
	}
	ref := ev.PaymentIntent
	if ref == "" {
		ref = ev.SessionID
	}

	o, err := s.store.CompletePayment(ctx, orderID, ref, s.now())
	var conflict *domain.ErrConflict
	if errors.As(err, &conflict) {
		return s.completedOutOfState(ctx, ev, orderID, ref)
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("order paid",
		zap.String("order_id", o.ID),
		zap.String("payment_ref", ref),
	)
	return "processed", nil
}

func (s *PaymentService) completedOutOfState(ctx context.Context, ev *domain.PaymentEvent, orderID, ref string) (string, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.State == domain.OrderPaid && o.PaymentRef == ref {
		s.logger.Info("duplicate payment completion ignored",
			zap.String("order_id", orderID),
			zap.String("event_id", ev.ID),
		)
		return "duplicate", nil
	}

	err = s.store.SetPaymentState(ctx, orderID, domain.PaymentApproved, ref)
	var conflict *domain.ErrConflict
	var nf *domain.ErrNotFound
	if err != nil && !errors.As(err, &conflict) && !errors.As(err, &nf) {
		return "", err
	}
	s.logger.Error("payment captured for order that cannot be paid; refund required",
		zap.String("order_id", orderID),
		zap.String("order_state", string(o.State)),
		zap.String("order_payment_ref", o.PaymentRef),
		zap.String("payment_ref", ref),
		zap.String("event_id", ev.ID),
	)
	return "refund_required", nil
}

// applyFailed rejects a payment that is still open. A failure arriving after
// the payment was finalized is stale and leaves it untouched.
func (s *PaymentService) applyFailed(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	orderID, err := s.resolveOrderID(ctx, ev)
	if err != nil {
		return "", err
	}
	err = s.store.SetPaymentState(ctx, orderID, domain.PaymentRejected, ev.PaymentIntent)
	var conflict *domain.ErrConflict
	if errors.As(err, &conflict) {
		s.logger.Info("stale payment failure ignored",
			zap.String("order_id", orderID),
			zap.String("event_id", ev.ID),
		)
		return "stale", nil
	}
	if err != nil {
		return "", err
	}
	s.logger.Warn("payment failed",
		zap.String("order_id", orderID),
		zap.String("payment_ref", ev.PaymentIntent),
	)
	return "processed", nil
}

// resolveOrderID uses the event metadata, falling back to a payment lookup by
// intent or session id.
func (s *PaymentService) resolveOrderID(ctx context.Context, ev *domain.PaymentEvent) (string, error) {
	if ev.OrderID != "" {
		return ev.OrderID, nil
	}
	for _, ref := range []string{ev.PaymentIntent, ev.SessionID} {
		if ref == "" {
			continue
		}
		p, err := s.store.GetPaymentByRef(ctx, ref)
		if err == nil {
			return p.OrderID, nil
		}
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			return "", fmt.Errorf("lookup payment: %w", err)
		}
	}
	return "", &domain.ErrNotFound{Resource: "order", ID: ev.ID}
}
