// Package payment talks to the Stripe-compatible payment gateway: hosted
// checkout sessions on the way out, signed webhooks on the way back.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/resilience"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

var tracer = otel.Tracer("infra/payment")

const gatewayService = "stripe"

var _ port.PaymentGateway = (*StripeGateway)(nil)

// StripeConfig configures the gateway client.
type StripeConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// StripeGateway creates checkout sessions through the Stripe REST API.
type StripeGateway struct {
	http    *resty.Client
	cb      *gobreaker.CircuitBreaker
	cfg     resilience.Config
	metrics *observability.Metrics
	logger  *zap.Logger
}

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewStripeGateway builds a resty client bound to the gateway base URL.
func NewStripeGateway(sc StripeConfig, cb *gobreaker.CircuitBreaker, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *StripeGateway {
	if sc.Timeout <= 0 {
		sc.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(sc.BaseURL, "/")).
		SetTimeout(sc.Timeout).
		SetAuthToken(sc.SecretKey).
		SetHeader("Accept", "application/json")

	return &StripeGateway{
		http:    client,
		cb:      cb,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateCheckoutSession posts a hosted checkout session for one order.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "StripeGateway.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", req.OrderID))

	form := sessionForm(req)
	start := time.Now()

	result, err := g.cb.Execute(func() (any, error) {
		var session *domain.CheckoutSession
		innerErr := resilience.RetryWithBackoff(ctx, g.cfg, func() error {
			var ok stripeSession
			var failed stripeError
			resp, err := g.http.R().
				SetContext(ctx).
				SetHeader("Idempotency-Key", "checkout-"+req.OrderID).
				SetFormDataFromValues(form).
				SetResult(&ok).
				SetError(&failed).
				Post("/v1/checkout/sessions")
			if err != nil {
				return err
			}

			status := resp.StatusCode()
			switch {
			case status >= 500 || status == 429:
				return fmt.Errorf("gateway returned status %d", status)
			case resp.IsError():
				return resilience.Permanent(fmt.Errorf("gateway rejected session (%d): %s", status, failed.Error.Message))
			}
			if ok.ID == "" || ok.URL == "" {
				return resilience.Permanent(errors.New("gateway returned an empty session"))
			}
			session = &domain.CheckoutSession{ID: ok.ID, URL: ok.URL}
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return session, nil
	})
	g.metrics.RecordDuration("payment.create_session", time.Since(start))

	if err != nil {
		g.metrics.IncrExternalError(gatewayService)
		g.logger.Error("checkout session failed", zap.String("order_id", req.OrderID), zap.Error(err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: gatewayService}
		}
		return nil, &domain.ErrExternalService{Service: gatewayService, Err: err}
	}

	return result.(*domain.CheckoutSession), nil
}

// sessionForm encodes the request the way the Stripe API expects
// (bracketed keys, amounts in the smallest currency unit).
func sessionForm(req *domain.CheckoutSessionRequest) url.Values {
	currency := req.Currency
	if currency == "" {
		currency = "brl"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.OrderID)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	for i, line := range req.Lines {
		prefix := "line_items[" + strconv.Itoa(i) + "]"
		form.Set(prefix+"[quantity]", strconv.Itoa(line.Quantity))
		form.Set(prefix+"[price_data][currency]", strings.ToLower(currency))
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(line.UnitAmountCent, 10))
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
	}

	form.Set("metadata[order_id]", req.OrderID)
	form.Set("payment_intent_data[metadata][order_id]", req.OrderID)
	for k, v := range req.Metadata {
		if k == "order_id" {
			continue
		}
		form.Set("metadata["+k+"]", v)
	}
	return form
}
