package handler

import (
	"io"
	"net/http"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/payment"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Pagamentos
// ============================================================

// maxWebhookBytes caps the webhook body read before signature verification.
const maxWebhookBytes = 1 << 16

func createCheckoutSessionHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/orders/{orderId}/payment")
		defer span.End()

		p, err := svc.CreateCheckoutSession(ctx, IdentityFromContext(ctx), chi.URLParam(r, "orderId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

func paymentStatusHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/orders/{orderId}/payment")
		defer span.End()

		p, err := svc.Status(ctx, IdentityFromContext(ctx), chi.URLParam(r, "orderId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

// paymentWebhookHandler is unauthenticated; the gateway signature is the
// only credential.
func paymentWebhookHandler(svc *service.PaymentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments/webhook")
		defer span.End()

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.HandleWebhook(ctx, payload, r.Header.Get(payment.SignatureHeader)); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "received"})
	}
}

// ============================================================
// Painéis
// ============================================================

func adminDashboardHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/dashboard")
		defer span.End()

		dash, err := svc.Admin(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, dash)
	}
}

func adminMetricsHandler(svc *service.DashboardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/metrics")
		defer span.End()

		snapshot, err := svc.Metrics(ctx, IdentityFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}
