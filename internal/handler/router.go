package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router serves. Nil services leave their
// routes unmounted.
type Services struct {
	Auth           *service.AuthService
	Catalog        *service.CatalogService
	Producers      *service.ProducerService
	Certifications *service.CertificationService
	Cart           *service.CartService
	Orders         *service.OrderService
	Companies      *service.CompanyService
	Payments       *service.PaymentService
	Dashboard      *service.DashboardService

	// Store is pinged by /healthz.
	Store Pinger
}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	// MaxUploadBytes is the per-file upload limit; multipart bodies are
	// capped to fit the endpoint's file slots. Zero uses domain.MaxDocumentBytes.
	MaxUploadBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, rc RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rc.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Público
		// =============================================
		if svc.Catalog != nil {
			r.Get("/catalog", publicCatalogHandler(svc.Catalog, logger))
			r.Get("/catalog/{productId}", publicProductHandler(svc.Catalog, logger))
		}
		if svc.Producers != nil {
			r.Get("/producers/{userId}", publicProducerHandler(svc.Producers, logger))
		}
		if svc.Payments != nil {
			r.Post("/payments/webhook", paymentWebhookHandler(svc.Payments, logger))
		}

		if svc.Auth == nil {
			logger.Warn("auth service not configured, protected routes unavailable")
			return
		}

		r.Post("/auth/register", authRegisterHandler(svc.Auth, logger))
		r.Post("/auth/login", authLoginHandler(svc.Auth, logger))
		r.Post("/auth/oauth", authOAuthHandler(svc.Auth, logger))
		r.Post("/auth/refresh", authRefreshHandler(svc.Auth, logger))

		// =============================================
		// Autenticado
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))

			r.Post("/auth/logout", authLogoutHandler(svc.Auth, logger))
			r.Get("/auth/me", authMeHandler(svc.Auth, logger))

			if svc.Catalog != nil {
				r.Get("/producer/dashboard", producerDashboardHandler(svc.Catalog, logger))
				r.Get("/producer/products", listMyProductsHandler(svc.Catalog, logger))
				r.Post("/producer/products", createProductHandler(svc.Catalog, logger))
				r.Get("/producer/products/{productId}", getMyProductHandler(svc.Catalog, logger))
				r.Patch("/producer/products/{productId}", updateProductHandler(svc.Catalog, logger))
				r.Delete("/producer/products/{productId}", deleteProductHandler(svc.Catalog, logger))
				r.Put("/producer/products/{productId}/image", productImageHandler(svc.Catalog, multipartLimit(rc.MaxUploadBytes, 1), logger))
			}

			if svc.Producers != nil {
				r.Get("/producer/profile", getProducerProfileHandler(svc.Producers, logger))
				r.Put("/producer/profile", saveProducerProfileHandler(svc.Producers, multipartLimit(rc.MaxUploadBytes, 1), logger))
			}

			if svc.Certifications != nil {
				r.Post("/producer/products/{productId}/certifications", submitCertificationHandler(svc.Certifications, multipartLimit(rc.MaxUploadBytes, domain.MaxCertificationDocuments), logger))
				r.Get("/producer/certifications", listMyCertificationsHandler(svc.Certifications, logger))
				r.Get("/certifications/{certificationId}", getCertificationHandler(svc.Certifications, logger))
				r.Get("/admin/certifications", adminListCertificationsHandler(svc.Certifications, logger))
				r.Post("/admin/certifications/{certificationId}/resolve", resolveCertificationHandler(svc.Certifications, logger))
			}

			if svc.Cart != nil {
				r.Get("/cart", getCartHandler(svc.Cart, logger))
				r.Post("/cart/items", addCartItemHandler(svc.Cart, logger))
				r.Patch("/cart/items/{itemId}", updateCartItemHandler(svc.Cart, logger))
				r.Delete("/cart/items/{itemId}", removeCartItemHandler(svc.Cart, logger))
				r.Post("/cart/checkout", checkoutHandler(svc.Cart, logger))
			}

			if svc.Orders != nil {
				r.Get("/orders", listOrdersHandler(svc.Orders, logger))
				r.Get("/orders/{orderId}", getOrderHandler(svc.Orders, logger))
				r.Patch("/admin/orders/{orderId}/status", updateOrderStateHandler(svc.Orders, logger))
			}

			if svc.Payments != nil {
				r.Post("/orders/{orderId}/payment", createCheckoutSessionHandler(svc.Payments, logger))
				r.Get("/orders/{orderId}/payment", paymentStatusHandler(svc.Payments, logger))
			}

			if svc.Companies != nil {
				r.Post("/company/profile", registerCompanyHandler(svc.Companies, multipartLimit(rc.MaxUploadBytes, len(domain.CompanyDocumentKinds)), logger))
				r.Get("/company/profile", getCompanyProfileHandler(svc.Companies, logger))
				r.Get("/company/cnpj/{cnpj}", cnpjLookupHandler(svc.Companies, logger))
				r.Get("/admin/companies", adminListCompaniesHandler(svc.Companies, logger))
				r.Get("/admin/companies/{userId}", adminGetCompanyHandler(svc.Companies, logger))
				r.Post("/admin/companies/{userId}/verify", verifyCompanyHandler(svc.Companies, logger))
			}

			r.Put("/admin/users/{userId}/role", setUserRoleHandler(svc.Auth, logger))
			r.Post("/admin/users/{userId}/deactivate", deactivateUserHandler(svc.Auth, logger))

			if svc.Dashboard != nil {
				r.Get("/admin/dashboard", adminDashboardHandler(svc.Dashboard, logger))
				r.Get("/admin/metrics", adminMetricsHandler(svc.Dashboard, logger))
			}
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "selo-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			start := time.Now()
			err := store.Ping(pingCtx)
			cancel()
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "unhealthy"
				logger.Warn("store ping failed", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		status := http.StatusOK
		if overallStatus == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
