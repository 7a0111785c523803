package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/handler"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/client"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/memstore"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/payment"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/resilience"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/storage"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const flowWebhookSecret = "whsec_flow"

type api struct {
	t      *testing.T
	router http.Handler
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// multipart posts form fields plus one small PDF per file field.
func (a *api) multipart(path, token string, fields map[string]string, files ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a.t, mw.WriteField(k, v))
	}
	for _, field := range files {
		fw, err := mw.CreateFormFile(field, field+".pdf")
		require.NoError(a.t, err)
		_, err = fw.Write([]byte("%PDF-1.4 " + field))
		require.NoError(a.t, err)
	}
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, want int) T {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (a *api) login(email, password string) string {
	a.t.Helper()
	resp := decode[domain.LoginResponse](a.t, a.do(http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: email, Password: password}), http.StatusOK)
	return resp.AccessToken
}

func (a *api) signup(email, role string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/auth/register", "", domain.RegisterRequest{
		Email: email, Password: "s3nha-forte", DisplayName: role, Role: role,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return a.login(email, "s3nha-forte")
}

// TestFlow_ProducerToPaidOrder drives the marketplace end to end over HTTP:
// a producer lists and certifies honey, a verified company buys it and the
// gateway webhook marks the order paid.
func TestFlow_ProducerToPaidOrder(t *testing.T) {
	// --- Mock CNPJ registry ---
	registryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cnpj/v1/11222333000181" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"cnpj":"11222333000181","razao_social":"EMPORIO DA FLORESTA LTDA","municipio":"MANAUS","uf":"AM","descricao_situacao_cadastral":"ATIVA"}`)
	}))
	defer registryServer.Close()

	// --- Mock payment gateway ---
	var sessionForm map[string][]string
	gatewayServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		sessionForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_flow_1","url":"https://checkout.test/cs_flow_1"}`)
	}))
	defer gatewayServer.Close()

	// --- Build services ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memstore.New()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}

	files, err := storage.NewDriver(&storage.Config{Driver: "local", UploadsPath: t.TempDir()})
	require.NoError(t, err)
	catalogCache := cache.NewMemoryCatalog(time.Minute, metrics)
	defer catalogCache.Close()
	registryCache := cache.New[*domain.RegistryCompany](time.Minute)
	defer registryCache.Close()

	registry := client.NewRegistryClient(&http.Client{}, registryServer.URL, 2*time.Second,
		resilience.NewCircuitBreaker("registry-flow"), cfg, registryCache, metrics, logger)
	gateway := payment.NewStripeGateway(payment.StripeConfig{BaseURL: gatewayServer.URL, SecretKey: "sk_test"},
		resilience.NewCircuitBreaker("stripe-flow"), cfg, metrics, logger)

	docs := service.NewDocumentService(files, 0, logger)
	auth := service.NewAuthService(store, "flow-secret", 15*time.Minute, time.Hour, logger)
	require.NoError(t, auth.EnsureAdmin(context.Background(), "admin@selo.test", "admin-senha"))

	router := handler.NewRouter(handler.Services{
		Auth:           auth,
		Catalog:        service.NewCatalogService(store, docs, catalogCache, metrics, logger),
		Producers:      service.NewProducerService(store, docs, logger),
		Certifications: service.NewCertificationService(store, docs, catalogCache, metrics, logger),
		Cart:           service.NewCartService(store, metrics, logger),
		Orders:         service.NewOrderService(store, logger),
		Companies:      service.NewCompanyService(store, registry, docs, logger),
		Payments: service.NewPaymentService(store, gateway, payment.NewWebhookVerifier(flowWebhookSecret, payment.DefaultTolerance),
			service.PaymentURLs{Success: "http://localhost/ok", Cancel: "http://localhost/cancel"}, metrics, logger),
		Dashboard: service.NewDashboardService(store, metrics),
		Store:     store,
	}, handler.RouterConfig{AllowedOrigins: []string{"*"}}, metrics, logger)

	a := &api{t: t, router: router}
	admin := a.login("admin@selo.test", "admin-senha")
	producer := a.signup("produtor@selo.test", "producer")
	buyer := a.signup("empresa@selo.test", "company")

	// --- Producer lists a product and asks for the seal ---
	mel := decode[domain.Product](t, a.do(http.MethodPost, "/v1/producer/products", producer, map[string]any{
		"name": "Mel de Jandaíra", "price": "10.50",
	}), http.StatusCreated)

	catalog := decode[map[string]any](t, a.do(http.MethodGet, "/v1/catalog", "", nil), http.StatusOK)
	assert.EqualValues(t, 0, catalog["total"], "uncertified products stay hidden")

	cert := decode[domain.Certification](t, a.multipart(
		"/v1/producer/products/"+mel.ID+"/certifications", producer,
		map[string]string{"submittedText": "Extraído em área de manejo sustentável"},
		"documents",
	), http.StatusCreated)
	assert.Equal(t, domain.CertPending, cert.State)
	require.Len(t, cert.Documents, 1)

	rec := a.do(http.MethodPost, "/v1/admin/certifications/"+cert.ID+"/resolve", producer, domain.ResolveRequest{Decision: "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	decode[domain.Certification](t, a.do(http.MethodPost, "/v1/admin/certifications/"+cert.ID+"/resolve", admin,
		domain.ResolveRequest{Decision: "approve"}), http.StatusOK)

	catalog = decode[map[string]any](t, a.do(http.MethodGet, "/v1/catalog", "", nil), http.StatusOK)
	assert.EqualValues(t, 1, catalog["total"])

	// --- Company gets verified ---
	rec = a.do(http.MethodPost, "/v1/cart/items", buyer, domain.AddItemRequest{ProductID: mel.ID, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, "/v1/cart/checkout", buyer, domain.CheckoutRequest{
		Delivery:      domain.DeliveryInfo{Address: "Av. Sete de Setembro, 1", City: "Manaus", State: "AM", Zip: "69005-140", Phone: "92 3333-0000"},
		PaymentMethod: "pix",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "unverified company cannot buy")

	profile := decode[domain.CompanyProfile](t, a.multipart("/v1/company/profile", buyer,
		map[string]string{"taxId": "11.222.333/0001-81"},
		domain.CompanyDocumentKinds...,
	), http.StatusCreated)
	assert.Equal(t, "EMPORIO DA FLORESTA LTDA", profile.LegalName)
	assert.Equal(t, domain.VerificationPending, profile.VerificationState)
	assert.Len(t, profile.RequiredDocuments, 3)

	decode[domain.CompanyProfile](t, a.do(http.MethodPost, "/v1/admin/companies/"+profile.UserID+"/verify", admin,
		domain.VerifyCompanyRequest{Decision: "approve"}), http.StatusOK)

	// --- Checkout ---
	cart := decode[domain.Cart](t, a.do(http.MethodGet, "/v1/cart", buyer, nil), http.StatusOK)
	checkout := domain.CheckoutRequest{
		CartID:        cart.ID,
		CartVersion:   cart.Version,
		Delivery:      domain.DeliveryInfo{Address: "Av. Sete de Setembro, 1", City: "Manaus", State: "AM", Zip: "69005-140", Phone: "92 3333-0000"},
		PaymentMethod: "credit_card",
	}
	order := decode[domain.Order](t, a.do(http.MethodPost, "/v1/cart/checkout", buyer, checkout), http.StatusCreated)
	assert.Equal(t, domain.OrderPending, order.State)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("21.00")), order.Total.String())

	rec = a.do(http.MethodPost, "/v1/cart/checkout", buyer, checkout)
	assert.Equal(t, http.StatusConflict, rec.Code, "same cart twice")

	// --- Pay ---
	pay := decode[domain.Payment](t, a.do(http.MethodPost, "/v1/orders/"+order.ID+"/payment", buyer, nil), http.StatusCreated)
	assert.Equal(t, "cs_flow_1", pay.SessionID)
	assert.Equal(t, []string{"1050"}, sessionForm["line_items[0][price_data][unit_amount]"])

	event, err := json.Marshal(map[string]any{
		"id":   "evt_flow_1",
		"type": domain.EventCheckoutCompleted,
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_flow_1",
			"payment_intent": "pi_flow_1",
			"metadata":       map[string]string{"order_id": order.ID},
		}},
	})
	require.NoError(t, err)

	forged := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(event))
	forged.Header.Set(payment.SignatureHeader, payment.SignPayload("not-the-secret", time.Now(), event))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, forged)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	webhook := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(event))
	webhook.Header.Set(payment.SignatureHeader, payment.SignPayload(flowWebhookSecret, time.Now(), event))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, webhook)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	paid := decode[domain.Order](t, a.do(http.MethodGet, "/v1/orders/"+order.ID, buyer, nil), http.StatusOK)
	assert.Equal(t, domain.OrderPaid, paid.State)
	assert.Equal(t, "pi_flow_1", paid.PaymentRef)

	// another company sees nothing
	other := a.signup("outra@selo.test", "company")
	rec = a.do(http.MethodGet, "/v1/orders/"+order.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	dash := decode[domain.AdminDashboard](t, a.do(http.MethodGet, "/v1/admin/dashboard", admin, nil), http.StatusOK)
	assert.Equal(t, 1, dash.Certifications.Approved)
	assert.Equal(t, 1, dash.OrdersByState[domain.OrderPaid])
}
