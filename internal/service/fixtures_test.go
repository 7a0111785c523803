package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/memstore"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/payment"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "whsec_test"

// memFiles is an in-memory port.FileStorage.
type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	failAt  int // fail the n-th upload (1-based); 0 never fails
	uploads int
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (m *memFiles) Upload(_ context.Context, file io.Reader, path string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.failAt > 0 && m.uploads == m.failAt {
		return "", "", errors.New("disk full")
	}
	b, err := io.ReadAll(file)
	if err != nil {
		return "", "", err
	}
	m.files[path] = b
	return path, "/uploads/" + path, nil
}

func (m *memFiles) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memFiles) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// fakeGateway records checkout session requests.
type fakeGateway struct {
	mu       sync.Mutex
	requests []*domain.CheckoutSessionRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req *domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &domain.CheckoutSession{ID: "cs_test_" + req.OrderID, URL: "https://checkout.stripe.test/" + req.OrderID}, nil
}

// fakeRegistry answers CNPJ lookups from a map or with a fixed error.
type fakeRegistry struct {
	companies map[string]*domain.RegistryCompany
	err       error
}

func (r *fakeRegistry) LookupCNPJ(_ context.Context, cnpj string) (*domain.RegistryCompany, error) {
	if r.err != nil {
		return nil, r.err
	}
	if c, ok := r.companies[cnpj]; ok {
		return c, nil
	}
	return nil, &domain.ErrNotFound{Resource: "cnpj", ID: cnpj}
}

type fixture struct {
	store    *memstore.Store
	files    *memFiles
	gateway  *fakeGateway
	registry *fakeRegistry
	metrics  *observability.Metrics

	auth     *service.AuthService
	catalog  *service.CatalogService
	producer *service.ProducerService
	certs    *service.CertificationService
	carts    *service.CartService
	orders   *service.OrderService
	company  *service.CompanyService
	payments *service.PaymentService
	dash     *service.DashboardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	f := &fixture{
		store:    memstore.New(),
		files:    newMemFiles(),
		gateway:  &fakeGateway{},
		registry: &fakeRegistry{companies: map[string]*domain.RegistryCompany{}},
		metrics:  observability.NewMetrics(),
	}
	catalogCache := cache.NewMemoryCatalog(time.Minute, f.metrics)
	t.Cleanup(catalogCache.Close)

	docs := service.NewDocumentService(f.files, 0, logger)
	f.auth = service.NewAuthService(f.store, "test-secret", 15*time.Minute, time.Hour, logger)
	f.catalog = service.NewCatalogService(f.store, docs, catalogCache, f.metrics, logger)
	f.producer = service.NewProducerService(f.store, docs, logger)
	f.certs = service.NewCertificationService(f.store, docs, catalogCache, f.metrics, logger)
	f.carts = service.NewCartService(f.store, f.metrics, logger)
	f.orders = service.NewOrderService(f.store, logger)
	f.company = service.NewCompanyService(f.store, f.registry, docs, logger)
	f.payments = service.NewPaymentService(f.store, f.gateway, payment.NewWebhookVerifier(webhookSecret, payment.DefaultTolerance),
		service.PaymentURLs{Success: "http://localhost/ok", Cancel: "http://localhost/cancel"}, f.metrics, logger)
	f.dash = service.NewDashboardService(f.store, f.metrics)
	return f
}

func producerID(id string) *domain.Identity {
	return &domain.Identity{UserID: id, Email: id + "@example.com", Role: domain.RoleProducer, Active: true}
}

func companyID(id string) *domain.Identity {
	return &domain.Identity{UserID: id, Email: id + "@example.com", Role: domain.RoleCompany, Active: true}
}

func adminID() *domain.Identity {
	return &domain.Identity{UserID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdmin, Active: true}
}

func upload(field, name string, size int) domain.DocumentUpload {
	return domain.DocumentUpload{Field: field, Filename: name, Size: int64(size), Body: bytes.NewReader(bytes.Repeat([]byte("x"), size))}
}

func (f *fixture) createProduct(t *testing.T, owner *domain.Identity, name, price string) *domain.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), owner, &domain.CreateProductRequest{
		Name:  name,
		Price: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return p
}

// certify submits a text-only certification and approves it.
func (f *fixture) certify(t *testing.T, owner *domain.Identity, p *domain.Product) *domain.Certification {
	t.Helper()
	ctx := context.Background()
	c, err := f.certs.Submit(ctx, owner, p.ID, "declaração de origem", nil)
	require.NoError(t, err)
	c, err = f.certs.Resolve(ctx, adminID(), c.ID, &domain.ResolveRequest{Decision: "approve"})
	require.NoError(t, err)
	return c
}

// verifiedCompany stores an already verified profile for the company.
func (f *fixture) verifiedCompany(t *testing.T, id *domain.Identity, taxID string) {
	t.Helper()
	require.NoError(t, f.store.CreateCompanyProfile(context.Background(), &domain.CompanyProfile{
		UserID:            id.UserID,
		TaxID:             taxID,
		LegalName:         strings.ToUpper(id.UserID) + " LTDA",
		VerificationState: domain.VerificationVerified,
		CreatedAt:         time.Now(),
	}))
}

func delivery() domain.DeliveryInfo {
	return domain.DeliveryInfo{
		Address: "Av. Eduardo Ribeiro, 520",
		City:    "Manaus",
		State:   "AM",
		Zip:     "69010-001",
		Phone:   "(92) 99999-0000",
	}
}
