// Package service holds the marketplace use cases. Every operation takes the
// caller's identity explicitly and runs it through the authz pipeline once.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var catalogTracer = otel.Tracer("service/catalog")

// CatalogStore is what the catalog needs from persistence.
type CatalogStore interface {
	port.ProductStore
	port.CertificationStore
}

// CatalogService manages producers' products and the public storefront.
type CatalogService struct {
	store   CatalogStore
	docs    *DocumentService
	cache   port.CatalogCache
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store CatalogStore, docs *DocumentService, cache port.CatalogCache, metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, docs: docs, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// ============================================================
// Producer products
// ============================================================

func (s *CatalogService) CreateProduct(ctx context.Context, id *domain.Identity, req *domain.CreateProductRequest) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.CreateProduct")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}

	stock, ok := domain.ParseStockStatus(req.StockStatus)
	if !ok {
		return nil, &domain.ErrValidation{Field: "stockStatus", Message: "situação de estoque desconhecida"}
	}
	name := strings.TrimSpace(req.Name)
	if err := domain.ValidateProductFields(name, req.Price); err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Product{
		ID:          uuid.New().String(),
		OwnerID:     id.UserID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price.Round(2),
		StockStatus: stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created",
		zap.String("product_id", p.ID),
		zap.String("owner_id", p.OwnerID),
	)
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id *domain.Identity, productID string, req *domain.UpdateProductRequest) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.UpdateProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Role(domain.RoleProducer), authz.Owns(p)); err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		p.Price = req.Price.Round(2)
	}
	if req.StockStatus != nil {
		stock, ok := domain.ParseStockStatus(*req.StockStatus)
		if !ok {
			return nil, &domain.ErrValidation{Field: "stockStatus", Message: "situação de estoque desconhecida"}
		}
		p.StockStatus = stock
	}
	if err := domain.ValidateProductFields(p.Name, p.Price); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.cache.InvalidatePublic(ctx)

	s.logger.Info("product updated", zap.String("product_id", p.ID))
	return p, nil
}

// SetProductImage stores a jpg, jpeg or png image for a product the caller
// owns, replacing and discarding any previous one.
func (s *CatalogService) SetProductImage(ctx context.Context, id *domain.Identity, productID string, u domain.DocumentUpload) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.SetProductImage")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(p)); err != nil {
		return nil, err
	}

	ref, err := s.docs.StoreImage(ctx, "products", id.UserID, u)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetProductImage(ctx, p.ID, ref); err != nil {
		s.docs.Discard(ctx, []domain.DocumentRef{*ref})
		return nil, fmt.Errorf("set product image: %w", err)
	}
	if p.Image != nil {
		s.docs.Discard(ctx, []domain.DocumentRef{*p.Image})
	}
	s.cache.InvalidatePublic(ctx)

	p.Image = ref
	s.logger.Info("product image set", zap.String("product_id", p.ID), zap.String("path", ref.Path))
	return p, nil
}

// DeleteProduct removes the product, its certifications and the cart lines
// that reference it in one store transaction. Orders keep their snapshots.
func (s *CatalogService) DeleteProduct(ctx context.Context, id *domain.Identity, productID string) error {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.DeleteProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	if err := authz.Authenticate(id); err != nil {
		return err
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(id, authz.Role(domain.RoleProducer, domain.RoleAdmin), authz.Owns(p)); err != nil {
		return err
	}

	removed, err := s.store.DeleteProductCascade(ctx, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.cache.InvalidatePublic(ctx)
	if p.Image != nil {
		s.docs.Discard(ctx, []domain.DocumentRef{*p.Image})
	}

	s.logger.Info("product deleted",
		zap.String("product_id", productID),
		zap.String("deleted_by", id.UserID),
		zap.Int("certifications_removed", removed),
	)
	return nil
}

func (s *CatalogService) ListMine(ctx context.Context, id *domain.Identity) ([]domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListMine")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer, domain.RoleAdmin)); err != nil {
		return nil, err
	}
	q := port.ProductQuery{}
	authz.FilterOwned(id, &q)
	return s.store.ListProducts(ctx, q)
}

func (s *CatalogService) GetProduct(ctx context.Context, id *domain.Identity, productID string) (*domain.Product, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetProduct")
	defer span.End()

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// ============================================================
// Storefront
// ============================================================

// ListPublic returns available products that hold at least one approved
// certification. The approved set is fetched in one query and each row is
// flagged by membership.
func (s *CatalogService) ListPublic(ctx context.Context) ([]domain.PublicProduct, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ListPublic")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordDuration("catalog.list_public", time.Since(start)) }()

	if cached, ok := s.cache.GetPublic(ctx); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	var (
		products []domain.Product
		approved map[string]struct{}
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.store.ListProducts(gCtx, port.ProductQuery{StockStatus: domain.StockAvailable})
		return err
	})
	g.Go(func() error {
		var err error
		approved, err = s.store.ApprovedProductIDs(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list public catalog: %w", err)
	}

	out := make([]domain.PublicProduct, 0, len(products))
	for _, p := range products {
		_, sealed := approved[p.ID]
		if !sealed {
			continue
		}
		out = append(out, domain.PublicProduct{Product: p, HasSeal: sealed})
	}

	s.cache.SetPublic(ctx, out)
	return out, nil
}

// GetPublicProduct returns one storefront product; anything not listed
// publicly is reported as not found.
func (s *CatalogService) GetPublicProduct(ctx context.Context, productID string) (*domain.PublicProduct, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.GetPublicProduct")
	defer span.End()

	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.StockStatus != domain.StockAvailable {
		return nil, &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	sealed, err := s.store.HasApprovedCertification(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("check certification: %w", err)
	}
	if !sealed {
		return nil, &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	return &domain.PublicProduct{Product: *p, HasSeal: true}, nil
}

// ============================================================
// Dashboard
// ============================================================

func (s *CatalogService) ProducerDashboard(ctx context.Context, id *domain.Identity) (*domain.ProducerDashboard, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.ProducerDashboard")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}

	pq := port.ProductQuery{}
	authz.FilterOwned(id, &pq)
	pending := port.CertificationQuery{State: domain.CertPending}
	authz.FilterOwned(id, &pending)
	approved := port.CertificationQuery{State: domain.CertApproved}
	authz.FilterOwned(id, &approved)

	var dash domain.ProducerDashboard
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountProducts(gCtx, pq)
		dash.TotalProducts = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountCertifications(gCtx, pending)
		dash.PendingCertifications = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountCertifications(gCtx, approved)
		dash.ApprovedCertifications = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("producer dashboard: %w", err)
	}
	return &dash, nil
}
