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
)

var certTracer = otel.Tracer("service/certification")

// CertificationService runs the producer self-declaration workflow:
// submit as pending, then one admin decision.
type CertificationService struct {
	store   CatalogStore
	docs    *DocumentService
	cache   port.CatalogCache
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCertificationService creates a new certification service.
func NewCertificationService(store CatalogStore, docs *DocumentService, cache port.CatalogCache, metrics *observability.Metrics, logger *zap.Logger) *CertificationService {
	return &CertificationService{store: store, docs: docs, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Submit files a pending certification for a product the caller owns.
// Documents are uploaded only after every check passed, and removed again if
// the insert fails.
func (s *CertificationService) Submit(ctx context.Context, id *domain.Identity, productID, text string, uploads []domain.DocumentUpload) (*domain.Certification, error) {
	ctx, span := certTracer.Start(ctx, "CertificationService.Submit")
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

	text = strings.TrimSpace(text)
	if err := domain.ValidateSubmission(text, len(uploads)); err != nil {
		return nil, err
	}
	if err := s.docs.Validate(uploads); err != nil {
		return nil, err
	}

	refs, err := s.docs.Store(ctx, "certifications", id.UserID, uploads)
	if err != nil {
		return nil, err
	}

	c := &domain.Certification{
		ID:             uuid.New().String(),
		ProductID:      p.ID,
		ProductName:    p.Name,
		ProductOwnerID: p.OwnerID,
		SubmittedText:  text,
		Documents:      refs,
		State:          domain.CertPending,
		SubmittedAt:    s.now(),
	}
	if err := s.store.CreateCertification(ctx, c); err != nil {
		s.docs.Discard(ctx, refs)
		return nil, fmt.Errorf("create certification: %w", err)
	}

	s.logger.Info("certification submitted",
		zap.String("certification_id", c.ID),
		zap.String("product_id", p.ID),
		zap.Int("documents", len(refs)),
	)
	return c, nil
}

// Resolve applies an admin decision to a pending certification. Resolving a
// terminal certification is a conflict.
func (s *CertificationService) Resolve(ctx context.Context, id *domain.Identity, certID string, req *domain.ResolveRequest) (*domain.Certification, error) {
	ctx, span := certTracer.Start(ctx, "CertificationService.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("certification.id", certID))

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	decision, ok := domain.ParseDecision(req.Decision)
	if !ok {
		return nil, &domain.ErrValidation{Field: "decision", Message: "decisão deve ser approve ou reject"}
	}

	c, err := s.store.ResolveCertification(ctx, domain.Resolution{
		CertificationID: certID,
		State:           decision.TargetState(),
		AdminID:         id.UserID,
		Notes:           strings.TrimSpace(req.Notes),
		ResolvedAt:      s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrCertificationDecision(c.State)
	s.cache.InvalidatePublic(ctx)

	s.logger.Info("certification resolved",
		zap.String("certification_id", c.ID),
		zap.String("product_id", c.ProductID),
		zap.String("state", string(c.State)),
		zap.String("admin_id", id.UserID),
	)
	return c, nil
}

// ProductHasApprovedCertification reports whether the product carries the seal.
func (s *CertificationService) ProductHasApprovedCertification(ctx context.Context, productID string) (bool, error) {
	return s.store.HasApprovedCertification(ctx, productID)
}

// ListForAdmin lists every certification, optionally filtered by state.
func (s *CertificationService) ListForAdmin(ctx context.Context, id *domain.Identity, state string) ([]domain.Certification, error) {
	ctx, span := certTracer.Start(ctx, "CertificationService.ListForAdmin")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	q := port.CertificationQuery{}
	if state != "" {
		st, ok := domain.ParseCertificationState(state)
		if !ok {
			return nil, &domain.ErrValidation{Field: "state", Message: "estado de certificação desconhecido"}
		}
		q.State = st
	}
	return s.store.ListCertifications(ctx, q)
}

func (s *CertificationService) ListMine(ctx context.Context, id *domain.Identity) ([]domain.Certification, error) {
	ctx, span := certTracer.Start(ctx, "CertificationService.ListMine")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}
	q := port.CertificationQuery{}
	authz.FilterOwned(id, &q)
	return s.store.ListCertifications(ctx, q)
}

func (s *CertificationService) Get(ctx context.Context, id *domain.Identity, certID string) (*domain.Certification, error) {
	ctx, span := certTracer.Start(ctx, "CertificationService.Get")
	defer span.End()

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	c, err := s.store.GetCertification(ctx, certID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(c)); err != nil {
		return nil, err
	}
	return c, nil
}
