package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var producerTracer = otel.Tracer("service/producer")

// ProducerService manages the producer-side profile shown on the storefront.
type ProducerService struct {
	store  port.ProducerStore
	docs   *DocumentService
	logger *zap.Logger
}

// NewProducerService creates a new producer service.
func NewProducerService(store port.ProducerStore, docs *DocumentService, logger *zap.Logger) *ProducerService {
	return &ProducerService{store: store, docs: docs, logger: logger}
}

// SaveProfile creates or replaces the caller's profile. photo is optional;
// without one the stored photo is kept, with one the old photo is discarded.
func (s *ProducerService) SaveProfile(ctx context.Context, id *domain.Identity, req *domain.ProducerProfileRequest, photo *domain.DocumentUpload) (*domain.ProducerProfile, error) {
	ctx, span := producerTracer.Start(ctx, "ProducerService.SaveProfile")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetProducerProfile(ctx, id.UserID)
	var nf *domain.ErrNotFound
	if err != nil && !errors.As(err, &nf) {
		return nil, fmt.Errorf("load producer profile: %w", err)
	}

	profile := &domain.ProducerProfile{
		UserID:    id.UserID,
		TaxID:     req.TaxID,
		Bio:       req.Bio,
		City:      req.City,
		State:     req.State,
		Zip:       req.Zip,
		WhatsApp:  req.WhatsApp,
		Instagram: req.Instagram,
		Facebook:  req.Facebook,
	}
	if existing != nil {
		profile.Photo = existing.Photo
		profile.CreatedAt = existing.CreatedAt
	}

	var stored *domain.DocumentRef
	if photo != nil {
		if photo.Field == "" {
			photo.Field = "photo"
		}
		if stored, err = s.docs.StoreImage(ctx, "producers", id.UserID, *photo); err != nil {
			return nil, err
		}
		profile.Photo = stored
	}

	if err := s.store.UpsertProducerProfile(ctx, profile); err != nil {
		if stored != nil {
			s.docs.Discard(ctx, []domain.DocumentRef{*stored})
		}
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("save producer profile: %w", err)
	}
	if stored != nil && existing != nil && existing.Photo != nil {
		s.docs.Discard(ctx, []domain.DocumentRef{*existing.Photo})
	}

	s.logger.Info("producer profile saved",
		zap.String("user_id", id.UserID),
		zap.Bool("photo", profile.Photo != nil),
	)
	return profile, nil
}

// GetProfile returns the caller's own profile, tax id included.
func (s *ProducerService) GetProfile(ctx context.Context, id *domain.Identity) (*domain.ProducerProfile, error) {
	ctx, span := producerTracer.Start(ctx, "ProducerService.GetProfile")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleProducer)); err != nil {
		return nil, err
	}
	return s.store.GetProducerProfile(ctx, id.UserID)
}

// GetPublicProfile is the storefront view of any producer, without the tax id.
func (s *ProducerService) GetPublicProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error) {
	ctx, span := producerTracer.Start(ctx, "ProducerService.GetPublicProfile")
	defer span.End()
	span.SetAttributes(attribute.String("producer.id", userID))

	p, err := s.store.GetProducerProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Public(), nil
}
