package service

import (
	"context"
	"fmt"
	"path"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var docTracer = otel.Tracer("service/documents")

// DocumentService validates uploads and hands them to file storage under
// <kind>/<owner>/<uuid>.<ext>. File contents are never inspected.
type DocumentService struct {
	storage  port.FileStorage
	maxBytes int64
	logger   *zap.Logger
}

// NewDocumentService creates a document service. maxBytes <= 0 uses domain.MaxDocumentBytes.
func NewDocumentService(storage port.FileStorage, maxBytes int64, logger *zap.Logger) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = domain.MaxDocumentBytes
	}
	return &DocumentService{storage: storage, maxBytes: maxBytes, logger: logger}
}

// Validate checks every upload and reports all failing slots at once.
func (s *DocumentService) Validate(uploads []domain.DocumentUpload) error {
	fields := map[string]string{}
	for i, u := range uploads {
		field := u.Field
		if field == "" {
			field = fmt.Sprintf("documents[%d]", i)
		}
		if err := domain.ValidateDocument(field, u.Filename, u.Size, s.maxBytes); err != nil {
			if ve, ok := err.(*domain.ErrValidation); ok {
				fields[field] = ve.Message
				continue
			}
			return err
		}
	}
	if len(fields) > 0 {
		return &domain.ErrValidation{Fields: fields}
	}
	return nil
}

// Store validates then uploads every document. On a partial failure the
// files already written are removed.
func (s *DocumentService) Store(ctx context.Context, kind, ownerID string, uploads []domain.DocumentUpload) ([]domain.DocumentRef, error) {
	ctx, span := docTracer.Start(ctx, "DocumentService.Store")
	defer span.End()

	if err := s.Validate(uploads); err != nil {
		return nil, err
	}
	return s.store(ctx, kind, ownerID, uploads)
}

// StoreImage validates u as a jpg, jpeg or png image and uploads it.
func (s *DocumentService) StoreImage(ctx context.Context, kind, ownerID string, u domain.DocumentUpload) (*domain.DocumentRef, error) {
	ctx, span := docTracer.Start(ctx, "DocumentService.StoreImage")
	defer span.End()

	field := u.Field
	if field == "" {
		field = "image"
	}
	if err := domain.ValidateImage(field, u.Filename, u.Size, s.maxBytes); err != nil {
		return nil, err
	}
	refs, err := s.store(ctx, kind, ownerID, []domain.DocumentUpload{u})
	if err != nil {
		return nil, err
	}
	return &refs[0], nil
}

func (s *DocumentService) store(ctx context.Context, kind, ownerID string, uploads []domain.DocumentUpload) ([]domain.DocumentRef, error) {
	refs := make([]domain.DocumentRef, 0, len(uploads))
	for _, u := range uploads {
		key := path.Join(kind, ownerID, uuid.New().String()+"."+domain.DocumentExt(u.Filename))
		storedPath, url, err := s.storage.Upload(ctx, u.Body, key)
		if err != nil {
			s.Discard(ctx, refs)
			return nil, fmt.Errorf("upload %s: %w", u.Filename, err)
		}
		refs = append(refs, domain.DocumentRef{Path: storedPath, URL: url, Name: u.Filename})
	}

	s.logger.Debug("documents stored",
		zap.String("kind", kind),
		zap.String("owner_id", ownerID),
		zap.Int("count", len(refs)),
	)
	return refs, nil
}

// Discard deletes stored documents, logging failures.
func (s *DocumentService) Discard(ctx context.Context, refs []domain.DocumentRef) {
	for _, ref := range refs {
		if err := s.storage.Delete(ctx, ref.Path); err != nil {
			s.logger.Warn("failed to discard document", zap.String("path", ref.Path), zap.Error(err))
		}
	}
}
