package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var companyTracer = otel.Tracer("service/company")

// CompanyService handles buyer profiles and their admin verification.
type CompanyService struct {
	store    port.CompanyStore
	registry port.RegistryLookup
	docs     *DocumentService
	logger   *zap.Logger
	now      func() time.Time
}

// NewCompanyService creates a new company service. registry may be nil.
func NewCompanyService(store port.CompanyStore, registry port.RegistryLookup, docs *DocumentService, logger *zap.Logger) *CompanyService {
	return &CompanyService{store: store, registry: registry, docs: docs, logger: logger, now: time.Now}
}

// RegisterProfile creates the caller's company profile in pending state.
// uploads must hold one document per entry of domain.CompanyDocumentKinds,
// in that order. A failing or negative registry lookup never blocks the
// registration; it is recorded on the profile for the reviewing admin.
func (s *CompanyService) RegisterProfile(ctx context.Context, id *domain.Identity, req *domain.CompanyProfileRequest, uploads []domain.DocumentUpload) (*domain.CompanyProfile, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.RegisterProfile")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleCompany)); err != nil {
		return nil, err
	}

	taxID, err := domain.ValidateCNPJ(req.TaxID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("company.tax_id", taxID))

	if err := validateCompanyDocuments(uploads); err != nil {
		return nil, err
	}
	if err := s.docs.Validate(uploads); err != nil {
		return nil, err
	}

	profile := &domain.CompanyProfile{
		UserID:            id.UserID,
		TaxID:             taxID,
		LegalName:         strings.TrimSpace(req.LegalName),
		TradeName:         strings.TrimSpace(req.TradeName),
		Address:           strings.TrimSpace(req.Address),
		City:              strings.TrimSpace(req.City),
		State:             strings.ToUpper(strings.TrimSpace(req.State)),
		Zip:               strings.TrimSpace(req.Zip),
		Phone:             strings.TrimSpace(req.Phone),
		VerificationState: domain.VerificationPending,
		CreatedAt:         s.now(),
	}
	s.enrichFromRegistry(ctx, profile)

	if profile.LegalName == "" {
		return nil, &domain.ErrValidation{Field: "legalName", Message: "razão social é obrigatória"}
	}

	refs, err := s.docs.Store(ctx, "companies", id.UserID, uploads)
	if err != nil {
		return nil, err
	}
	profile.RequiredDocuments = refs

	if err := s.store.CreateCompanyProfile(ctx, profile); err != nil {
		s.docs.Discard(ctx, refs)
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create company profile: %w", err)
	}

	s.logger.Info("company profile registered",
		zap.String("user_id", id.UserID),
		zap.String("tax_id", domain.FormatCNPJ(taxID)),
		zap.String("registry_status", profile.RegistryStatus),
	)
	return profile, nil
}

// enrichFromRegistry fills blank profile fields from the registry and records
// any warning. Failures are logged and never returned.
func (s *CompanyService) enrichFromRegistry(ctx context.Context, p *domain.CompanyProfile) {
	if s.registry == nil {
		return
	}
	rc, err := s.registry.LookupCNPJ(ctx, p.TaxID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			p.RegistryWarning = "CNPJ não encontrado no cadastro nacional"
		} else {
			p.RegistryWarning = "consulta ao cadastro nacional indisponível"
		}
		s.logger.Warn("registry lookup failed",
			zap.String("tax_id", p.TaxID),
			zap.Error(err),
		)
		return
	}

	p.RegistryStatus = rc.Status
	if !rc.Active() {
		p.RegistryWarning = "situação cadastral: " + rc.Status
	}
	fill(&p.LegalName, rc.LegalName)
	fill(&p.TradeName, rc.TradeName)
	fill(&p.Address, rc.Address)
	fill(&p.City, rc.City)
	fill(&p.State, rc.State)
	fill(&p.Zip, rc.Zip)
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func validateCompanyDocuments(uploads []domain.DocumentUpload) error {
	kinds := domain.CompanyDocumentKinds
	if len(uploads) != len(kinds) {
		fields := map[string]string{}
		have := map[string]bool{}
		for _, u := range uploads {
			have[u.Field] = true
		}
		for _, k := range kinds {
			if !have[k] {
				fields[k] = "documento obrigatório"
			}
		}
		if len(fields) == 0 {
			fields["documents"] = fmt.Sprintf("envie exatamente %d documentos", len(kinds))
		}
		return &domain.ErrValidation{Fields: fields}
	}
	for i, k := range kinds {
		if uploads[i].Field == "" {
			uploads[i].Field = k
		}
		if uploads[i].Field != k {
			return &domain.ErrValidation{Field: k, Message: "documento obrigatório"}
		}
	}
	return nil
}

// GetProfile returns the caller's profile, or any profile for admins.
func (s *CompanyService) GetProfile(ctx context.Context, id *domain.Identity, userID string) (*domain.CompanyProfile, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.GetProfile")
	defer span.End()

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = id.UserID
	}
	p, err := s.store.GetCompanyProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(p)); err != nil {
		return nil, err
	}
	return p, nil
}

// Verify records the admin decision on a pending profile.
func (s *CompanyService) Verify(ctx context.Context, id *domain.Identity, userID string, req *domain.VerifyCompanyRequest) (*domain.CompanyProfile, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("company.user_id", userID))

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}

	var to domain.VerificationState
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "verify", "approve", "aprovar", "verificar":
		to = domain.VerificationVerified
	case "reject", "rejeitar", "reprovar":
		to = domain.VerificationRejected
	default:
		return nil, &domain.ErrValidation{Field: "decision", Message: "decisão deve ser verify ou reject"}
	}

	p, err := s.store.VerifyCompanyProfile(ctx, userID, to, id.UserID, strings.TrimSpace(req.Notes), s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("company profile verified",
		zap.String("user_id", userID),
		zap.String("state", string(p.VerificationState)),
		zap.String("admin_id", id.UserID),
	)
	return p, nil
}

// ListForAdmin returns profiles in the given verification state.
func (s *CompanyService) ListForAdmin(ctx context.Context, id *domain.Identity, state string) ([]domain.CompanyProfile, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.ListForAdmin")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	var st domain.VerificationState
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "":
	case "pending", "pendente":
		st = domain.VerificationPending
	case "verified", "verificado":
		st = domain.VerificationVerified
	case "rejected", "rejeitado":
		st = domain.VerificationRejected
	default:
		return nil, &domain.ErrValidation{Field: "state", Message: "estado de verificação desconhecido"}
	}
	return s.store.ListCompanyProfiles(ctx, st)
}

// LookupCNPJ proxies a registry query for an authenticated caller.
func (s *CompanyService) LookupCNPJ(ctx context.Context, id *domain.Identity, cnpj string) (*domain.RegistryCompany, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.LookupCNPJ")
	defer span.End()

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	taxID, err := domain.ValidateCNPJ(cnpj)
	if err != nil {
		return nil, err
	}
	if s.registry == nil {
		return nil, &domain.ErrExternalService{Service: "registry", Err: errors.New("registry not configured")}
	}
	return s.registry.LookupCNPJ(ctx, taxID)
}
