package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var dashboardTracer = otel.Tracer("service/dashboard")

// DashboardStore is what the admin dashboard reads.
type DashboardStore interface {
	port.CertificationStore
	port.CompanyStore
	port.OrderStore
}

// DashboardService aggregates admin counters.
type DashboardService struct {
	store   DashboardStore
	metrics *observability.Metrics
}

func NewDashboardService(store DashboardStore, metrics *observability.Metrics) *DashboardService {
	return &DashboardService{store: store, metrics: metrics}
}

// Admin runs the counts concurrently.
func (s *DashboardService) Admin(ctx context.Context, id *domain.Identity) (*domain.AdminDashboard, error) {
	ctx, span := dashboardTracer.Start(ctx, "DashboardService.Admin")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}

	var dash domain.AdminDashboard
	g, gCtx := errgroup.WithContext(ctx)
	count := func(state domain.CertificationState, dst *int) {
		g.Go(func() error {
			n, err := s.store.CountCertifications(gCtx, port.CertificationQuery{State: state})
			*dst = n
			return err
		})
	}
	count(domain.CertPending, &dash.Certifications.Pending)
	count(domain.CertApproved, &dash.Certifications.Approved)
	count(domain.CertRejected, &dash.Certifications.Rejected)
	g.Go(func() error {
		n, err := s.store.CountCompanyProfiles(gCtx, domain.VerificationPending)
		dash.PendingCompanies = n
		return err
	})
	g.Go(func() error {
		m, err := s.store.CountOrdersByState(gCtx)
		dash.OrdersByState = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("admin dashboard: %w", err)
	}
	return &dash, nil
}

// Metrics returns the in-process marketplace counters.
func (s *DashboardService) Metrics(ctx context.Context, id *domain.Identity) (*domain.MarketplaceMetrics, error) {
	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	return s.metrics.GetMarketplaceSnapshot(), nil
}
