package observability_test

import (
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
)

func TestMarketplaceSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrCertificationDecision(domain.CertApproved)
	m.IncrCertificationDecision(domain.CertApproved)
	m.IncrCertificationDecision(domain.CertRejected)
	m.IncrCheckout("completed")
	m.IncrCheckout("conflict")
	m.IncrWebhook(domain.EventCheckoutCompleted, "processed")
	m.IncrWebhook(domain.EventChargeFailed, "processed")
	m.IncrWebhook("unknown", "rejected")
	m.IncrCacheHit("catalog")
	m.IncrCacheHit("catalog")
	m.IncrCacheHit("catalog")
	m.IncrCacheMiss("catalog")

	snap := m.GetMarketplaceSnapshot()

	if snap.CertificationsApproved != 2 {
		t.Errorf("expected 2 approvals, got %v", snap.CertificationsApproved)
	}
	if snap.CertificationsRejected != 1 {
		t.Errorf("expected 1 rejection, got %v", snap.CertificationsRejected)
	}
	if snap.CheckoutsCompleted != 1 || snap.CheckoutsConflicted != 1 {
		t.Errorf("unexpected checkout counters: %+v", snap)
	}
	if snap.WebhooksProcessed != 2 {
		t.Errorf("expected 2 processed webhooks, got %v", snap.WebhooksProcessed)
	}
	if snap.WebhooksRejected != 1 {
		t.Errorf("expected 1 rejected webhook, got %v", snap.WebhooksRejected)
	}
	if snap.CatalogCacheHitRate != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", snap.CatalogCacheHitRate)
	}
}

func TestNewMetrics_Twice(t *testing.T) {
	// private registries: no duplicate collector panic
	_ = observability.NewMetrics()
	_ = observability.NewMetrics()
}
