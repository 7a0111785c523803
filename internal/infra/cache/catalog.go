package cache

import (
	"context"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

const (
	catalogKey   = "catalog:public"
	catalogLabel = "catalog"
)

var _ port.CatalogCache = (*MemoryCatalog)(nil)

// MemoryCatalog keeps the public catalog snapshot in process.
type MemoryCatalog struct {
	store   *InMemory[[]domain.PublicProduct]
	metrics *observability.Metrics
}

// NewMemoryCatalog creates a catalog cache that expires after ttl.
func NewMemoryCatalog(ttl time.Duration, metrics *observability.Metrics) *MemoryCatalog {
	return &MemoryCatalog{store: New[[]domain.PublicProduct](ttl), metrics: metrics}
}

func (m *MemoryCatalog) GetPublic(_ context.Context) ([]domain.PublicProduct, bool) {
	products, ok := m.store.Get(catalogKey)
	if !ok {
		m.metrics.IncrCacheMiss(catalogLabel)
		return nil, false
	}
	m.metrics.IncrCacheHit(catalogLabel)
	return append([]domain.PublicProduct(nil), products...), true
}

func (m *MemoryCatalog) SetPublic(_ context.Context, products []domain.PublicProduct) {
	m.store.Set(catalogKey, append([]domain.PublicProduct(nil), products...))
}

func (m *MemoryCatalog) InvalidatePublic(_ context.Context) {
	m.store.Delete(catalogKey)
}

// Close stops the underlying janitor.
func (m *MemoryCatalog) Close() { m.store.Close() }
