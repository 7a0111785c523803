package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/client"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/resilience"
)

const activeCompany = `{
	"cnpj": "11222333000181",
	"razao_social": "COOPERATIVA DO CACAU LTDA",
	"nome_fantasia": "Coop Cacau",
	"logradouro": "RUA DAS PALMEIRAS",
	"numero": "100",
	"bairro": "CENTRO",
	"municipio": "BELEM",
	"uf": "pa",
	"cep": "66000000",
	"descricao_situacao_cadastral": "ATIVA"
}`

func newRegistry(t *testing.T, url string, timeout time.Duration) (*client.RegistryClient, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	lookupCache := cache.New[*domain.RegistryCompany](time.Minute)
	t.Cleanup(lookupCache.Close)

	c := client.NewRegistryClient(
		&http.Client{},
		url,
		timeout,
		resilience.NewCircuitBreaker("registry-"+t.Name()),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 4},
		lookupCache,
		metrics,
		zap.NewNop(),
	)
	return c, metrics
}

func TestRegistryClient_LookupAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/cnpj/v1/11222333000181" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(activeCompany))
	}))
	defer srv.Close()

	c, _ := newRegistry(t, srv.URL, time.Second)

	company, err := c.LookupCNPJ(context.Background(), "11.222.333/0001-81")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if company.LegalName != "COOPERATIVA DO CACAU LTDA" {
		t.Errorf("unexpected legal name %q", company.LegalName)
	}
	if company.State != "PA" {
		t.Errorf("expected upper-cased state, got %q", company.State)
	}
	if company.Address != "RUA DAS PALMEIRAS, 100, CENTRO" {
		t.Errorf("unexpected address %q", company.Address)
	}
	if !company.Active() {
		t.Error("expected active company")
	}

	if _, err := c.LookupCNPJ(context.Background(), "11222333000181"); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected second lookup served from cache, got %d calls", calls.Load())
	}
}

func TestRegistryClient_NotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newRegistry(t, srv.URL, time.Second)

	_, err := c.LookupCNPJ(context.Background(), "11222333000181")
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %T: %v", err, err)
	}
	if calls.Load() != 1 {
		t.Errorf("404 must not be retried, got %d calls", calls.Load())
	}
}

func TestRegistryClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, metrics := newRegistry(t, srv.URL, 50*time.Millisecond)

	_, err := c.LookupCNPJ(context.Background(), "11222333000181")
	var te *domain.ErrTimeout
	if !errors.As(err, &te) {
		t.Fatalf("expected ErrTimeout, got %T: %v", err, err)
	}
	if metrics.GetMarketplaceSnapshot().RegistryErrors != 1 {
		t.Error("expected registry error to be counted")
	}
}

func TestRegistryClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newRegistry(t, srv.URL, time.Second)

	_, err := c.LookupCNPJ(context.Background(), "11222333000181")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %T: %v", err, err)
	}
	if ext.Service != "registry" {
		t.Errorf("unexpected service %q", ext.Service)
	}
}
