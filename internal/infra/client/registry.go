package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const registryService = "registry"

// registryResponse is the BrasilAPI /cnpj/v1 payload (only the fields we keep).
type registryResponse struct {
	CNPJ              string `json:"cnpj"`
	RazaoSocial       string `json:"razao_social"`
	NomeFantasia      string `json:"nome_fantasia"`
	Logradouro        string `json:"logradouro"`
	Numero            string `json:"numero"`
	Complemento       string `json:"complemento"`
	Bairro            string `json:"bairro"`
	Municipio         string `json:"municipio"`
	UF                string `json:"uf"`
	CEP               string `json:"cep"`
	SituacaoCadastral string `json:"descricao_situacao_cadastral"`
}

func (r *registryResponse) toDomain() *domain.RegistryCompany {
	parts := []string{}
	for _, p := range []string{r.Logradouro, r.Numero, r.Complemento, r.Bairro} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return &domain.RegistryCompany{
		TaxID:     domain.NormalizeCNPJ(r.CNPJ),
		LegalName: strings.TrimSpace(r.RazaoSocial),
		TradeName: strings.TrimSpace(r.NomeFantasia),
		Address:   strings.Join(parts, ", "),
		City:      strings.TrimSpace(r.Municipio),
		State:     strings.ToUpper(strings.TrimSpace(r.UF)),
		Zip:       strings.TrimSpace(r.CEP),
		Status:    strings.TrimSpace(r.SituacaoCadastral),
	}
}

// RegistryClient looks companies up in the public CNPJ registry.
type RegistryClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	cache      *cache.InMemory[*domain.RegistryCompany]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewRegistryClient creates a new RegistryClient. A zero timeout disables the per-call deadline.
func NewRegistryClient(
	httpClient *http.Client,
	baseURL string,
	timeout time.Duration,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	lookupCache *cache.InMemory[*domain.RegistryCompany],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RegistryClient {
	return &RegistryClient{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		timeout:    timeout,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		cache:      lookupCache,
		metrics:    metrics,
		logger:     logger,
	}
}

// LookupCNPJ fetches a company by CNPJ with cache, bulkhead, circuit breaker, retry and tracing.
func (c *RegistryClient) LookupCNPJ(ctx context.Context, cnpj string) (*domain.RegistryCompany, error) {
	ctx, span := tracer.Start(ctx, "RegistryClient.LookupCNPJ")
	defer span.End()

	cnpj = domain.NormalizeCNPJ(cnpj)
	span.SetAttributes(attribute.String("company.cnpj", cnpj))

	if c.cache != nil {
		if hit, ok := c.cache.Get(cnpj); ok {
			c.metrics.IncrCacheHit(registryService)
			return hit, nil
		}
		c.metrics.IncrCacheMiss(registryService)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, c.classify(ctx, cnpj, err)
	}
	defer c.bulkhead.Release()

	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		var company *domain.RegistryCompany
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/cnpj/v1/%s", c.baseURL, cnpj)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return resilience.Permanent(&domain.ErrNotFound{Resource: "cnpj", ID: cnpj})
			case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
				return resilience.Permanent(fmt.Errorf("registry API returned status %d", resp.StatusCode))
			case resp.StatusCode != http.StatusOK:
				return fmt.Errorf("registry API returned status %d", resp.StatusCode)
			}

			var body registryResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return resilience.Permanent(fmt.Errorf("decode registry response: %w", err))
			}
			company = body.toDomain()
			if company.TaxID == "" {
				company.TaxID = cnpj
			}
			return nil
		})
		if innerErr != nil {
			// keep 404s from tripping the breaker
			var nf *domain.ErrNotFound
			if errors.As(innerErr, &nf) {
				return nil, resilience.Permanent(innerErr)
			}
			return nil, innerErr
		}
		return company, nil
	})
	c.metrics.RecordDuration("registry.lookup", time.Since(start))

	if err != nil {
		return nil, c.classify(ctx, cnpj, err)
	}

	company := result.(*domain.RegistryCompany)
	if c.cache != nil {
		c.cache.Set(cnpj, company)
	}
	return company, nil
}

// classify maps transport failures onto the domain error types.
func (c *RegistryClient) classify(ctx context.Context, cnpj string, err error) error {
	var nf *domain.ErrNotFound
	if errors.As(err, &nf) {
		return nf
	}

	c.metrics.IncrExternalError(registryService)
	c.logger.Warn("registry lookup failed", zap.String("cnpj", cnpj), zap.Error(err))

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: registryService}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "registry.lookup"}
	}
	return &domain.ErrExternalService{Service: registryService, Err: err}
}
