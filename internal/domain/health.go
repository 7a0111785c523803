package domain

// ============================================================
// Health, dashboards & metrics API responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ProducerDashboard is returned by GET /v1/producer/dashboard.
type ProducerDashboard struct {
	TotalProducts          int `json:"totalProducts"`
	PendingCertifications  int `json:"pendingCertifications"`
	ApprovedCertifications int `json:"approvedCertifications"`
}

// AdminDashboard is returned by GET /v1/admin/dashboard.
type AdminDashboard struct {
	Certifications   CertificationCounts `json:"certifications"`
	PendingCompanies int                 `json:"pendingCompanies"`
	OrdersByState    map[OrderState]int  `json:"ordersByState"`
}

// MarketplaceMetrics is returned by GET /v1/admin/metrics.
type MarketplaceMetrics struct {
	CertificationsApproved float64 `json:"certificationsApproved"`
	CertificationsRejected float64 `json:"certificationsRejected"`
	CheckoutsCompleted     float64 `json:"checkoutsCompleted"`
	CheckoutsConflicted    float64 `json:"checkoutsConflicted"`
	WebhooksProcessed      float64 `json:"webhooksProcessed"`
	WebhooksRejected       float64 `json:"webhooksRejected"`
	CatalogCacheHitRate    float64 `json:"catalogCacheHitRate"`
	RegistryErrors         float64 `json:"registryErrors"`
	Period                 string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
