// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"io"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// ============================================================
// Persistence
// ============================================================

// UserStore persists users and refresh tokens.
// Lookups return *domain.ErrNotFound when nothing matches.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByOAuth(ctx context.Context, provider, subject string) (*domain.User, error)
	LinkOAuth(ctx context.Context, userID, provider, subject string) error
	UpdateUserRole(ctx context.Context, userID string, role domain.Role) error
	SetUserActive(ctx context.Context, userID string, active bool) error

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	// RevokeRefreshToken reports whether this call revoked the token. An
	// unknown or already revoked token yields false.
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// ProductQuery filters product listings. Empty fields do not filter.
type ProductQuery struct {
	OwnerID     string
	StockStatus domain.StockStatus
}

// SetOwner implements authz.OwnerScoped.
func (q *ProductQuery) SetOwner(id string) { q.OwnerID = id }

// ProductStore persists the catalog.
type ProductStore interface {
	CreateProduct(ctx context.Context, p *domain.Product) error
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, p *domain.Product) error
	// SetProductImage replaces the image reference; nil clears it. UpdateProduct
	// never touches the image.
	SetProductImage(ctx context.Context, productID string, image *domain.DocumentRef) error
	ListProducts(ctx context.Context, q ProductQuery) ([]domain.Product, error)
	CountProducts(ctx context.Context, q ProductQuery) (int, error)
	// DeleteProductCascade removes the product's certifications, the cart lines
	// referencing it and the product itself in one transaction. Order lines are
	// left untouched. Returns the number of certifications removed.
	DeleteProductCascade(ctx context.Context, id string) (int, error)
}

// CertificationQuery filters certification listings.
type CertificationQuery struct {
	OwnerID   string
	ProductID string
	State     domain.CertificationState
}

// SetOwner implements authz.OwnerScoped.
func (q *CertificationQuery) SetOwner(id string) { q.OwnerID = id }

// CertificationStore persists certification requests.
type CertificationStore interface {
	CreateCertification(ctx context.Context, c *domain.Certification) error
	GetCertification(ctx context.Context, id string) (*domain.Certification, error)
	ListCertifications(ctx context.Context, q CertificationQuery) ([]domain.Certification, error)
	CountCertifications(ctx context.Context, q CertificationQuery) (int, error)
	// ResolveCertification applies r only while the certification is pending.
	// A terminal certification yields *domain.ErrConflict.
	ResolveCertification(ctx context.Context, r domain.Resolution) (*domain.Certification, error)
	HasApprovedCertification(ctx context.Context, productID string) (bool, error)
	// ApprovedProductIDs returns, in one query, the set of products with at
	// least one approved certification.
	ApprovedProductIDs(ctx context.Context) (map[string]struct{}, error)
}

// CartStore persists carts. Every mutation bumps the cart version.
type CartStore interface {
	GetOrCreateActiveCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	// AddOrMergeItem inserts the line, or increments the quantity of the line
	// already holding the same product (keeping its price snapshot).
	AddOrMergeItem(ctx context.Context, cartID string, item domain.CartItem) (*domain.Cart, error)
	// SetItemQuantity removes the line when quantity <= 0.
	SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error)
	// CheckoutCart locks the cart, checks it is still active at
	// expectedVersion, inserts the order and deactivates the cart, atomically.
	CheckoutCart(ctx context.Context, cartID string, expectedVersion int64, order *domain.Order) error
}

// OrderQuery filters order listings.
type OrderQuery struct {
	OwnerID string
	State   domain.OrderState
}

// SetOwner implements authz.OwnerScoped.
func (q *OrderQuery) SetOwner(id string) { q.OwnerID = id }

// OrderStore persists orders.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]domain.Order, error)
	// TransitionOrder moves the order from -> to, conditionally on its current state.
	TransitionOrder(ctx context.Context, id string, from, to domain.OrderState) (*domain.Order, error)
	CountOrdersByState(ctx context.Context) (map[domain.OrderState]int, error)
}

// CompanyStore persists company profiles.
type CompanyStore interface {
	// CreateCompanyProfile fails with *domain.ErrConflict on a duplicate tax id
	// or when the user already has a profile.
	CreateCompanyProfile(ctx context.Context, p *domain.CompanyProfile) error
	GetCompanyProfile(ctx context.Context, userID string) (*domain.CompanyProfile, error)
	// VerifyCompanyProfile applies the decision only while the profile is pending.
	VerifyCompanyProfile(ctx context.Context, userID string, to domain.VerificationState, adminID, notes string, at time.Time) (*domain.CompanyProfile, error)
	// ListCompanyProfiles returns profiles oldest first; empty state lists all.
	ListCompanyProfiles(ctx context.Context, state domain.VerificationState) ([]domain.CompanyProfile, error)
	CountCompanyProfiles(ctx context.Context, state domain.VerificationState) (int, error)
}

// ProducerStore persists producer profiles.
type ProducerStore interface {
	// UpsertProducerProfile creates or replaces the profile of p.UserID, keeping
	// its CreatedAt. A CPF held by another producer yields *domain.ErrConflict.
	UpsertProducerProfile(ctx context.Context, p *domain.ProducerProfile) error
	GetProducerProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error)
}

// PaymentStore persists gateway payments.
type PaymentStore interface {
	// UpsertPayment creates or replaces the payment of p.OrderID.
	UpsertPayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	GetPaymentByRef(ctx context.Context, paymentRef string) (*domain.Payment, error)
	// SetPaymentState applies state only while the payment is pending or
	// processing. A finalized payment yields *domain.ErrConflict.
	SetPaymentState(ctx context.Context, orderID string, state domain.PaymentState, paymentRef string) error
	// CompletePayment marks the payment approved and moves the order
	// pending -> paid, in one transaction.
	CompletePayment(ctx context.Context, orderID, paymentRef string, at time.Time) (*domain.Order, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	ProductStore
	CertificationStore
	CartStore
	OrderStore
	CompanyStore
	ProducerStore
	PaymentStore
	Ping(ctx context.Context) error
}

// ============================================================
// Caches & external services
// ============================================================

// CatalogCache holds the public catalog snapshot.
type CatalogCache interface {
	GetPublic(ctx context.Context) ([]domain.PublicProduct, bool)
	SetPublic(ctx context.Context, products []domain.PublicProduct)
	InvalidatePublic(ctx context.Context)
}

// RegistryLookup queries the external company registry by CNPJ.
type RegistryLookup interface {
	LookupCNPJ(ctx context.Context, cnpj string) (*domain.RegistryCompany, error)
}

// FileStorage stores uploaded documents.
type FileStorage interface {
	// Upload returns the storage path and public URL.
	Upload(ctx context.Context, file io.Reader, path string) (storagePath string, publicURL string, err error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// PaymentGateway creates hosted checkout sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *domain.CheckoutSessionRequest) (*domain.CheckoutSession, error)
}

// WebhookVerifier authenticates and decodes gateway webhooks.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string, now time.Time) (*domain.PaymentEvent, error)
}
