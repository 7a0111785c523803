// Package memstore is an in-process implementation of port.Store. It keeps the
// same atomicity guarantees as the PostgreSQL store by serialising every
// operation behind one mutex. Used when DATABASE_URL is unset and in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
)

var _ port.Store = (*Store)(nil)

// Store holds all marketplace data in maps.
type Store struct {
	mu sync.Mutex

	users         map[string]*domain.User
	refreshTokens map[string]*domain.RefreshToken
	products      map[string]*domain.Product
	certs         map[string]*domain.Certification
	carts         map[string]*domain.Cart
	orders        map[string]*domain.Order
	companies     map[string]*domain.CompanyProfile
	producers     map[string]*domain.ProducerProfile
	payments      map[string]*domain.Payment // by order id

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]*domain.User),
		refreshTokens: make(map[string]*domain.RefreshToken),
		products:      make(map[string]*domain.Product),
		certs:         make(map[string]*domain.Certification),
		carts:         make(map[string]*domain.Cart),
		orders:        make(map[string]*domain.Order),
		companies:     make(map[string]*domain.CompanyProfile),
		producers:     make(map[string]*domain.ProducerProfile),
		payments:      make(map[string]*domain.Payment),
		now:           time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// ============================================================
// Users
// ============================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return &domain.ErrConflict{Message: "e-mail já cadastrado"}
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: email}
}

func (s *Store) GetUserByOAuth(ctx context.Context, provider, subject string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.OAuthProvider == provider && u.OAuthSubject == subject {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: provider + ":" + subject}
}

func (s *Store) LinkOAuth(ctx context.Context, userID, provider, subject string) error {
	return s.updateUser(userID, func(u *domain.User) {
		u.OAuthProvider = provider
		u.OAuthSubject = subject
	})
}

func (s *Store) UpdateUserRole(ctx context.Context, userID string, role domain.Role) error {
	return s.updateUser(userID, func(u *domain.User) { u.Role = role })
}

func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	return s.updateUser(userID, func(u *domain.User) { u.Active = active })
}

func (s *Store) updateUser(userID string, fn func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	fn(u)
	return nil
}

func (s *Store) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[tokenHash] = &domain.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

// GetRefreshToken returns nil when the token is unknown or revoked.
func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[tokenHash]
	if !ok || t.Revoked {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

// ============================================================
// Products
// ============================================================

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "product", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[p.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "product", ID: p.ID}
	}
	cp := *p
	cp.OwnerID = existing.OwnerID
	cp.Image = existing.Image
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) SetProductImage(ctx context.Context, productID string, image *domain.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	if image != nil {
		ref := *image
		image = &ref
	}
	p.Image = image
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListProducts(ctx context.Context, q port.ProductQuery) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if q.OwnerID != "" && p.OwnerID != q.OwnerID {
			continue
		}
		if q.StockStatus != "" && p.StockStatus != q.StockStatus {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountProducts(ctx context.Context, q port.ProductQuery) (int, error) {
	list, err := s.ListProducts(ctx, q)
	return len(list), err
}

func (s *Store) DeleteProductCascade(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return 0, &domain.ErrNotFound{Resource: "product", ID: id}
	}

	removed := 0
	for cid, c := range s.certs {
		if c.ProductID == id {
			delete(s.certs, cid)
			removed++
		}
	}
	for _, cart := range s.carts {
		kept := cart.Items[:0]
		changed := false
		for _, it := range cart.Items {
			if it.ProductID == id {
				changed = true
				continue
			}
			kept = append(kept, it)
		}
		cart.Items = kept
		if changed {
			cart.Version++
			cart.UpdatedAt = s.now()
		}
	}
	delete(s.products, id)
	return removed, nil
}

// ============================================================
// Certifications
// ============================================================

func (s *Store) CreateCertification(ctx context.Context, c *domain.Certification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[c.ProductID]
	if !ok {
		return &domain.ErrNotFound{Resource: "product", ID: c.ProductID}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.ProductOwnerID = p.OwnerID
	c.ProductName = p.Name
	s.certs[c.ID] = cloneCert(c)
	return nil
}

func (s *Store) GetCertification(ctx context.Context, id string) (*domain.Certification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.certs[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "certification", ID: id}
	}
	return s.withProduct(cloneCert(c)), nil
}

func (s *Store) ListCertifications(ctx context.Context, q port.CertificationQuery) ([]domain.Certification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Certification, 0)
	for _, c := range s.certs {
		if q.OwnerID != "" && c.ProductOwnerID != q.OwnerID {
			continue
		}
		if q.ProductID != "" && c.ProductID != q.ProductID {
			continue
		}
		if q.State != "" && c.State != q.State {
			continue
		}
		out = append(out, *s.withProduct(cloneCert(c)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) CountCertifications(ctx context.Context, q port.CertificationQuery) (int, error) {
	list, err := s.ListCertifications(ctx, q)
	return len(list), err
}

func (s *Store) ResolveCertification(ctx context.Context, r domain.Resolution) (*domain.Certification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.certs[r.CertificationID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "certification", ID: r.CertificationID}
	}
	if c.State != domain.CertPending {
		return nil, &domain.ErrConflict{Message: "certificação já foi resolvida (" + string(c.State) + ")"}
	}
	at := r.ResolvedAt
	admin := r.AdminID
	c.State = r.State
	c.ResolvedAt = &at
	c.ResolvedByAdminID = &admin
	c.AdminNotes = r.Notes
	return s.withProduct(cloneCert(c)), nil
}

func (s *Store) HasApprovedCertification(ctx context.Context, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.certs {
		if c.ProductID == productID && c.State == domain.CertApproved {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ApprovedProductIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{})
	for _, c := range s.certs {
		if c.State == domain.CertApproved {
			ids[c.ProductID] = struct{}{}
		}
	}
	return ids, nil
}

func (s *Store) withProduct(c *domain.Certification) *domain.Certification {
	if p, ok := s.products[c.ProductID]; ok {
		c.ProductName = p.Name
		c.ProductOwnerID = p.OwnerID
	}
	return c
}

func cloneCert(c *domain.Certification) *domain.Certification {
	cp := *c
	cp.Documents = append([]domain.DocumentRef(nil), c.Documents...)
	return &cp
}

// ============================================================
// Carts
// ============================================================

func (s *Store) GetOrCreateActiveCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.carts {
		if c.OwnerID == ownerID && c.Active {
			return s.cartView(c), nil
		}
	}
	now := s.now()
	c := &domain.Cart{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Active:    true,
		Version:   1,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.carts[c.ID] = c
	return s.cartView(c), nil
}

func (s *Store) AddOrMergeItem(ctx context.Context, cartID string, item domain.CartItem) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.activeCart(cartID)
	if err != nil {
		return nil, err
	}
	merged := false
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.CartID = cartID
		if item.AddedAt.IsZero() {
			item.AddedAt = s.now()
		}
		c.Items = append(c.Items, item)
	}
	c.Version++
	c.UpdatedAt = s.now()
	return s.cartView(c), nil
}

func (s *Store) SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.activeCart(cartID)
	if err != nil {
		return nil, err
	}
	idx := itemIndex(c, itemID)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "cart_item", ID: itemID}
	}
	if quantity <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Quantity = quantity
	}
	c.Version++
	c.UpdatedAt = s.now()
	return s.cartView(c), nil
}

func (s *Store) RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	return s.SetItemQuantity(ctx, cartID, itemID, 0)
}

func (s *Store) CheckoutCart(ctx context.Context, cartID string, expectedVersion int64, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[cartID]
	if !ok {
		return &domain.ErrNotFound{Resource: "cart", ID: cartID}
	}
	if !c.Active {
		return &domain.ErrConflict{Message: "carrinho já finalizado"}
	}
	if c.Version != expectedVersion {
		return &domain.ErrConflict{Message: "carrinho alterado durante a finalização, tente novamente"}
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = cloneOrder(order)

	c.Active = false
	c.Version++
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) activeCart(cartID string) (*domain.Cart, error) {
	c, ok := s.carts[cartID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "cart", ID: cartID}
	}
	if !c.Active {
		return nil, &domain.ErrConflict{Message: "carrinho já finalizado"}
	}
	return c, nil
}

func (s *Store) cartView(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem{}, c.Items...)
	return &cp
}

func itemIndex(c *domain.Cart, itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// ============================================================
// Orders
// ============================================================

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(ctx context.Context, q port.OrderQuery) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if q.OwnerID != "" && o.OwnerID != q.OwnerID {
			continue
		}
		if q.State != "" && o.State != q.State {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to domain.OrderState) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "order", ID: id}
	}
	if o.State != from {
		return nil, &domain.ErrConflict{Message: "pedido não está mais em " + string(from)}
	}
	o.State = to
	o.UpdatedAt = s.now()
	return cloneOrder(o), nil
}

func (s *Store) CountOrdersByState(ctx context.Context) (map[domain.OrderState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.OrderState]int)
	for _, o := range s.orders {
		counts[o.State]++
	}
	return counts, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

// ============================================================
// Company profiles
// ============================================================

func (s *Store) CreateCompanyProfile(ctx context.Context, p *domain.CompanyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[p.UserID]; ok {
		return &domain.ErrConflict{Message: "perfil de empresa já cadastrado"}
	}
	for _, existing := range s.companies {
		if existing.TaxID == p.TaxID {
			return &domain.ErrConflict{Message: "CNPJ já cadastrado"}
		}
	}
	cp := *p
	cp.RequiredDocuments = append([]domain.DocumentRef(nil), p.RequiredDocuments...)
	s.companies[p.UserID] = &cp
	return nil
}

func (s *Store) GetCompanyProfile(ctx context.Context, userID string) (*domain.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.companies[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company_profile", ID: userID}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) VerifyCompanyProfile(ctx context.Context, userID string, to domain.VerificationState, adminID, notes string, at time.Time) (*domain.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.companies[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "company_profile", ID: userID}
	}
	if p.VerificationState != domain.VerificationPending {
		return nil, &domain.ErrConflict{Message: "empresa já foi avaliada (" + string(p.VerificationState) + ")"}
	}
	p.VerificationState = to
	p.VerifiedAt = &at
	p.VerifiedByAdminID = &adminID
	p.VerificationNotes = notes
	cp := *p
	return &cp, nil
}

func (s *Store) ListCompanyProfiles(ctx context.Context, state domain.VerificationState) ([]domain.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CompanyProfile, 0)
	for _, p := range s.companies {
		if state == "" || p.VerificationState == state {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountCompanyProfiles(ctx context.Context, state domain.VerificationState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.companies {
		if state == "" || p.VerificationState == state {
			n++
		}
	}
	return n, nil
}

// ============================================================
// Producer profiles
// ============================================================

func (s *Store) UpsertProducerProfile(ctx context.Context, p *domain.ProducerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.TaxID != "" {
		for _, existing := range s.producers {
			if existing.UserID != p.UserID && existing.TaxID == p.TaxID {
				return &domain.ErrConflict{Message: "CPF já cadastrado"}
			}
		}
	}
	now := s.now()
	cp := *p
	if existing, ok := s.producers[p.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.producers[p.UserID] = &cp
	p.CreatedAt, p.UpdatedAt = cp.CreatedAt, cp.UpdatedAt
	return nil
}

func (s *Store) GetProducerProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.producers[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "producer_profile", ID: userID}
	}
	cp := *p
	return &cp, nil
}

// ============================================================
// Payments
// ============================================================

func (s *Store) UpsertPayment(ctx context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.payments[p.OrderID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	cp := *p
	s.payments[p.OrderID] = &cp
	return nil
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[orderID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: orderID}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPaymentByRef(ctx context.Context, paymentRef string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if paymentRef != "" && (p.PaymentRef == paymentRef || p.SessionID == paymentRef) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "payment", ID: paymentRef}
}

func (s *Store) SetPaymentState(ctx context.Context, orderID string, state domain.PaymentState, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[orderID]
	if !ok {
		return &domain.ErrNotFound{Resource: "payment", ID: orderID}
	}
	if p.State != domain.PaymentPending && p.State != domain.PaymentProcessing {
		return &domain.ErrConflict{Message: "pagamento já finalizado"}
	}
	p.State = state
	if paymentRef != "" {
		p.PaymentRef = paymentRef
	}
	p.UpdatedAt = s.now()
	return nil
}

func (s *Store) CompletePayment(ctx context.Context, orderID, paymentRef string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "order", ID: orderID}
	}
	if o.State != domain.OrderPending {
		return nil, &domain.ErrConflict{Message: "pedido não está pendente"}
	}
	if p, ok := s.payments[orderID]; ok {
		p.State = domain.PaymentApproved
		p.PaymentRef = paymentRef
		p.PaidAt = &at
		p.UpdatedAt = at
	}
	o.State = domain.OrderPaid
	o.PaymentRef = paymentRef
	o.PaidAt = &at
	o.UpdatedAt = at
	return cloneOrder(o), nil
}
