package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var cartTracer = otel.Tracer("service/cart")

// CartStore is what the cart needs from persistence.
type CartStore interface {
	port.ProductStore
	port.CertificationStore
	port.CartStore
	port.CompanyStore
}

// CartService manages company carts and checkout.
type CartService struct {
	store   CartStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(store CartStore, metrics *observability.Metrics, logger *zap.Logger) *CartService {
	return &CartService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Get returns the caller's active cart, creating an empty one if needed.
func (s *CartService) Get(ctx context.Context, id *domain.Identity) (*domain.CartView, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.Get")
	defer span.End()

	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.NewCartView(c), nil
}

// AddItem adds a certified, available product. Adding a product already in
// the cart increments its quantity and keeps the first price snapshot.
func (s *CartService) AddItem(ctx context.Context, id *domain.Identity, req *domain.AddItemRequest) (*domain.CartView, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.AddItem")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", req.ProductID))

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return nil, &domain.ErrValidation{Field: "quantity", Message: "quantidade deve ser maior que zero"}
	}

	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	sealed, err := s.store.HasApprovedCertification(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("check certification: %w", err)
	}
	if !sealed {
		// not publicly listed
		return nil, &domain.ErrNotFound{Resource: "product", ID: p.ID}
	}
	if p.StockStatus != domain.StockAvailable {
		return nil, &domain.ErrValidation{Field: "productId", Message: "produto indisponível"}
	}

	updated, err := s.store.AddOrMergeItem(ctx, c.ID, domain.CartItem{
		ID:                uuid.New().String(),
		CartID:            c.ID,
		ProductID:         p.ID,
		ProductName:       p.Name,
		Quantity:          qty,
		UnitPriceSnapshot: p.Price,
		AddedAt:           s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.logger.Debug("cart item added",
		zap.String("cart_id", c.ID),
		zap.String("product_id", p.ID),
		zap.Int("quantity", qty),
	)
	return domain.NewCartView(updated), nil
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, id *domain.Identity, itemID string, quantity int) (*domain.CartView, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.UpdateQuantity")
	defer span.End()

	c, err := s.cartHolding(ctx, id, itemID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.SetItemQuantity(ctx, c.ID, itemID, quantity)
	if err != nil {
		return nil, err
	}
	return domain.NewCartView(updated), nil
}

func (s *CartService) RemoveItem(ctx context.Context, id *domain.Identity, itemID string) (*domain.CartView, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.RemoveItem")
	defer span.End()

	c, err := s.cartHolding(ctx, id, itemID)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.RemoveItem(ctx, c.ID, itemID)
	if err != nil {
		return nil, err
	}
	return domain.NewCartView(updated), nil
}

// Checkout freezes the active cart into a pending order. The cart version
// (the client's, or the one read here) must still be current when the store
// commits, so two concurrent checkouts of one cart produce exactly one order.
func (s *CartService) Checkout(ctx context.Context, id *domain.Identity, req *domain.CheckoutRequest) (*domain.Order, error) {
	ctx, span := cartTracer.Start(ctx, "CartService.Checkout")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleCompany)); err != nil {
		return nil, err
	}

	profile, err := s.store.GetCompanyProfile(ctx, id.UserID)
	var nf *domain.ErrNotFound
	switch {
	case errors.As(err, &nf):
		s.metrics.IncrCheckout("rejected")
		return nil, &domain.ErrForbidden{Action: "checkout requires a company profile"}
	case err != nil:
		return nil, fmt.Errorf("load company profile: %w", err)
	case !profile.CanPurchase():
		s.metrics.IncrCheckout("rejected")
		return nil, &domain.ErrForbidden{Action: "checkout requires a verified company"}
	}

	c, err := s.store.GetOrCreateActiveCart(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	span.SetAttributes(attribute.String("cart.id", c.ID), attribute.Int64("cart.version", c.Version))

	if req.CartID != "" && req.CartID != c.ID {
		s.metrics.IncrCheckout("conflict")
		return nil, &domain.ErrConflict{Message: "carrinho já finalizado"}
	}
	if req.CartVersion != 0 && req.CartVersion != c.Version {
		s.metrics.IncrCheckout("conflict")
		return nil, &domain.ErrConflict{Message: "carrinho alterado; revise antes de finalizar"}
	}

	if len(c.Items) == 0 {
		s.metrics.IncrCheckout("rejected")
		return nil, &domain.ErrValidation{Field: "cart", Message: "carrinho vazio"}
	}
	if err := req.Delivery.Validate(); err != nil {
		s.metrics.IncrCheckout("rejected")
		return nil, err
	}
	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		s.metrics.IncrCheckout("rejected")
		return nil, &domain.ErrValidation{Field: "paymentMethod", Message: "forma de pagamento desconhecida"}
	}

	items, total := domain.FreezeCart(c)
	now := s.now()
	order := &domain.Order{
		ID:            uuid.New().String(),
		OwnerID:       id.UserID,
		CartID:        c.ID,
		Items:         items,
		Total:         total,
		Delivery:      req.Delivery,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(req.Notes),
		State:         domain.OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CheckoutCart(ctx, c.ID, c.Version, order); err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			s.metrics.IncrCheckout("conflict")
			s.logger.Warn("checkout conflict",
				zap.String("cart_id", c.ID),
				zap.Int64("version", c.Version),
				zap.String("reason", conflict.Message),
			)
			return nil, err
		}
		return nil, fmt.Errorf("checkout cart: %w", err)
	}

	s.metrics.IncrCheckout("completed")
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("owner_id", order.OwnerID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Items)),
	)
	return order, nil
}

func (s *CartService) activeCart(ctx context.Context, id *domain.Identity) (*domain.Cart, error) {
	if err := authz.Authorize(id, authz.Role(domain.RoleCompany)); err != nil {
		return nil, err
	}
	c, err := s.store.GetOrCreateActiveCart(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return c, nil
}

// cartHolding returns the caller's active cart if it holds itemID.
func (s *CartService) cartHolding(ctx context.Context, id *domain.Identity, itemID string) (*domain.Cart, error) {
	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := c.Item(itemID); !ok {
		return nil, &domain.ErrNotFound{Resource: "cart_item", ID: itemID}
	}
	if err := authz.Authorize(id, authz.Owns(c)); err != nil {
		return nil, err
	}
	return c, nil
}
