package service

import (
	"context"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var orderTracer = otel.Tracer("service/order")

// OrderService exposes orders to their buyers and to admins.
type OrderService struct {
	store  port.OrderStore
	logger *zap.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(store port.OrderStore, logger *zap.Logger) *OrderService {
	return &OrderService{store: store, logger: logger}
}

// List returns the caller's orders, or every order for admins.
func (s *OrderService) List(ctx context.Context, id *domain.Identity, state string) ([]domain.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.List")
	defer span.End()

	if err := authz.Authorize(id, authz.Role(domain.RoleCompany, domain.RoleAdmin)); err != nil {
		return nil, err
	}
	q := port.OrderQuery{}
	if state != "" {
		st, ok := domain.ParseOrderState(state)
		if !ok {
			return nil, &domain.ErrValidation{Field: "state", Message: "estado de pedido desconhecido"}
		}
		q.State = st
	}
	authz.FilterOwned(id, &q)
	return s.store.ListOrders(ctx, q)
}

func (s *OrderService) Get(ctx context.Context, id *domain.Identity, orderID string) (*domain.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if err := authz.Authenticate(id); err != nil {
		return nil, err
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(id, authz.Owns(o)); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateState moves an order along its fulfilment lifecycle.
func (s *OrderService) UpdateState(ctx context.Context, id *domain.Identity, orderID string, req *domain.UpdateOrderStateRequest) (*domain.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.UpdateState")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	next, ok := domain.ParseOrderState(req.State)
	if !ok {
		return nil, &domain.ErrValidation{Field: "state", Message: "estado de pedido desconhecido"}
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.State.CanTransitionTo(next) {
		return nil, &domain.ErrConflict{Message: "transição de " + string(o.State) + " para " + string(next) + " não permitida"}
	}

	updated, err := s.store.TransitionOrder(ctx, orderID, o.State, next)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order state updated",
		zap.String("order_id", orderID),
		zap.String("from", string(o.State)),
		zap.String("to", string(next)),
		zap.String("admin_id", id.UserID),
	)
	return updated, nil
}
