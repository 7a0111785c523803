package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, owner_id, cart_id, total, delivery_address, delivery_city, delivery_state, delivery_zip,
	delivery_phone, payment_method, notes, state, payment_ref, paid_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var method, state string
	err := row.Scan(&o.ID, &o.OwnerID, &o.CartID, &o.Total, &o.Delivery.Address, &o.Delivery.City,
		&o.Delivery.State, &o.Delivery.Zip, &o.Delivery.Phone, &method, &o.Notes, &state,
		&o.PaymentRef, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.State = domain.OrderState(state)
	return &o, nil
}

func (s *Store) loadOrderItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price_snapshot, subtotal
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPriceSnapshot, &it.Subtotal); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (s *Store) getOrder(ctx context.Context, q querier, id string) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := s.loadOrderItems(ctx, q, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder(ctx, s.pool, id)
}

func (s *Store) ListOrders(ctx context.Context, q port.OrderQuery) ([]domain.Order, error) {
	where := " WHERE 1=1"
	args := []any{}
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if q.State != "" {
		args = append(args, string(q.State))
		where += fmt.Sprintf(" AND state = $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var ptrs []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if err := s.loadOrderItems(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to domain.OrderState) (*domain.Order, error) {
	var order *domain.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET state = $3, updated_at = NOW() WHERE id = $1 AND state = $2
		`, id, string(from), string(to))
		if err != nil {
			return fmt.Errorf("failed to update order state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.getOrder(ctx, tx, id); err != nil {
				return err
			}
			return &domain.ErrConflict{Message: "pedido não está mais em " + string(from)}
		}
		order, err = s.getOrder(ctx, tx, id)
		return err
	})
	return order, err
}

func (s *Store) CountOrdersByState(ctx context.Context) (map[domain.OrderState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM orders GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.OrderState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan order count: %w", err)
		}
		counts[domain.OrderState(state)] = n
	}
	return counts, rows.Err()
}
