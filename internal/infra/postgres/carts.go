package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Store) loadCart(ctx context.Context, q querier, cartID string) (*domain.Cart, error) {
	var c domain.Cart
	err := q.QueryRow(ctx, `
		SELECT id, owner_id, active, version, created_at, updated_at
		FROM carts WHERE id = $1
	`, cartID).Scan(&c.ID, &c.OwnerID, &c.Active, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "cart", ID: cartID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, cart_id, product_id, product_name, quantity, unit_price_snapshot, added_at
		FROM cart_items WHERE cart_id = $1
		ORDER BY added_at, id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	c.Items = []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPriceSnapshot, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// GetOrCreateActiveCart relies on the partial unique index on (owner_id)
// WHERE active, so concurrent callers converge on one cart.
func (s *Store) GetOrCreateActiveCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO carts (id, owner_id, active, version)
		VALUES ($1, $2, TRUE, 1)
		ON CONFLICT (owner_id) WHERE active DO NOTHING
	`, uuid.New().String(), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var cartID string
	if err := s.pool.QueryRow(ctx, `SELECT id FROM carts WHERE owner_id = $1 AND active`, ownerID).Scan(&cartID); err != nil {
		return nil, fmt.Errorf("failed to get active cart: %w", err)
	}
	return s.loadCart(ctx, s.pool, cartID)
}

// lockActiveCart takes the row lock and fails with a conflict when the cart is
// no longer active.
func lockActiveCart(ctx context.Context, tx pgx.Tx, cartID string) (int64, error) {
	var active bool
	var version int64
	err := tx.QueryRow(ctx, `SELECT active, version FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&active, &version)
	if isNoRows(err) {
		return 0, &domain.ErrNotFound{Resource: "cart", ID: cartID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock cart: %w", err)
	}
	if !active {
		return 0, &domain.ErrConflict{Message: "carrinho já finalizado"}
	}
	return version, nil
}

func bumpCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	if _, err := tx.Exec(ctx, `UPDATE carts SET version = version + 1, updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("failed to bump cart version: %w", err)
	}
	return nil
}

func (s *Store) AddOrMergeItem(ctx context.Context, cartID string, item domain.CartItem) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockActiveCart(ctx, tx, cartID); err != nil {
			return err
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.AddedAt.IsZero() {
			item.AddedAt = time.Now()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cart_items (id, cart_id, product_id, product_name, quantity, unit_price_snapshot, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`, item.ID, cartID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceSnapshot, item.AddedAt)
		if isForeignKeyViolation(err) {
			return &domain.ErrNotFound{Resource: "product", ID: item.ProductID}
		}
		if err != nil {
			return fmt.Errorf("failed to add cart item: %w", err)
		}
		if err := bumpCart(ctx, tx, cartID); err != nil {
			return err
		}
		cart, err = s.loadCart(ctx, tx, cartID)
		return err
	})
	return cart, err
}

func (s *Store) SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int) (*domain.Cart, error) {
	var cart *domain.Cart
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockActiveCart(ctx, tx, cartID); err != nil {
			return err
		}
		var (
			tag pgconn.CommandTag
			err error
		)
		if quantity <= 0 {
			tag, err = tx.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
		} else {
			tag, err = tx.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $1 AND cart_id = $2`, itemID, cartID, quantity)
		}
		if err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "cart_item", ID: itemID}
		}
		if err := bumpCart(ctx, tx, cartID); err != nil {
			return err
		}
		cart, err = s.loadCart(ctx, tx, cartID)
		return err
	})
	return cart, err
}

func (s *Store) RemoveItem(ctx context.Context, cartID, itemID string) (*domain.Cart, error) {
	return s.SetItemQuantity(ctx, cartID, itemID, 0)
}

// CheckoutCart freezes the cart into order inside one transaction holding the
// cart row lock. A cart that is inactive, or whose version moved since the
// caller read it, yields *domain.ErrConflict.
func (s *Store) CheckoutCart(ctx context.Context, cartID string, expectedVersion int64, order *domain.Order) error {
	ctx, span := tracer.Start(ctx, "Postgres.CheckoutCart")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", cartID), attribute.Int64("cart.version", expectedVersion))

	return s.inTx(ctx, func(tx pgx.Tx) error {
		version, err := lockActiveCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return &domain.ErrConflict{Message: "carrinho alterado durante a finalização, tente novamente"}
		}

		if order.ID == "" {
			order.ID = uuid.New().String()
		}
		d := order.Delivery
		_, err = tx.Exec(ctx, `
			INSERT INTO orders (id, owner_id, cart_id, total, delivery_address, delivery_city, delivery_state,
			                    delivery_zip, delivery_phone, payment_method, notes, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, order.ID, order.OwnerID, cartID, order.Total, d.Address, d.City, d.State, d.Zip, d.Phone,
			string(order.PaymentMethod), order.Notes, string(order.State), order.CreatedAt, order.UpdatedAt)
		if isUniqueViolation(err) {
			return &domain.ErrConflict{Message: "carrinho já finalizado"}
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range order.Items {
			it := &order.Items[i]
			if it.ID == "" {
				it.ID = uuid.New().String()
			}
			it.OrderID = order.ID
			batch.Queue(`
				INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price_snapshot, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, it.ID, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPriceSnapshot, it.Subtotal)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert order items: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE carts SET active = FALSE, version = version + 1, updated_at = NOW() WHERE id = $1
		`, cartID); err != nil {
			return fmt.Errorf("failed to deactivate cart: %w", err)
		}
		return nil
	})
}
