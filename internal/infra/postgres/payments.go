package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, order_id, owner_id, method, state, session_id, session_url, payment_ref, amount, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var method, state string
	err := row.Scan(&p.ID, &p.OrderID, &p.OwnerID, &method, &state, &p.SessionID, &p.SessionURL,
		&p.PaymentRef, &p.Amount, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt)
	if err != nil {
		return nil, err
	}
	p.Method = domain.PaymentMethod(method)
	p.State = domain.PaymentState(state)
	return &p, nil
}

func (s *Store) UpsertPayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := s.pool.QueryRow(ctx, `
		INSERT INTO payments (id, order_id, owner_id, method, state, session_id, session_url, payment_ref, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO UPDATE
		SET state = EXCLUDED.state, session_id = EXCLUDED.session_id, session_url = EXCLUDED.session_url,
		    method = EXCLUDED.method, amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, p.ID, p.OrderID, p.OwnerID, string(p.Method), string(p.State), p.SessionID, p.SessionURL,
		p.PaymentRef, p.Amount, p.CreatedAt, p.UpdatedAt).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: orderID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetPaymentByRef matches either the gateway payment reference or the session id.
func (s *Store) GetPaymentByRef(ctx context.Context, paymentRef string) (*domain.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE $1 <> '' AND (payment_ref = $1 OR session_id = $1)
		LIMIT 1
	`, paymentRef))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: paymentRef}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (s *Store) SetPaymentState(ctx context.Context, orderID string, state domain.PaymentState, paymentRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET state = $2, payment_ref = COALESCE(NULLIF($3, ''), payment_ref), updated_at = NOW()
		WHERE order_id = $1 AND state IN ('pending', 'processing')
	`, orderID, string(state), paymentRef)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check payment: %w", err)
	}
	if !exists {
		return &domain.ErrNotFound{Resource: "payment", ID: orderID}
	}
	return &domain.ErrConflict{Message: "pagamento já finalizado"}
}

// CompletePayment approves the payment and moves the order pending -> paid in
// one transaction.
func (s *Store) CompletePayment(ctx context.Context, orderID, paymentRef string, at time.Time) (*domain.Order, error) {
	var order *domain.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var state string
		err := tx.QueryRow(ctx, `SELECT state FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&state)
		if isNoRows(err) {
			return &domain.ErrNotFound{Resource: "order", ID: orderID}
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if domain.OrderState(state) != domain.OrderPending {
			return &domain.ErrConflict{Message: "pedido não está pendente"}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE payments SET state = 'approved', payment_ref = $2, paid_at = $3, updated_at = $3
			WHERE order_id = $1
		`, orderID, paymentRef, at); err != nil {
			return fmt.Errorf("failed to approve payment: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET state = 'paid', payment_ref = $2, paid_at = $3, updated_at = $3
			WHERE id = $1
		`, orderID, paymentRef, at); err != nil {
			return fmt.Errorf("failed to mark order paid: %w", err)
		}
		order, err = s.getOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}
