package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const productColumns = `id, owner_id, name, description, price, stock_status, created_at, updated_at, image`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var stock string
	var image []byte
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &stock, &p.CreatedAt, &p.UpdatedAt, &image); err != nil {
		return nil, err
	}
	p.StockStatus = domain.StockStatus(stock)
	if len(image) > 0 {
		if err := json.Unmarshal(image, &p.Image); err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, owner_id, name, description, price, stock_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.OwnerID, p.Name, p.Description, p.Price, string(p.StockStatus), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// UpdateProduct never touches owner_id.
func (s *Store) UpdateProduct(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, stock_status = $5, updated_at = $6
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, string(p.StockStatus), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "product", ID: p.ID}
	}
	return nil
}

func (s *Store) SetProductImage(ctx context.Context, productID string, image *domain.DocumentRef) error {
	var encoded []byte
	if image != nil {
		var err error
		if encoded, err = json.Marshal(image); err != nil {
			return fmt.Errorf("encode image: %w", err)
		}
	}
	tag, err := s.pool.Exec(ctx, `UPDATE products SET image = $2, updated_at = NOW() WHERE id = $1`, productID, encoded)
	if err != nil {
		return fmt.Errorf("failed to set product image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "product", ID: productID}
	}
	return nil
}

func productWhere(q port.ProductQuery) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		where += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if q.StockStatus != "" {
		args = append(args, string(q.StockStatus))
		where += fmt.Sprintf(" AND stock_status = $%d", len(args))
	}
	return where, args
}

func (s *Store) ListProducts(ctx context.Context, q port.ProductQuery) ([]domain.Product, error) {
	where, args := productWhere(q)
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products`+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) CountProducts(ctx context.Context, q port.ProductQuery) (int, error) {
	where, args := productWhere(q)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// DeleteProductCascade deletes certifications, then cart lines, then the
// product, in one transaction. Carts that lose a line get their version bumped
// so an in-flight checkout of that cart conflicts.
func (s *Store) DeleteProductCascade(ctx context.Context, id string) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteProductCascade")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	var removed int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT TRUE FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
			if isNoRows(err) {
				return &domain.ErrNotFound{Resource: "product", ID: id}
			}
			return fmt.Errorf("failed to lock product: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM certifications WHERE product_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete certifications: %w", err)
		}
		removed = int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `
			UPDATE carts SET version = version + 1, updated_at = NOW()
			WHERE id IN (SELECT cart_id FROM cart_items WHERE product_id = $1)
		`, id); err != nil {
			return fmt.Errorf("failed to bump cart versions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete cart items: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("product cascade committed",
		zap.String("product_id", id),
		zap.Int("certifications_removed", removed),
	)
	return removed, nil
}
