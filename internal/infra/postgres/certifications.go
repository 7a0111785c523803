package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const certSelect = `
	SELECT c.id, c.product_id, p.name, p.owner_id, c.submitted_text, c.documents, c.state,
	       c.submitted_at, c.resolved_at, c.resolved_by_admin_id, c.admin_notes
	FROM certifications c
	JOIN products p ON p.id = c.product_id`

func scanCertification(row pgx.Row) (*domain.Certification, error) {
	var c domain.Certification
	var docs []byte
	var state string
	err := row.Scan(&c.ID, &c.ProductID, &c.ProductName, &c.ProductOwnerID, &c.SubmittedText, &docs, &state,
		&c.SubmittedAt, &c.ResolvedAt, &c.ResolvedByAdminID, &c.AdminNotes)
	if err != nil {
		return nil, err
	}
	c.State = domain.CertificationState(state)
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &c.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &c, nil
}

func (s *Store) CreateCertification(ctx context.Context, c *domain.Certification) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Documents == nil {
		c.Documents = []domain.DocumentRef{}
	}
	docs, err := json.Marshal(c.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO certifications (id, product_id, submitted_text, documents, state, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING product_id
		)
		SELECT p.name, p.owner_id FROM ins JOIN products p ON p.id = ins.product_id
	`, c.ID, c.ProductID, c.SubmittedText, docs, string(c.State), c.SubmittedAt).Scan(&c.ProductName, &c.ProductOwnerID)
	if isForeignKeyViolation(err) {
		return &domain.ErrNotFound{Resource: "product", ID: c.ProductID}
	}
	if err != nil {
		return fmt.Errorf("failed to create certification: %w", err)
	}
	return nil
}

func (s *Store) GetCertification(ctx context.Context, id string) (*domain.Certification, error) {
	return s.getCertification(ctx, s.pool, id)
}

func (s *Store) getCertification(ctx context.Context, q querier, id string) (*domain.Certification, error) {
	c, err := scanCertification(q.QueryRow(ctx, certSelect+` WHERE c.id = $1`, id))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "certification", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certification: %w", err)
	}
	return c, nil
}

func certWhere(q port.CertificationQuery) (string, []any) {
	where := " WHERE 1=1"
	args := []any{}
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		where += fmt.Sprintf(" AND p.owner_id = $%d", len(args))
	}
	if q.ProductID != "" {
		args = append(args, q.ProductID)
		where += fmt.Sprintf(" AND c.product_id = $%d", len(args))
	}
	if q.State != "" {
		args = append(args, string(q.State))
		where += fmt.Sprintf(" AND c.state = $%d", len(args))
	}
	return where, args
}

func (s *Store) ListCertifications(ctx context.Context, q port.CertificationQuery) ([]domain.Certification, error) {
	where, args := certWhere(q)
	rows, err := s.pool.Query(ctx, certSelect+where+` ORDER BY c.submitted_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certifications: %w", err)
	}
	defer rows.Close()

	certs := []domain.Certification{}
	for rows.Next() {
		c, err := scanCertification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certification: %w", err)
		}
		certs = append(certs, *c)
	}
	return certs, rows.Err()
}

func (s *Store) CountCertifications(ctx context.Context, q port.CertificationQuery) (int, error) {
	where, args := certWhere(q)
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM certifications c JOIN products p ON p.id = c.product_id`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count certifications: %w", err)
	}
	return n, nil
}

// ResolveCertification is a conditional update on state = 'pending'. When no
// row matches it tells a missing certification from a terminal one.
func (s *Store) ResolveCertification(ctx context.Context, r domain.Resolution) (*domain.Certification, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ResolveCertification")
	defer span.End()

	var resolved *domain.Certification
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE certifications
			SET state = $2, resolved_at = $3, resolved_by_admin_id = $4, admin_notes = $5
			WHERE id = $1 AND state = 'pending'
		`, r.CertificationID, string(r.State), r.ResolvedAt, r.AdminID, r.Notes)
		if err != nil {
			return fmt.Errorf("failed to resolve certification: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var state string
			err := tx.QueryRow(ctx, `SELECT state FROM certifications WHERE id = $1`, r.CertificationID).Scan(&state)
			if isNoRows(err) {
				return &domain.ErrNotFound{Resource: "certification", ID: r.CertificationID}
			}
			if err != nil {
				return fmt.Errorf("failed to read certification state: %w", err)
			}
			return &domain.ErrConflict{Message: "certificação já foi resolvida (" + state + ")"}
		}
		resolved, err = s.getCertification(ctx, tx, r.CertificationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Store) HasApprovedCertification(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM certifications WHERE product_id = $1 AND state = 'approved')
	`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check approved certification: %w", err)
	}
	return exists, nil
}

func (s *Store) ApprovedProductIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT product_id FROM certifications WHERE state = 'approved'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved products: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
