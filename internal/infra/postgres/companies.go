package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/jackc/pgx/v5"
)

const companyColumns = `user_id, tax_id, legal_name, trade_name, address, city, state, zip, phone,
	verification_state, required_documents, registry_status, registry_warning, verified_at,
	verified_by_admin_id, verification_notes, created_at`

func scanCompany(row pgx.Row) (*domain.CompanyProfile, error) {
	var p domain.CompanyProfile
	var state string
	var docs []byte
	err := row.Scan(&p.UserID, &p.TaxID, &p.LegalName, &p.TradeName, &p.Address, &p.City, &p.State, &p.Zip,
		&p.Phone, &state, &docs, &p.RegistryStatus, &p.RegistryWarning, &p.VerifiedAt,
		&p.VerifiedByAdminID, &p.VerificationNotes, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.VerificationState = domain.VerificationState(state)
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &p.RequiredDocuments); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	return &p, nil
}

func (s *Store) CreateCompanyProfile(ctx context.Context, p *domain.CompanyProfile) error {
	docs, err := json.Marshal(p.RequiredDocuments)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO company_profiles (user_id, tax_id, legal_name, trade_name, address, city, state, zip, phone,
		                              verification_state, required_documents, registry_status, registry_warning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.UserID, p.TaxID, p.LegalName, p.TradeName, p.Address, p.City, p.State, p.Zip, p.Phone,
		string(p.VerificationState), docs, p.RegistryStatus, p.RegistryWarning, p.CreatedAt)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "CNPJ já cadastrado ou empresa já possui perfil"}
	}
	if err != nil {
		return fmt.Errorf("failed to create company profile: %w", err)
	}
	return nil
}

func (s *Store) GetCompanyProfile(ctx context.Context, userID string) (*domain.CompanyProfile, error) {
	p, err := scanCompany(s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM company_profiles WHERE user_id = $1`, userID))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "company_profile", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company profile: %w", err)
	}
	return p, nil
}

func (s *Store) VerifyCompanyProfile(ctx context.Context, userID string, to domain.VerificationState, adminID, notes string, at time.Time) (*domain.CompanyProfile, error) {
	p, err := scanCompany(s.pool.QueryRow(ctx, `
		UPDATE company_profiles
		SET verification_state = $2, verified_by_admin_id = $3, verification_notes = $4, verified_at = $5
		WHERE user_id = $1 AND verification_state = 'pending'
		RETURNING `+companyColumns,
		userID, string(to), adminID, notes, at))
	if isNoRows(err) {
		existing, getErr := s.GetCompanyProfile(ctx, userID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &domain.ErrConflict{Message: "empresa já foi avaliada (" + string(existing.VerificationState) + ")"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify company profile: %w", err)
	}
	return p, nil
}

func (s *Store) ListCompanyProfiles(ctx context.Context, state domain.VerificationState) ([]domain.CompanyProfile, error) {
	query := `SELECT ` + companyColumns + ` FROM company_profiles`
	var args []any
	if state != "" {
		query += ` WHERE verification_state = $1`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list company profiles: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CompanyProfile, 0)
	for rows.Next() {
		p, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CountCompanyProfiles(ctx context.Context, state domain.VerificationState) (int, error) {
	var n int
	var err error
	if state == "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM company_profiles`).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM company_profiles WHERE verification_state = $1`, string(state)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count company profiles: %w", err)
	}
	return n, nil
}
