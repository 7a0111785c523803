package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/jackc/pgx/v5"
)

const producerColumns = `user_id, tax_id, bio, photo, city, state, zip, whatsapp, instagram, facebook, created_at, updated_at`

func scanProducer(row pgx.Row) (*domain.ProducerProfile, error) {
	var p domain.ProducerProfile
	var photo []byte
	err := row.Scan(&p.UserID, &p.TaxID, &p.Bio, &photo, &p.City, &p.State, &p.Zip,
		&p.WhatsApp, &p.Instagram, &p.Facebook, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(photo) > 0 {
		if err := json.Unmarshal(photo, &p.Photo); err != nil {
			return nil, fmt.Errorf("decode photo: %w", err)
		}
	}
	return &p, nil
}

// UpsertProducerProfile keeps created_at of an existing row and reads back
// both timestamps into p.
func (s *Store) UpsertProducerProfile(ctx context.Context, p *domain.ProducerProfile) error {
	var photo []byte
	if p.Photo != nil {
		var err error
		if photo, err = json.Marshal(p.Photo); err != nil {
			return fmt.Errorf("encode photo: %w", err)
		}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO producer_profiles (user_id, tax_id, bio, photo, city, state, zip, whatsapp, instagram, facebook)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE
		SET tax_id = EXCLUDED.tax_id, bio = EXCLUDED.bio, photo = EXCLUDED.photo, city = EXCLUDED.city,
		    state = EXCLUDED.state, zip = EXCLUDED.zip, whatsapp = EXCLUDED.whatsapp,
		    instagram = EXCLUDED.instagram, facebook = EXCLUDED.facebook, updated_at = NOW()
		RETURNING created_at, updated_at
	`, p.UserID, p.TaxID, p.Bio, photo, p.City, p.State, p.Zip, p.WhatsApp, p.Instagram, p.Facebook,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "CPF já cadastrado"}
	}
	if err != nil {
		return fmt.Errorf("failed to upsert producer profile: %w", err)
	}
	return nil
}

func (s *Store) GetProducerProfile(ctx context.Context, userID string) (*domain.ProducerProfile, error) {
	p, err := scanProducer(s.pool.QueryRow(ctx, `SELECT `+producerColumns+` FROM producer_profiles WHERE user_id = $1`, userID))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "producer_profile", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get producer profile: %w", err)
	}
	return p, nil
}
