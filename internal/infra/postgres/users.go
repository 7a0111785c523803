package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, display_name, role, active, super_admin, password_hash, oauth_provider, oauth_subject, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.Active, &u.SuperAdmin,
		&u.PasswordHash, &u.OAuthProvider, &u.OAuthSubject, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, strings.ToLower(u.Email), u.DisplayName, string(u.Role), u.Active, u.SuperAdmin,
		u.PasswordHash, u.OAuthProvider, u.OAuthSubject, u.CreatedAt)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "e-mail já cadastrado"}
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id = $1", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "lower(email) = lower($1)", email)
}

func (s *Store) GetUserByOAuth(ctx context.Context, provider, subject string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_subject = $2`,
		provider, subject))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: provider + ":" + subject}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if isNoRows(err) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *Store) LinkOAuth(ctx context.Context, userID, provider, subject string) error {
	return s.execUser(ctx, userID,
		`UPDATE users SET oauth_provider = $2, oauth_subject = $3 WHERE id = $1`, provider, subject)
}

func (s *Store) UpdateUserRole(ctx context.Context, userID string, role domain.Role) error {
	return s.execUser(ctx, userID, `UPDATE users SET role = $2 WHERE id = $1`, string(role))
}

func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	return s.execUser(ctx, userID, `UPDATE users SET active = $2 WHERE id = $1`, active)
}

func (s *Store) execUser(ctx context.Context, userID, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{userID}, args...)...)
	if isUniqueViolation(err) {
		return &domain.ErrConflict{Message: "identidade OAuth já vinculada a outro usuário"}
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return nil
}

// ============================================================
// Refresh tokens
// ============================================================

func (s *Store) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns nil when the token is unknown or revoked.
func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, token_hash, expires_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1 AND NOT revoked
	`, tokenHash).Scan(&t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND NOT revoked`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}
