package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Me returns the caller's own account.
func (s *AuthService) Me(ctx context.Context, id *domain.Identity) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	if err := authz.Authorize(id); err != nil {
		return nil, err
	}
	return s.store.GetUserByID(ctx, id.UserID)
}

// SetUserRole changes another user's role. Admin only.
func (s *AuthService) SetUserRole(ctx context.Context, id *domain.Identity, userID string, req *domain.SetRoleRequest) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.SetUserRole")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return nil, &domain.ErrValidation{Field: "role", Message: "papel desconhecido"}
	}
	if userID == id.UserID {
		return nil, &domain.ErrValidation{Field: "userId", Message: "não é possível alterar o próprio papel"}
	}

	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	// tokens carry the old role claim
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return nil, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user role changed",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("admin_id", id.UserID),
	)
	return s.store.GetUserByID(ctx, userID)
}

// Deactivate disables a user and revokes its sessions. Admin only.
func (s *AuthService) Deactivate(ctx context.Context, id *domain.Identity, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Deactivate")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := authz.Authorize(id, authz.Role(domain.RoleAdmin)); err != nil {
		return err
	}
	if userID == id.UserID {
		return &domain.ErrValidation{Field: "userId", Message: "não é possível desativar a própria conta"}
	}

	if err := s.store.SetUserActive(ctx, userID, false); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user deactivated",
		zap.String("user_id", userID),
		zap.String("admin_id", id.UserID),
	)
	return nil
}

// EnsureAdmin provisions the bootstrap super-admin at start-up when it does
// not exist yet. Admin accounts are never created through Register.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.EnsureAdmin")
	defer span.End()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("check admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.SplitN(email, "@", 2)[0],
		Role:         domain.RoleAdmin,
		Active:       true,
		SuperAdmin:   true,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("bootstrap admin created", zap.String("user_id", admin.ID))
	return nil
}
