package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost        = 12
	minPasswordLength = 8
)

// AuthService issues and validates credentials for every role.
type AuthService struct {
	store      port.UserStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.UserStore, jwtSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// ============================================================
// Register: POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(req.Email)
	fields := map[string]string{}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		fields["email"] = "e-mail inválido"
	}
	if len(req.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("senha deve ter ao menos %d caracteres", minPasswordLength)
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		fields["displayName"] = "nome é obrigatório"
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok || role == domain.RoleAdmin {
		// admins are provisioned, never self-registered
		fields["role"] = "escolha produtor ou empresa"
	}
	if len(fields) > 0 {
		return nil, &domain.ErrValidation{Fields: fields}
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, &domain.ErrConflict{Message: "e-mail já cadastrado"}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         role,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)

	return &domain.RegisterResponse{
		UserID:  user.ID,
		Role:    role,
		Message: "Cadastro realizado com sucesso",
	}, nil
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := normalizeEmail(req.Email)
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	// OAuth-only accounts have no password
	if user.PasswordHash == "" {
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: failed password attempt", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}
	if !user.Active {
		s.logger.Warn("login: inactive user", zap.String("user_id", user.ID))
		return nil, &domain.ErrUnauthorized{Message: "usuário desativado"}
	}

	resp, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return resp, nil
}

// ============================================================
// LoginOAuth: POST /v1/auth/oauth
// ============================================================

// LoginOAuth signs in a user vouched for by an external identity provider.
// The user is matched by (provider, subject), then by e-mail (and linked);
// otherwise a new account is created with the role hint, producer by default.
func (s *AuthService) LoginOAuth(ctx context.Context, a *domain.OAuthAssertion) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.LoginOAuth")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.provider", a.Provider))

	provider := strings.ToLower(strings.TrimSpace(a.Provider))
	email := normalizeEmail(a.Email)
	if provider == "" || strings.TrimSpace(a.Subject) == "" || email == "" {
		return nil, &domain.ErrValidation{Field: "assertion", Message: "provider, subject e email são obrigatórios"}
	}

	user, err := s.store.GetUserByOAuth(ctx, provider, a.Subject)
	switch {
	case err == nil:
	case isNotFound(err):
		user, err = s.linkOrCreateOAuthUser(ctx, provider, email, a)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("get oauth user: %w", err)
	}

	if !user.Active {
		return nil, &domain.ErrUnauthorized{Message: "usuário desativado"}
	}

	resp, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in via oauth",
		zap.String("user_id", user.ID),
		zap.String("provider", provider),
	)
	return resp, nil
}

func (s *AuthService) linkOrCreateOAuthUser(ctx context.Context, provider, email string, a *domain.OAuthAssertion) (*domain.User, error) {
	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		if err := s.store.LinkOAuth(ctx, existing.ID, provider, a.Subject); err != nil {
			return nil, fmt.Errorf("link oauth: %w", err)
		}
		existing.OAuthProvider = provider
		existing.OAuthSubject = a.Subject
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	role, ok := domain.ParseRole(a.RoleHint)
	if !ok || role == domain.RoleAdmin {
		role = domain.RoleProducer
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = email
	}
	user := &domain.User{
		ID:            uuid.New().String(),
		Email:         email,
		DisplayName:   name,
		Role:          role,
		Active:        true,
		OAuthProvider: provider,
		OAuthSubject:  a.Subject,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create oauth user: %w", err)
	}
	s.logger.Info("user registered via oauth",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
