package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenIssuer = "selo-amazonia-api"

// ============================================================
// Refresh: POST /v1/auth/refresh
// ============================================================

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	tokenHash := hashToken(req.RefreshToken)

	stored, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil {
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização inválido"}
	}

	// rotation: the presented token is spent either way, and only the
	// caller that spends it may continue
	revoked, err := s.store.RevokeRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !revoked {
		s.logger.Warn("refresh: token already spent", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização inválido"}
	}

	if stored.ExpiresAt.Before(s.now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "Token de atualização expirado"}
	}

	user, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Token de atualização inválido"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.Active {
		return nil, &domain.ErrUnauthorized{Message: "usuário desativado"}
	}

	return s.issueTokens(ctx, user)
}

// ============================================================
// Logout: POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, id *domain.Identity) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := authz.Authorize(id); err != nil {
		return err
	}
	if err := s.store.RevokeAllRefreshTokens(ctx, id.UserID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", id.UserID))
	return nil
}

// ============================================================
// IdentityFromToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub  string      `json:"sub"`
	Role domain.Role `json:"role"`
	Type string      `json:"type"`
	jwt.RegisteredClaims
}

// ValidateAccessToken checks signature, expiry and token type.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	return claims, nil
}

// IdentityFromToken validates the access token and reloads the user, so role
// changes and deactivation take effect before the token expires.
func (s *AuthService) IdentityFromToken(ctx context.Context, tokenString string) (*domain.Identity, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.IdentityFromToken")
	defer span.End()

	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return nil, &domain.ErrUnauthorized{Message: "usuário desativado"}
	}
	return user.Identity(), nil
}

// ============================================================
// Internal JWT helpers
// ============================================================

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.LoginResponse, error) {
	accessToken, err := s.signAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshHash, s.now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Role:         user.Role,
	}, nil
}

func (s *AuthService) signAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := JWTClaims{
		Sub:  user.ID,
		Role: user.Role,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
