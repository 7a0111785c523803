package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func register(t *testing.T, f *fixture, email, role string) *domain.RegisterResponse {
	t.Helper()
	resp, err := f.auth.Register(context.Background(), &domain.RegisterRequest{
		Email:       email,
		Password:    "s3nha-forte",
		DisplayName: "Usuário " + role,
		Role:        role,
	})
	require.NoError(t, err)
	return resp
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, &domain.RegisterRequest{Email: "not-an-email", Password: "123", Role: "admin"})
	var v *domain.ErrValidation
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "email")
	assert.Contains(t, v.Fields, "password")
	assert.Contains(t, v.Fields, "displayName")
	assert.Contains(t, v.Fields, "role", "admins cannot self-register")

	resp := register(t, f, "Produtor@Example.com", "produtor")
	assert.Equal(t, domain.RoleProducer, resp.Role)

	_, err = f.auth.Register(ctx, &domain.RegisterRequest{
		Email: "produtor@example.com", Password: "outra-senha", DisplayName: "Outro", Role: "company",
	})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestLogin_IssuesTokensThatResolveToIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "empresa@example.com", "empresa")

	var unauthorized *domain.ErrUnauthorized
	_, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "empresa@example.com", Password: "errada"})
	require.ErrorAs(t, err, &unauthorized)
	_, err = f.auth.Login(ctx, &domain.LoginRequest{Email: "ninguem@example.com", Password: "s3nha-forte"})
	require.ErrorAs(t, err, &unauthorized)

	login, err := f.auth.Login(ctx, &domain.LoginRequest{Email: " EMPRESA@example.com ", Password: "s3nha-forte"})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, login.UserID)
	assert.Equal(t, 900, login.ExpiresIn)

	id, err := f.auth.IdentityFromToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, id.UserID)
	assert.Equal(t, domain.RoleCompany, id.Role)

	_, err = f.auth.IdentityFromToken(ctx, login.RefreshToken)
	assert.ErrorAs(t, err, &unauthorized, "refresh token is not an access token")
	_, err = f.auth.IdentityFromToken(ctx, login.AccessToken+"x")
	assert.ErrorAs(t, err, &unauthorized)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f, "p@example.com", "producer")

	login, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "p@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)

	next, err := f.auth.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, next.RefreshToken)

	var unauthorized *domain.ErrUnauthorized
	_, err = f.auth.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	require.ErrorAs(t, err, &unauthorized, "spent token")

	id, err := f.auth.IdentityFromToken(ctx, next.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.auth.Logout(ctx, id))

	_, err = f.auth.Refresh(ctx, &domain.RefreshRequest{RefreshToken: next.RefreshToken})
	assert.ErrorAs(t, err, &unauthorized, "logout revokes every refresh token")
}

func TestRefresh_ConcurrentUseSpendsTokenOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f, "p@example.com", "producer")

	login, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "p@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auth.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var unauthorized *domain.ErrUnauthorized
		assert.ErrorAs(t, err, &unauthorized)
	}
	assert.Equal(t, 1, succeeded)
}

func TestSetUserRole_AndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.auth.EnsureAdmin(ctx, "root@example.com", "admin-senha"))
	require.NoError(t, f.auth.EnsureAdmin(ctx, "root@example.com", "admin-senha"), "idempotent")

	adminLogin, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "root@example.com", Password: "admin-senha"})
	require.NoError(t, err)
	admin, err := f.auth.IdentityFromToken(ctx, adminLogin.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.True(t, admin.SuperAdmin)

	reg := register(t, f, "p@example.com", "producer")
	login, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "p@example.com", Password: "s3nha-forte"})
	require.NoError(t, err)
	producer, err := f.auth.IdentityFromToken(ctx, login.AccessToken)
	require.NoError(t, err)

	var forbidden *domain.ErrForbidden
	_, err = f.auth.SetUserRole(ctx, producer, reg.UserID, &domain.SetRoleRequest{Role: "admin"})
	require.ErrorAs(t, err, &forbidden)

	var v *domain.ErrValidation
	_, err = f.auth.SetUserRole(ctx, admin, admin.UserID, &domain.SetRoleRequest{Role: "producer"})
	require.ErrorAs(t, err, &v)
	_, err = f.auth.SetUserRole(ctx, admin, reg.UserID, &domain.SetRoleRequest{Role: "astronauta"})
	require.ErrorAs(t, err, &v)

	u, err := f.auth.SetUserRole(ctx, admin, reg.UserID, &domain.SetRoleRequest{Role: "empresa"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCompany, u.Role)

	// the old access token now resolves to the new role
	id, err := f.auth.IdentityFromToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCompany, id.Role)

	var unauthorized *domain.ErrUnauthorized
	_, err = f.auth.Refresh(ctx, &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	require.ErrorAs(t, err, &unauthorized)

	require.NoError(t, f.auth.Deactivate(ctx, admin, reg.UserID))
	_, err = f.auth.IdentityFromToken(ctx, login.AccessToken)
	require.ErrorAs(t, err, &unauthorized)
	_, err = f.auth.Login(ctx, &domain.LoginRequest{Email: "p@example.com", Password: "s3nha-forte"})
	assert.ErrorAs(t, err, &unauthorized)
}

func TestLoginOAuth_LinksOrCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := register(t, f, "empresa@example.com", "company")

	linked, err := f.auth.LoginOAuth(ctx, &domain.OAuthAssertion{
		Provider: "Google", Subject: "g-1", Email: "empresa@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, linked.UserID)
	assert.Equal(t, domain.RoleCompany, linked.Role)

	again, err := f.auth.LoginOAuth(ctx, &domain.OAuthAssertion{
		Provider: "google", Subject: "g-1", Email: "outro@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, again.UserID, "matched by provider subject")

	fresh, err := f.auth.LoginOAuth(ctx, &domain.OAuthAssertion{
		Provider: "google", Subject: "g-2", Email: "novo@example.com", RoleHint: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleProducer, fresh.Role, "admin hint is ignored")

	_, err = f.auth.LoginOAuth(ctx, &domain.OAuthAssertion{Provider: "google"})
	var v *domain.ErrValidation
	assert.ErrorAs(t, err, &v)
}
