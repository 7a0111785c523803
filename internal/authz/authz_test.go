package authz_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/selo-amazonia-go/internal/authz"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

func producer(id string) *domain.Identity {
	return &domain.Identity{UserID: id, Role: domain.RoleProducer, Active: true}
}

func TestAuthenticate(t *testing.T) {
	var unauthorized *domain.ErrUnauthorized

	if err := authz.Authenticate(nil); !errors.As(err, &unauthorized) {
		t.Errorf("nil identity: expected ErrUnauthorized, got %v", err)
	}
	inactive := producer("p1")
	inactive.Active = false
	if err := authz.Authenticate(inactive); !errors.As(err, &unauthorized) {
		t.Errorf("inactive identity: expected ErrUnauthorized, got %v", err)
	}
	if err := authz.Authenticate(producer("p1")); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	var forbidden *domain.ErrForbidden

	if err := authz.RequireRole(producer("p1"), domain.RoleProducer); err != nil {
		t.Errorf("expected producer allowed, got %v", err)
	}
	if err := authz.RequireRole(producer("p1"), domain.RoleAdmin); !errors.As(err, &forbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	super := &domain.Identity{UserID: "s", Role: domain.RoleCompany, Active: true, SuperAdmin: true}
	if err := authz.RequireRole(super, domain.RoleAdmin); err != nil {
		t.Errorf("super admin should pass role checks, got %v", err)
	}
}

func TestRequireOwner_ForeignResourceIsNotFound(t *testing.T) {
	product := &domain.Product{ID: "prod-1", OwnerID: "p1"}

	if err := authz.RequireOwner(producer("p1"), product); err != nil {
		t.Errorf("owner should pass, got %v", err)
	}

	err := authz.RequireOwner(producer("p2"), product)
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Resource != "product" || notFound.ID != "prod-1" {
		t.Errorf("unexpected not found details: %+v", notFound)
	}

	admin := &domain.Identity{UserID: "a1", Role: domain.RoleAdmin, Active: true}
	if err := authz.RequireOwner(admin, product); err != nil {
		t.Errorf("admin should pass ownership, got %v", err)
	}
}

func TestFilterOwned(t *testing.T) {
	q := &port.ProductQuery{}
	authz.FilterOwned(producer("p1"), q)
	if q.OwnerID != "p1" {
		t.Errorf("expected owner filter p1, got %q", q.OwnerID)
	}

	q = &port.ProductQuery{}
	authz.FilterOwned(&domain.Identity{UserID: "a1", Role: domain.RoleAdmin, Active: true}, q)
	if q.OwnerID != "" {
		t.Errorf("admin listing should be unrestricted, got %q", q.OwnerID)
	}

	q = &port.ProductQuery{}
	authz.FilterOwned(nil, q)
	if q.OwnerID == "" {
		t.Error("anonymous listing must not be unrestricted")
	}
	if q.OwnerID == "p1" || q.OwnerID == "a1" {
		t.Errorf("anonymous listing matched a real owner %q", q.OwnerID)
	}
}

func TestAuthorize_RoleBeforeOwnership(t *testing.T) {
	product := &domain.Product{ID: "prod-1", OwnerID: "p1"}
	company := &domain.Identity{UserID: "c1", Role: domain.RoleCompany, Active: true}

	// ownership listed first still reports the role failure
	err := authz.Authorize(company, authz.Owns(product), authz.Role(domain.RoleProducer))
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	err = authz.Authorize(producer("p2"), authz.Role(domain.RoleProducer), authz.Owns(product))
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := authz.Authorize(producer("p1"), authz.Role(domain.RoleProducer), authz.Owns(product)); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
}

func TestAuthorize_UnauthenticatedFirst(t *testing.T) {
	err := authz.Authorize(nil, authz.Role(domain.RoleAdmin))
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
