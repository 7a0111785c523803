// Package authz is the authorization guard. Every service operation runs one
// pipeline: authenticate, then role checks, then ownership checks.
//
// Role failures are reported as *domain.ErrForbidden. Ownership failures are
// reported as *domain.ErrNotFound so callers cannot learn of the existence of
// other users' resources.
package authz

import (
	"sort"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
)

// Owned is any resource that belongs to exactly one user.
type Owned interface {
	Owner() string
	Kind() string
	Key() string
}

// OwnerScoped is a listing query that can be restricted to one owner.
type OwnerScoped interface {
	SetOwner(id string)
}

type stage int

const (
	stageRole stage = iota
	stageOwnership
)

// Check is one step of an Authorize pipeline.
type Check struct {
	stage stage
	run   func(*domain.Identity) error
}

// Role builds a role check.
func Role(roles ...domain.Role) Check {
	return Check{stage: stageRole, run: func(id *domain.Identity) error { return RequireRole(id, roles...) }}
}

// Owns builds an ownership check on res.
func Owns(res Owned) Check {
	return Check{stage: stageOwnership, run: func(id *domain.Identity) error { return RequireOwner(id, res) }}
}

// Authenticate fails unless id is present and active.
func Authenticate(id *domain.Identity) error {
	if id == nil || id.UserID == "" {
		return &domain.ErrUnauthorized{Message: "autenticação necessária"}
	}
	if !id.Active {
		return &domain.ErrUnauthorized{Message: "usuário desativado"}
	}
	return nil
}

// RequireRole fails with ErrForbidden unless id holds one of roles.
// Super-admins pass every role check.
func RequireRole(id *domain.Identity, roles ...domain.Role) error {
	if id == nil {
		return &domain.ErrUnauthorized{Message: "autenticação necessária"}
	}
	if id.SuperAdmin {
		return nil
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return &domain.ErrForbidden{Action: "role " + string(id.Role) + " not allowed"}
}

// RequireOwner fails with ErrNotFound unless id owns res. Admins pass.
func RequireOwner(id *domain.Identity, res Owned) error {
	if res == nil {
		return &domain.ErrNotFound{Resource: "resource"}
	}
	if id == nil || (!id.IsAdmin() && res.Owner() != id.UserID) {
		return &domain.ErrNotFound{Resource: res.Kind(), ID: res.Key()}
	}
	return nil
}

// FilterOwned restricts q to rows owned by id. Admins are left unrestricted.
func FilterOwned(id *domain.Identity, q OwnerScoped) {
	if id == nil {
		// matches nothing
		q.SetOwner("\x00")
		return
	}
	if id.IsAdmin() {
		return
	}
	q.SetOwner(id.UserID)
}

// Authorize runs authenticate, then every role check, then every ownership
// check, stopping at the first denial.
func Authorize(id *domain.Identity, checks ...Check) error {
	if err := Authenticate(id); err != nil {
		return err
	}
	ordered := make([]Check, len(checks))
	copy(ordered, checks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].stage < ordered[j].stage })
	for _, c := range ordered {
		if err := c.run(id); err != nil {
			return err
		}
	}
	return nil
}
