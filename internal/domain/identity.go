package domain

import (
	"strings"
	"time"
)

// Role is the closed set of user kinds.
type Role string

const (
	RoleProducer Role = "producer"
	RoleCompany  Role = "company"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts the canonical tokens plus the legacy Portuguese ones
// ("produtor", "empresa", "auditor").
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "producer", "produtor":
		return RoleProducer, true
	case "company", "empresa":
		return RoleCompany, true
	case "admin", "auditor":
		return RoleAdmin, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleCompany, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated caller, passed explicitly into every operation.
type Identity struct {
	UserID     string
	Email      string
	Role       Role
	Active     bool
	SuperAdmin bool
}

// IsAdmin reports whether the identity has admin powers.
func (i *Identity) IsAdmin() bool {
	return i != nil && (i.Role == RoleAdmin || i.SuperAdmin)
}

// User is a registered account of any role.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	Role          Role      `json:"role"`
	Active        bool      `json:"active"`
	SuperAdmin    bool      `json:"superAdmin,omitempty"`
	PasswordHash  string    `json:"-"`
	OAuthProvider string    `json:"oauthProvider,omitempty"`
	OAuthSubject  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Identity builds the request identity for u.
func (u *User) Identity() *Identity {
	return &Identity{
		UserID:     u.ID,
		Email:      u.Email,
		Role:       u.Role,
		Active:     u.Active,
		SuperAdmin: u.SuperAdmin,
	}
}

// RefreshToken is a stored (hashed) refresh token.
type RefreshToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
}
