package domain

// ============================================================
// Auth: Request / Response types
// ============================================================

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// RegisterResponse is the body for 201 from POST /v1/auth/register.
type RegisterResponse struct {
	UserID  string `json:"userId"`
	Role    Role   `json:"role"`
	Message string `json:"message"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthAssertion is what the OAuth collaborator hands over after a successful
// provider sign-in. The provider plumbing itself lives outside this service.
type OAuthAssertion struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleHint string `json:"role,omitempty"`
}

// LoginResponse is returned by login, OAuth login and refresh.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Role         Role   `json:"role"`
}

// RefreshRequest is the body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SetRoleRequest is the body for PUT /v1/admin/users/{userId}/role.
type SetRoleRequest struct {
	Role string `json:"role"`
}
