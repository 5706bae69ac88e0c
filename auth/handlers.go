package auth

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AuthHandlers provides all authentication endpoints.
type AuthHandlers struct {
	service   *AuthService
	validator *validator.Validate
}

// NewAuthHandlers creates a new auth handlers instance.
func NewAuthHandlers(service *AuthService) *AuthHandlers {
	return &AuthHandlers{
		service:   service,
		validator: validator.New(),
	}
}

// Request/response models.

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ValidateRequest struct {
	Token string `json:"token" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type LoginResponse struct {
	User         UserSummary `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type MeResponse struct {
	User        UserSummary   `json:"user"`
	Tenant      TenantSummary `json:"tenant"`
	Role        string        `json:"role"`
	Permissions []string      `json:"permissions"`
	AuthMethod  AuthMethod    `json:"auth_method"`
	APIKeyID    string        `json:"api_key_id,omitempty"`
}

// Login handles user login requests.
// POST /auth/login
func (h *AuthHandlers) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	pair, user, err := h.service.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.JSON(LoginResponse{
		User:         user.Summary(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Refresh handles access token refresh requests.
// POST /auth/refresh
func (h *AuthHandlers) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	access, expiresIn, err := h.service.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.JSON(AccessTokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	})
}

// Logout deletes the caller's session.
// POST /auth/logout
func (h *AuthHandlers) Logout(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}

	if err := h.service.Logout(c.Context(), authCtx.UserID); err != nil {
		return handleAuthError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Logout successful"})
}

// Validate is the token oracle for internal services. Any bad token is a
// 200 with valid:false, never an error status.
// POST /auth/validate
func (h *AuthHandlers) Validate(c *fiber.Ctx) error {
	var req ValidateRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	result, err := h.service.Validate(c.Context(), req.Token)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.JSON(result)
}

// Me returns the resolved identity with its tenant snapshot.
// GET /auth/me
func (h *AuthHandlers) Me(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil || authCtx.User == nil || authCtx.Tenant == nil {
		return handleAuthError(c, ErrNoCredential)
	}

	return c.JSON(MeResponse{
		User:        authCtx.User.Summary(),
		Tenant:      authCtx.Tenant.Summary(),
		Role:        authCtx.Role,
		Permissions: authCtx.Permissions,
		AuthMethod:  authCtx.Method,
		APIKeyID:    authCtx.APIKeyID,
	})
}

// ChangePassword rotates the caller's password and drops their session.
// POST /auth/password
func (h *AuthHandlers) ChangePassword(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	if err := h.service.ChangePassword(c.Context(), authCtx.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return handleAuthError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated"})
}
