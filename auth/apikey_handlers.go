package auth

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ApiKeyHandlers provides the tenant-scoped API key management endpoints.
// All routes run behind session auth, tenant enhancement and the permission
// gate; handlers only deal with input shape and response shape.
type ApiKeyHandlers struct {
	service   *ApiKeyService
	validator *validator.Validate
}

// NewApiKeyHandlers creates a new API key handlers instance.
func NewApiKeyHandlers(service *ApiKeyService) *ApiKeyHandlers {
	return &ApiKeyHandlers{
		service:   service,
		validator: validator.New(),
	}
}

type CreateApiKeyRequest struct {
	Name        string     `json:"name" validate:"required,min=1,max=255"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type UpdateApiKeyRequest struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Permissions []string   `json:"permissions,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type ApiKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	MaskedKey   string     `json:"masked_key"`
	Permissions []string   `json:"permissions"`
	CreatedBy   string     `json:"created_by"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreatedApiKeyResponse is the only place the cleartext key ever appears.
type CreatedApiKeyResponse struct {
	ApiKeyResponse
	Key  string `json:"key"`
	Note string `json:"note"`
}

func apiKeyResponse(key *ApiKey) ApiKeyResponse {
	return ApiKeyResponse{
		ID:          key.ID,
		Name:        key.Name,
		MaskedKey:   key.MaskedSecret(),
		Permissions: key.Permissions,
		CreatedBy:   key.CreatedBy,
		ExpiresAt:   key.ExpiresAt,
		LastUsedAt:  key.LastUsedAt,
		RevokedAt:   key.RevokedAt,
		CreatedAt:   key.CreatedAt,
	}
}

// Create mints a new key for the caller's tenant.
// POST /api-keys
func (h *ApiKeyHandlers) Create(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}

	var req CreateApiKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	key, secret, err := h.service.Create(c.Context(), authCtx.TenantID, authCtx.UserID, authCtx.Role, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		return handleAuthError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(CreatedApiKeyResponse{
		ApiKeyResponse: apiKeyResponse(key),
		Key:            secret,
		Note:           "Store this key securely. It will not be shown again.",
	})
}

// List returns every key in the caller's tenant.
// GET /api-keys
func (h *ApiKeyHandlers) List(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}

	keys, err := h.service.List(c.Context(), authCtx.TenantID)
	if err != nil {
		return handleAuthError(c, err)
	}

	items := make([]ApiKeyResponse, 0, len(keys))
	for _, key := range keys {
		items = append(items, apiKeyResponse(key))
	}
	return c.JSON(fiber.Map{"api_keys": items})
}

// Get returns one key by id.
// GET /api-keys/:id
func (h *ApiKeyHandlers) Get(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}
	keyID, err := parseKeyID(c)
	if err != nil {
		return handleAuthError(c, err)
	}

	key, err := h.service.Get(c.Context(), authCtx.TenantID, keyID)
	if err != nil {
		return handleAuthError(c, err)
	}
	return c.JSON(apiKeyResponse(key))
}

// Update applies a partial update to name, permissions or expiry.
// PATCH /api-keys/:id
func (h *ApiKeyHandlers) Update(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}
	keyID, err := parseKeyID(c)
	if err != nil {
		return handleAuthError(c, err)
	}

	var req UpdateApiKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return handleAuthError(c, NewInputError("Invalid request body: "+err.Error()))
	}
	if err := h.validator.Struct(&req); err != nil {
		return handleAuthError(c, NewInputError("Validation failed: "+err.Error()))
	}

	key, err := h.service.Update(c.Context(), authCtx.TenantID, keyID, authCtx.Role, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		return handleAuthError(c, err)
	}
	return c.JSON(apiKeyResponse(key))
}

// Revoke disables a key. Revoking twice is not an error.
// DELETE /api-keys/:id
func (h *ApiKeyHandlers) Revoke(c *fiber.Ctx) error {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return handleAuthError(c, ErrNoCredential)
	}
	keyID, err := parseKeyID(c)
	if err != nil {
		return handleAuthError(c, err)
	}

	if err := h.service.Revoke(c.Context(), authCtx.TenantID, keyID); err != nil {
		return handleAuthError(c, err)
	}
	return c.JSON(fiber.Map{"message": "API key revoked"})
}

// parseKeyID rejects malformed ids before they reach the repository, where
// a non-uuid would trip a type error instead of a clean miss.
func parseKeyID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", NewInputError("Invalid API key id")
	}
	return id, nil
}
