package auth

import "github.com/gofiber/fiber/v2"

// InternalHandlers serves the service-to-service surface behind the
// internal credential.
type InternalHandlers struct {
	registry *ServiceRegistry
}

// NewInternalHandlers creates a new internal handlers instance.
func NewInternalHandlers(registry *ServiceRegistry) *InternalHandlers {
	return &InternalHandlers{registry: registry}
}

// Services lists internal services with a live heartbeat. The caller's own
// heartbeat was refreshed by the resolver, so it always sees itself.
// GET /internal/services
func (h *InternalHandlers) Services(c *fiber.Ctx) error {
	services, err := h.registry.List(c.Context())
	if err != nil {
		return handleAuthError(c, err)
	}
	return c.JSON(fiber.Map{"services": services})
}
