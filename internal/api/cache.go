package api

import (
	"net/url"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/response_cache"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

type CacheHandler struct {
	tiered    *cache.TieredCache
	responses *response_cache.ResponseCache
}

func NewCacheHandler(tiered *cache.TieredCache, responses *response_cache.ResponseCache) *CacheHandler {
	return &CacheHandler{tiered: tiered, responses: responses}
}

func (h *CacheHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Delete("/responses/tags/:tag", h.InvalidateResponsesByTag)
	group.Delete("/responses/users/:userId", h.InvalidateResponsesByUser)
	group.Delete("/:key", h.Invalidate)
}

// Invalidate removes one key from every tier
func (h *CacheHandler) Invalidate(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil || key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid cache key",
		})
	}

	if err := h.tiered.Invalidate(c.UserContext(), key); err != nil {
		appErr := models.SanitizeError(err)
		return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
			"error": appErr.Message,
		})
	}

	fiberlog.Infof("Admin: invalidated cache key %s", key)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CacheHandler) InvalidateResponsesByTag(c *fiber.Ctx) error {
	removed := h.responses.InvalidateByTag(c.Params("tag"))
	return c.JSON(fiber.Map{"removed": removed})
}

func (h *CacheHandler) InvalidateResponsesByUser(c *fiber.Ctx) error {
	removed := h.responses.InvalidateUser(c.Params("userId"))
	return c.JSON(fiber.Map{"removed": removed})
}
