package api

import (
	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/customers"

	"github.com/gofiber/fiber/v2"
)

type CustomerHandler struct {
	service *customers.Service
}

func NewCustomerHandler(service *customers.Service) *CustomerHandler {
	return &CustomerHandler{service: service}
}

func (h *CustomerHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Get("/:phone", h.GetCustomer)
	group.Get("/:phone/subscription", h.GetSubscription)
	group.Delete("/:phone/cache", h.InvalidateCustomer)
}

func errorResponse(c *fiber.Ctx, err error) error {
	appErr := models.SanitizeError(err)
	return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
		"error": appErr.Message,
	})
}

func (h *CustomerHandler) GetCustomer(c *fiber.Ctx) error {
	res, err := h.service.GetCustomerByPhone(c.UserContext(), c.Params("phone"))
	if err != nil {
		return errorResponse(c, err)
	}

	status := fiber.StatusOK
	if !res.Data.Found {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{
		"found":         res.Data.Found,
		"customer":      res.Data.Customer,
		"source":        res.Source,
		"fallback_used": res.FallbackUsed,
	})
}

// GetSubscription always answers 200; callers read fallback_used to decide
// whether to warn the user that the data may be stale
func (h *CustomerHandler) GetSubscription(c *fiber.Ctx) error {
	res, err := h.service.GetSubscriptionStatus(c.UserContext(), c.Params("phone"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"subscription":  res.Data,
		"source":        res.Source,
		"fallback_used": res.FallbackUsed,
	})
}

func (h *CustomerHandler) InvalidateCustomer(c *fiber.Ctx) error {
	if err := h.service.Invalidate(c.UserContext(), c.Params("phone")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
