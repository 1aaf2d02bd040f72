package api

import (
	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/conversation"

	"github.com/gofiber/fiber/v2"
)

type ConversationHandler struct {
	store *conversation.MemoryStore
}

func NewConversationHandler(store *conversation.MemoryStore) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// AppendMessageRequest is the body of POST /:key/messages
type AppendMessageRequest struct {
	Role      models.MessageRole `json:"role"`
	Content   string             `json:"content"`
	OwnerName string             `json:"owner_name,omitempty"`
}

func (h *ConversationHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Get("/:key", h.GetConversation)
	group.Post("/:key/messages", h.AppendMessage)
	group.Post("/:key/escalate", h.Escalate)
	group.Delete("/:key", h.Clear)
}

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	key := c.Params("key")
	meta, ok := h.store.GetMetadata(key)
	if !ok {
		return errorResponse(c, models.NewNotFoundError("conversation"))
	}

	return c.JSON(fiber.Map{
		"conversation_key": key,
		"messages":         h.store.GetConversation(key),
		"summary":          h.store.GetSummary(key),
		"metadata":         meta,
	})
}

func (h *ConversationHandler) AppendMessage(c *fiber.Ctx) error {
	var req AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, models.NewValidationError("invalid request body", err))
	}

	var err error
	switch req.Role {
	case models.RoleUser:
		err = h.store.AddUserMessage(c.UserContext(), c.Params("key"), req.Content, req.OwnerName)
	case models.RoleAI:
		err = h.store.AddAIMessage(c.UserContext(), c.Params("key"), req.Content)
	default:
		err = models.NewValidationError("role must be \"user\" or \"ai\"", nil)
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) Escalate(c *fiber.Ctx) error {
	if err := h.store.MarkAsEscalated(c.Params("key")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) Clear(c *fiber.Ctx) error {
	h.store.Clear(c.Params("key"))
	return c.SendStatus(fiber.StatusNoContent)
}
