package api

import (
	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"
	"github.com/Egham-7/support-resilience/internal/services/conversation"
	"github.com/Egham-7/support-resilience/internal/services/response_cache"

	"github.com/gofiber/fiber/v2"
)

// StatsResponse aggregates the counters of every store
type StatsResponse struct {
	TieredCache     models.TieredCacheStats         `json:"tiered_cache"`
	CircuitBreakers []models.CircuitBreakerSnapshot `json:"circuit_breakers"`
	ResponseCache   models.ResponseCacheStats       `json:"response_cache"`
	Conversations   models.ConversationStats        `json:"conversations"`
}

type StatsHandler struct {
	tiered        *cache.TieredCache
	responses     *response_cache.ResponseCache
	conversations *conversation.MemoryStore
	breakers      []*circuitbreaker.CircuitBreaker
}

func NewStatsHandler(
	tiered *cache.TieredCache,
	responses *response_cache.ResponseCache,
	conversations *conversation.MemoryStore,
	breakers ...*circuitbreaker.CircuitBreaker,
) *StatsHandler {
	return &StatsHandler{
		tiered:        tiered,
		responses:     responses,
		conversations: conversations,
		breakers:      breakers,
	}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	resp := StatsResponse{
		TieredCache:     h.tiered.Stats(),
		CircuitBreakers: make([]models.CircuitBreakerSnapshot, 0, len(h.breakers)),
		ResponseCache:   h.responses.GetStats(),
		Conversations:   h.conversations.Stats(),
	}
	for _, cb := range h.breakers {
		resp.CircuitBreakers = append(resp.CircuitBreakers, cb.Snapshot())
	}
	return c.JSON(resp)
}
