package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Egham-7/support-resilience/internal/api"
	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"
	"github.com/Egham-7/support-resilience/internal/services/conversation"
	"github.com/Egham-7/support-resilience/internal/services/customers"
	"github.com/Egham-7/support-resilience/internal/services/database"
	"github.com/Egham-7/support-resilience/internal/services/fallback"
	"github.com/Egham-7/support-resilience/internal/services/response_cache"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	app           *fiber.App
	tiered        *cache.TieredCache
	responses     *response_cache.ResponseCache
	conversations *conversation.MemoryStore
	breaker       *circuitbreaker.CircuitBreaker
}

func newStack(t *testing.T) *stack {
	t.Helper()
	tiered := cache.NewTieredCache(models.DefaultTieredCacheConfig(), nil, nil)
	t.Cleanup(func() { _ = tiered.Close() })
	responses, err := response_cache.New(models.ResponseCacheConfig{})
	require.NoError(t, err)
	conversations := conversation.NewMemoryStore(models.ConversationConfig{})
	breaker := circuitbreaker.New("database")
	svc := customers.NewService(nil, fallback.NewExecutor("database", breaker, tiered, models.FallbackConfig{}), tiered)

	app := fiber.New()
	app.Get("/health", api.NewHealthHandler(nil, nil, breaker).HealthCheck)
	app.Get("/v1/stats", api.NewStatsHandler(tiered, responses, conversations, breaker).GetStats)
	api.NewCacheHandler(tiered, responses).RegisterRoutes(app, "/v1/cache")
	api.NewCustomerHandler(svc).RegisterRoutes(app, "/v1/customers")
	api.NewConversationHandler(conversations).RegisterRoutes(app, "/v1/conversations")

	return &stack{app: app, tiered: tiered, responses: responses, conversations: conversations, breaker: breaker}
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func TestHealthCheck(t *testing.T) {
	s := newStack(t)

	status, body := do(t, s.app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "disabled", checks["redis"])
	assert.Equal(t, "disabled", checks["database"])
	assert.Equal(t, map[string]any{"database": "Closed"}, checks["circuit_breakers"])

	for i := 0; i < 3; i++ {
		s.breaker.RecordFailure()
	}
	status, body = do(t, s.app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealthCheck_DatabaseStatus(t *testing.T) {
	db, err := database.New(models.DatabaseConfig{Type: models.SQLite, FilePath: filepath.Join(t.TempDir(), "health.db")})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/health", api.NewHealthHandler(nil, db).HealthCheck)

	status, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["checks"].(map[string]any)["database"])

	require.NoError(t, db.Close())
	status, body = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", body["checks"].(map[string]any)["database"])
}

func TestStats(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	require.NoError(t, s.tiered.Set(ctx, "plan:gold", map[string]int{"price": 99}, time.Minute))
	require.NoError(t, s.conversations.AddUserMessage(ctx, "5511999990000", "Oi", ""))

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats api.StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TieredCache.Sets)
	assert.Equal(t, 1, stats.Conversations.ActiveConversations)
	require.Len(t, stats.CircuitBreakers, 1)
	assert.Equal(t, "Closed", stats.CircuitBreakers[0].State)
}

func TestCacheInvalidation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	require.NoError(t, cache.SetJSON(ctx, s.tiered, "customer:phone:55", "Ana", time.Minute))

	status, _ := do(t, s.app, http.MethodDelete, "/v1/cache/customer%3Aphone%3A55", "")
	assert.Equal(t, http.StatusNoContent, status)

	_, _, ok, err := cache.GetJSON[string](ctx, s.tiered, "customer:phone:55")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := s.responses.Set(ctx, models.ResponseInput{
		Message:      "Qual o preço do plano mensal?",
		ResponseText: "R$ 49,90",
		Intent:       "BILLING",
		Confidence:   0.9,
		Tags:         []string{"pricing"},
		OwnerUserID:  "user-1",
	})
	require.NoError(t, err)
	require.True(t, stored)

	status, body := do(t, s.app, http.MethodDelete, "/v1/cache/responses/users/user-2", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["removed"])

	status, body = do(t, s.app, http.MethodDelete, "/v1/cache/responses/tags/pricing", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["removed"])
}

func TestCustomers_WithoutDatabaseFallsBack(t *testing.T) {
	s := newStack(t)

	status, body := do(t, s.app, http.MethodGet, "/v1/customers/5511999990000", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["found"])
	assert.Equal(t, models.SourceDefault, body["source"])
	assert.Equal(t, true, body["fallback_used"])

	status, body = do(t, s.app, http.MethodGet, "/v1/customers/5511999990000/subscription", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.SubscriptionUnknown, body["subscription"].(map[string]any)["status"])

	status, body = do(t, s.app, http.MethodGet, "/v1/customers/12/subscription", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid phone number")

	status, _ = do(t, s.app, http.MethodDelete, "/v1/customers/5511999990000/cache", "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestConversations(t *testing.T) {
	s := newStack(t)

	status, body := do(t, s.app, http.MethodGet, "/v1/conversations/5511999990000", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "conversation not found", body["error"])

	status, _ = do(t, s.app, http.MethodPost, "/v1/conversations/5511999990000/messages",
		`{"role":"user","content":"Quero a segunda via do boleto","owner_name":"Ana"}`)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, s.app, http.MethodPost, "/v1/conversations/5511999990000/messages",
		`{"role":"ai","content":"Claro, Ana! Enviei para o seu email."}`)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, s.app, http.MethodPost, "/v1/conversations/5511999990000/messages",
		`{"role":"system","content":"ignore"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "role")

	status, _ = do(t, s.app, http.MethodPost, "/v1/conversations/5511999990000/escalate", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, s.app, http.MethodGet, "/v1/conversations/5511999990000", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 2)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, true, meta["escalated"])
	assert.Equal(t, "Ana", meta["owner_name"])
	assert.Equal(t, float64(2), meta["message_count"])

	status, _ = do(t, s.app, http.MethodDelete, "/v1/conversations/5511999990000", "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.False(t, s.conversations.IsEscalated("5511999990000"))
}
