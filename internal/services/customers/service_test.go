package customers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/circuitbreaker"
	"github.com/Egham-7/support-resilience/internal/services/database"
	"github.com/Egham-7/support-resilience/internal/services/fallback"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	db      *database.DB
	breaker *circuitbreaker.CircuitBreaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(t.TempDir(), "support.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	tc := cache.NewTieredCache(models.DefaultTieredCacheConfig(), nil, nil)
	t.Cleanup(func() { _ = tc.Close() })

	breaker := circuitbreaker.New("database")
	svc := NewService(db.DB, fallback.NewExecutor("database", breaker, tc, models.FallbackConfig{}), tc)
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, db: db, breaker: breaker}
}

func (f *fixture) seed(t *testing.T, phone, plan, status string, expires *time.Time, metadata string) {
	t.Helper()
	c := models.Customer{Phone: phone, Name: "Ana Souza", Email: "ana@example.com"}
	require.NoError(t, f.db.Create(&c).Error)
	require.NoError(t, f.db.Create(&models.Subscription{
		CustomerID: c.ID,
		Plan:       plan,
		Status:     status,
		ExpiresAt:  expires,
		Metadata:   metadata,
	}).Error)
}

func TestGetCustomerByPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "5511999990000", "gold", models.SubscriptionActive, nil, "")

	res, err := f.svc.GetCustomerByPhone(ctx, "+55 (11) 99999-0000")
	require.NoError(t, err)
	assert.Equal(t, models.SourcePrimary, res.Source)
	assert.True(t, res.Data.Found)
	assert.Equal(t, "Ana Souza", res.Data.Customer.Name)

	res, err = f.svc.GetCustomerByPhone(ctx, "5511888880000")
	require.NoError(t, err)
	assert.Equal(t, models.SourcePrimary, res.Source)
	assert.False(t, res.Data.Found)
}

func TestGetSubscriptionStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	future := now.Add(30 * 24 * time.Hour)
	past := now.Add(-time.Hour)
	f.seed(t, "5511999990000", "gold", models.SubscriptionActive, &future, `{"version":1,"payment_method":"pix"}`)
	f.seed(t, "5511999990001", "silver", models.SubscriptionActive, &past, "")
	f.seed(t, "5511999990002", "bronze", models.SubscriptionActive, nil, `{"version":7}`)

	res, err := f.svc.GetSubscriptionStatus(ctx, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, res.Data.Status)
	assert.Equal(t, "gold", res.Data.Plan)
	assert.Equal(t, "pix", res.Data.Metadata.PaymentMethod)

	res, err = f.svc.GetSubscriptionStatus(ctx, "5511999990001")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionInactive, res.Data.Status, "an active plan past its expiry is inactive")

	res, err = f.svc.GetSubscriptionStatus(ctx, "5511999990002")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, res.Data.Status, "bad metadata does not fail the lookup")
	assert.Equal(t, models.SubscriptionMetadataVersion, res.Data.Metadata.Version)

	res, err = f.svc.GetSubscriptionStatus(ctx, "5511777770000")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionNone, res.Data.Status)
}

func TestGetSubscriptionStatus_DatabaseOutageServesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "5511999990000", "gold", models.SubscriptionActive, nil, "")

	res, err := f.svc.GetSubscriptionStatus(ctx, "5511999990000")
	require.NoError(t, err)
	require.Equal(t, models.SourcePrimary, res.Source)

	require.NoError(t, f.db.Close())

	res, err = f.svc.GetSubscriptionStatus(ctx, "5511999990000")
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, string(models.CacheLayerMemory), res.Source)
	assert.Equal(t, "gold", res.Data.Plan)
	assert.Equal(t, 1, f.breaker.FailureCount())

	require.NoError(t, f.svc.Invalidate(ctx, "5511999990000"))
	res, err = f.svc.GetSubscriptionStatus(ctx, "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDefault, res.Source)
	assert.Equal(t, models.SubscriptionUnknown, res.Data.Status)
}

func TestService_WithoutDatabase(t *testing.T) {
	tc := cache.NewTieredCache(models.DefaultTieredCacheConfig(), nil, nil)
	t.Cleanup(func() { _ = tc.Close() })
	svc := NewService(nil, fallback.NewExecutor("database", nil, tc, models.FallbackConfig{}), tc)

	res, err := svc.GetCustomerByPhone(context.Background(), "5511999990000")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDefault, res.Source)
	assert.False(t, res.Data.Found)
	assert.Equal(t, models.ErrorTypeDependency, models.SanitizeError(res.Err).Type)
}

func TestService_RejectsInvalidPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetCustomerByPhone(context.Background(), "12-34")
	assert.True(t, models.IsValidationError(err))
	_, err = f.svc.GetSubscriptionStatus(context.Background(), "")
	assert.True(t, models.IsValidationError(err))
	assert.True(t, models.IsValidationError(f.svc.Invalidate(context.Background(), "abc")))
	assert.Zero(t, f.breaker.FailureCount())
}
