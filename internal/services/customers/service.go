package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/services/cache"
	"github.com/Egham-7/support-resilience/internal/services/fallback"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service answers customer questions from the system of record, falling
// back to cached or default answers when the database misbehaves
type Service struct {
	db       *gorm.DB
	executor *fallback.Executor
	cache    *cache.TieredCache
	now      func() time.Time
}

// NewService creates the service. db may be nil, in which case every
// lookup is served from the fallback path.
func NewService(db *gorm.DB, executor *fallback.Executor, tc *cache.TieredCache) *Service {
	return &Service{db: db, executor: executor, cache: tc, now: time.Now}
}

func customerKey(phone string) string     { return "customer:phone:" + phone }
func subscriptionKey(phone string) string { return "subscription:" + phone }

func normalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < 8 {
		return "", models.NewValidationError(fmt.Sprintf("invalid phone number %q", phone), nil)
	}
	return b.String(), nil
}

func (s *Service) requireDB() error {
	if s.db == nil {
		return models.NewDependencyError("database", "system of record not configured", nil)
	}
	return nil
}

func (s *Service) findCustomer(ctx context.Context, phone string) (models.CustomerLookup, error) {
	if err := s.requireDB(); err != nil {
		return models.CustomerLookup{}, err
	}

	var customer models.Customer
	err := s.db.WithContext(ctx).Where("phone = ?", phone).Take(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CustomerLookup{Found: false}, nil
	}
	if err != nil {
		return models.CustomerLookup{}, fmt.Errorf("failed to query customer: %w", err)
	}
	return models.CustomerLookup{Found: true, Customer: customer}, nil
}

// GetCustomerByPhone resolves a phone number to a customer
func (s *Service) GetCustomerByPhone(ctx context.Context, phone string) (fallback.Result[models.CustomerLookup], error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return fallback.Result[models.CustomerLookup]{}, err
	}

	return fallback.Execute(ctx, s.executor, func(ctx context.Context) (models.CustomerLookup, error) {
		return s.findCustomer(ctx, normalized)
	}, customerKey(normalized), models.CustomerLookup{Found: false}, 0)
}

// GetSubscriptionStatus reports the plan state for a phone number. When
// nothing better is available the status is "unknown".
func (s *Service) GetSubscriptionStatus(ctx context.Context, phone string) (fallback.Result[models.SubscriptionStatus], error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return fallback.Result[models.SubscriptionStatus]{}, err
	}

	def := models.SubscriptionStatus{
		Phone:    normalized,
		Status:   models.SubscriptionUnknown,
		Metadata: models.SubscriptionMetadata{Version: models.SubscriptionMetadataVersion},
	}
	return fallback.Execute(ctx, s.executor, func(ctx context.Context) (models.SubscriptionStatus, error) {
		return s.loadSubscription(ctx, normalized)
	}, subscriptionKey(normalized), def, 0)
}

func (s *Service) loadSubscription(ctx context.Context, phone string) (models.SubscriptionStatus, error) {
	lookup, err := s.findCustomer(ctx, phone)
	if err != nil {
		return models.SubscriptionStatus{}, err
	}

	status := models.SubscriptionStatus{
		Phone:    phone,
		Status:   models.SubscriptionNone,
		Metadata: models.SubscriptionMetadata{Version: models.SubscriptionMetadataVersion},
	}
	if !lookup.Found {
		return status, nil
	}

	var sub models.Subscription
	err = s.db.WithContext(ctx).
		Where("customer_id = ?", lookup.Customer.ID).
		Order("created_at DESC").
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		return models.SubscriptionStatus{}, fmt.Errorf("failed to query subscription: %w", err)
	}

	status.Plan = sub.Plan
	status.Status = sub.Status
	status.ExpiresAt = sub.ExpiresAt
	if sub.Status == models.SubscriptionActive && sub.ExpiresAt != nil && !s.now().Before(*sub.ExpiresAt) {
		status.Status = models.SubscriptionInactive
	}

	meta, err := models.ParseSubscriptionMetadata(sub.Metadata)
	if err != nil {
		fiberlog.Warnf("Customers: ignoring metadata of subscription %d: %v", sub.ID, err)
	} else {
		status.Metadata = meta
	}
	return status, nil
}

// Invalidate drops cached answers for phone, e.g. after a billing change
func (s *Service) Invalidate(ctx context.Context, phone string) error {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, customerKey(normalized)); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, subscriptionKey(normalized))
}
