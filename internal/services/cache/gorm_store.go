package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRecord is one durable cache row
type CacheRecord struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:255"`
	Data      string    `gorm:"column:data;type:text;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
}

// TableName pins the table name regardless of naming strategy
func (CacheRecord) TableName() string { return "fallback_cache_entries" }

// GormStore is the durable tier backed by a relational table
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the cache table and returns the store
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, models.NewValidationError("database handle is required", nil)
	}
	if err := db.AutoMigrate(&CacheRecord{}); err != nil {
		return nil, fmt.Errorf("migrate durable cache table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Layer() models.CacheLayer { return models.CacheLayerDurable }

func (s *GormStore) Get(ctx context.Context, key string) (*models.CacheEnvelope, error) {
	var rec CacheRecord
	err := s.db.WithContext(ctx).Where("cache_key = ?", EncodeKey(key)).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query durable entry: %w", err)
	}

	return &models.CacheEnvelope{
		Data:      []byte(rec.Data),
		Timestamp: rec.Timestamp,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *GormStore) Set(ctx context.Context, key string, env *models.CacheEnvelope) error {
	rec := CacheRecord{
		Key:       EncodeKey(key),
		Data:      string(env.Data),
		Timestamp: env.Timestamp,
		ExpiresAt: env.ExpiresAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "timestamp", "expires_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert durable entry: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("cache_key = ?", EncodeKey(key)).Delete(&CacheRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete durable entry: %w", err)
	}
	return nil
}

func (s *GormStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&CacheRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep durable entries: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
