package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Customer is a chatbot user row in the system of record
type Customer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Phone     string    `json:"phone" gorm:"uniqueIndex;size:32;not null"`
	Name      string    `json:"name" gorm:"size:255"`
	Email     string    `json:"email,omitzero" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription is the billing state of a customer
type Subscription struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	CustomerID uint       `json:"customer_id" gorm:"index;not null"`
	Plan       string     `json:"plan" gorm:"size:64"`
	Status     string     `json:"status" gorm:"size:32;index"`
	ExpiresAt  *time.Time `json:"expires_at,omitzero"`
	// Metadata holds a JSON document; parse it with ParseSubscriptionMetadata.
	Metadata  string    `json:"-" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription status values surfaced to the chatbot
const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionUnknown  = "unknown"
	SubscriptionNone     = "none"
)

// CustomerLookup is the cached answer to "who is this phone number"
type CustomerLookup struct {
	Found    bool     `json:"found"`
	Customer Customer `json:"customer"`
}

// SubscriptionStatus is the cached answer to "what plan does this user have"
type SubscriptionStatus struct {
	Phone     string               `json:"phone"`
	Status    string               `json:"status"`
	Plan      string               `json:"plan,omitzero"`
	ExpiresAt *time.Time           `json:"expires_at,omitzero"`
	Metadata  SubscriptionMetadata `json:"metadata"`
}

// SubscriptionMetadataVersion is the current metadata schema version
const SubscriptionMetadataVersion = 1

// SubscriptionMetadata is the versioned shape of Subscription.Metadata
type SubscriptionMetadata struct {
	Version       int        `json:"version"`
	Channel       string     `json:"channel,omitzero"`
	PaymentMethod string     `json:"payment_method,omitzero"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitzero"`
	Notes         string     `json:"notes,omitzero"`
}

// ParseSubscriptionMetadata decodes and validates the metadata column.
// An empty column yields an empty document at the current version.
func ParseSubscriptionMetadata(raw string) (SubscriptionMetadata, error) {
	if strings.TrimSpace(raw) == "" {
		return SubscriptionMetadata{Version: SubscriptionMetadataVersion}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var meta SubscriptionMetadata
	if err := dec.Decode(&meta); err != nil {
		return SubscriptionMetadata{}, NewValidationError("malformed subscription metadata", err)
	}

	// Unversioned documents predate the schema and are read as version 1.
	if meta.Version == 0 {
		meta.Version = SubscriptionMetadataVersion
	}
	if meta.Version > SubscriptionMetadataVersion {
		return SubscriptionMetadata{}, NewValidationError(
			fmt.Sprintf("unsupported subscription metadata version %d", meta.Version), nil)
	}

	return meta, nil
}
