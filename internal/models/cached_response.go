package models

import "time"

// CachedLLMResponse is an LLM answer kept for reuse by later messages
type CachedLLMResponse struct {
	ID                   string    `json:"id"`
	NormalizedMessageKey string    `json:"normalized_message_key"`
	MessageText          string    `json:"message_text"`
	ResponseText         string    `json:"response_text"`
	IntentLabel          string    `json:"intent_label"`
	Confidence           float64   `json:"confidence"`
	QuickReplies         []string  `json:"quick_replies"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
	AccessCount          int       `json:"access_count"`
	LastAccessedAt       time.Time `json:"last_accessed_at"`
	Tags                 []string  `json:"tags,omitzero"`
	OwnerUserID          string    `json:"owner_user_id,omitzero"`
}

// ExpiredAt reports whether the response is no longer valid at now
func (r *CachedLLMResponse) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HasTag reports whether the response carries tag
func (r *CachedLLMResponse) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResponseInput carries everything needed to cache a freshly generated answer
type ResponseInput struct {
	Message      string
	ResponseText string
	Intent       string
	Confidence   float64
	QuickReplies []string
	Context      map[string]any
	Tags         []string
	OwnerUserID  string
}

// ResponseCacheStats summarizes the response cache contents
type ResponseCacheStats struct {
	TotalEntries       int            `json:"total_entries"`
	EntriesByIntent    map[string]int `json:"entries_by_intent"`
	AverageAccessCount float64        `json:"average_access_count"`
	// HitRate is the fraction of entries served at least once after creation.
	HitRate        float64 `json:"hit_rate"`
	MemoryBytes    int     `json:"memory_bytes"`
	ExactHits      int64   `json:"exact_hits"`
	SemanticHits   int64   `json:"semantic_hits"`
	EmbeddingHits  int64   `json:"embedding_hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	RejectedWrites int64   `json:"rejected_writes"`
}
