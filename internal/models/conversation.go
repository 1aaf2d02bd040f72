package models

import "time"

// MessageRole identifies who authored a conversation message
type MessageRole string

const (
	RoleUser MessageRole = "user"
	RoleAI   MessageRole = "ai"
)

// ConversationMessage is one turn of a conversation
type ConversationMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ConversationMetadata tracks lifecycle facts about a conversation
type ConversationMetadata struct {
	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
	Escalated     bool      `json:"escalated"`
	OwnerName     string    `json:"owner_name,omitzero"`
}

// ConversationRecord is the bounded history of one conversation
type ConversationRecord struct {
	ConversationKey string                `json:"conversation_key"`
	Messages        []ConversationMessage `json:"messages"`
	Summary         string                `json:"summary,omitzero"`
	Metadata        ConversationMetadata  `json:"metadata"`
}

// ConversationConfig holds configuration for the conversation memory store
type ConversationConfig struct {
	MaxMessages            int  `json:"max_messages,omitzero" yaml:"max_messages"`
	TimeoutSeconds         int  `json:"timeout_seconds,omitzero" yaml:"timeout_seconds"`
	SummarizationEnabled   bool `json:"summarization_enabled,omitzero" yaml:"summarization_enabled"`
	SummaryMaxChars        int  `json:"summary_max_chars,omitzero" yaml:"summary_max_chars"`
	CleanupIntervalSeconds int  `json:"cleanup_interval_seconds,omitzero" yaml:"cleanup_interval_seconds"`
}

// DefaultConversationConfig returns the conversation store defaults
func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxMessages:            20,
		TimeoutSeconds:         30 * 60,
		SummarizationEnabled:   false,
		SummaryMaxChars:        1000,
		CleanupIntervalSeconds: 5 * 60,
	}
}

// Timeout returns the inactivity period after which a conversation expires
func (c ConversationConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

// CleanupInterval returns the sweep period
func (c ConversationConfig) CleanupInterval() time.Duration { return seconds(c.CleanupIntervalSeconds) }

// ConversationStats summarizes the conversation store
type ConversationStats struct {
	ActiveConversations int `json:"active_conversations"`
	TotalMessages       int `json:"total_messages"`
	Escalated           int `json:"escalated"`
	Summarized          int `json:"summarized"`
}
