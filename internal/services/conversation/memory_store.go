package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const cleanupBatchSize = 256

// MemoryStore holds a bounded, expiring message history per conversation
type MemoryStore struct {
	mu         sync.Mutex
	records    map[string]*models.ConversationRecord
	config     models.ConversationConfig
	clock      utils.Clock
	summarizer Summarizer

	// summaryMu serializes summary merges. mu is released while a
	// summarizer runs, so each trim takes a ticket under mu and merges wait
	// their turn in ticket order.
	summaryMu   sync.Mutex
	summaryTurn *sync.Cond
	nextTicket  uint64 // guarded by mu
	serving     uint64 // guarded by summaryMu
}

// Option customizes a MemoryStore
type Option func(*MemoryStore)

// WithClock replaces the wall clock
func WithClock(clock utils.Clock) Option {
	return func(s *MemoryStore) { s.clock = clock }
}

// WithSummarizer replaces the default extractive summarizer
func WithSummarizer(sum Summarizer) Option {
	return func(s *MemoryStore) { s.summarizer = sum }
}

// NewMemoryStore creates a store. Zero config values take their defaults.
func NewMemoryStore(config models.ConversationConfig, opts ...Option) *MemoryStore {
	defaults := models.DefaultConversationConfig()
	if config.MaxMessages <= 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if config.SummaryMaxChars <= 0 {
		config.SummaryMaxChars = defaults.SummaryMaxChars
	}

	s := &MemoryStore{
		records: make(map[string]*models.ConversationRecord),
		config:  config,
		clock:   utils.SystemClock{},
	}
	s.summaryTurn = sync.NewCond(&s.summaryMu)
	for _, opt := range opts {
		opt(s)
	}
	if s.summarizer == nil {
		s.summarizer = NewExtractiveSummarizer(config.SummaryMaxChars)
	}

	fiberlog.Infof("ConversationMemory: initialized (max_messages=%d, timeout=%s, summarization=%t)",
		config.MaxMessages, config.Timeout(), config.SummarizationEnabled)
	return s
}

func (s *MemoryStore) expiredLocked(rec *models.ConversationRecord, now time.Time) bool {
	return utils.Elapsed(rec.Metadata.LastMessageAt, now, s.config.Timeout())
}

// liveLocked returns the record for key, deleting it first if it expired
func (s *MemoryStore) liveLocked(key string, now time.Time) *models.ConversationRecord {
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	if s.expiredLocked(rec, now) {
		delete(s.records, key)
		fiberlog.Debugf("ConversationMemory: conversation %s expired", key)
		return nil
	}
	return rec
}

func (s *MemoryStore) getOrCreateLocked(key string, now time.Time) *models.ConversationRecord {
	if rec := s.liveLocked(key, now); rec != nil {
		return rec
	}
	rec := &models.ConversationRecord{
		ConversationKey: key,
		Metadata: models.ConversationMetadata{
			StartedAt:     now,
			LastMessageAt: now,
		},
	}
	s.records[key] = rec
	fiberlog.Debugf("ConversationMemory: started conversation %s", key)
	return rec
}

func validate(key, content string) error {
	if key == "" {
		return models.NewValidationError("conversation key must not be empty", models.ErrInvalidKey)
	}
	if content == "" {
		return models.NewValidationError("message content must not be empty", nil)
	}
	return nil
}

// AddUserMessage appends a user turn. A non-empty ownerName is recorded on
// the conversation.
func (s *MemoryStore) AddUserMessage(ctx context.Context, key, content, ownerName string) error {
	return s.add(ctx, key, models.RoleUser, content, ownerName)
}

// AddAIMessage appends an assistant turn
func (s *MemoryStore) AddAIMessage(ctx context.Context, key, content string) error {
	return s.add(ctx, key, models.RoleAI, content, "")
}

func (s *MemoryStore) add(ctx context.Context, key string, role models.MessageRole, content, ownerName string) error {
	if err := validate(key, content); err != nil {
		return err
	}

	s.mu.Lock()
	now := s.clock.Now()
	rec := s.getOrCreateLocked(key, now)
	if now.After(rec.Metadata.LastMessageAt) {
		rec.Metadata.LastMessageAt = now
	}
	rec.Messages = append(rec.Messages, models.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: rec.Metadata.LastMessageAt,
	})
	rec.Metadata.MessageCount++
	if ownerName != "" {
		rec.Metadata.OwnerName = ownerName
	}
	dropped := s.trimLocked(rec)
	needSummary := len(dropped) > 0 && s.config.SummarizationEnabled
	var ticket uint64
	if needSummary {
		ticket = s.nextTicket
		s.nextTicket++
	}
	s.mu.Unlock()

	if needSummary {
		s.summarize(ctx, rec, dropped, ticket)
	}
	return nil
}

// trimLocked enforces MaxMessages. With summarization on, the oldest half
// is detached and returned for summarizing; otherwise the overflow is
// dropped.
func (s *MemoryStore) trimLocked(rec *models.ConversationRecord) []models.ConversationMessage {
	n := len(rec.Messages)
	if n <= s.config.MaxMessages {
		return nil
	}

	drop := n - s.config.MaxMessages
	if s.config.SummarizationEnabled {
		drop = max(drop, n/2)
	}
	dropped := append([]models.ConversationMessage(nil), rec.Messages[:drop]...)
	rec.Messages = append([]models.ConversationMessage(nil), rec.Messages[drop:]...)
	fiberlog.Debugf("ConversationMemory: trimmed %d messages from %s", drop, rec.ConversationKey)
	return dropped
}

func (s *MemoryStore) summarize(ctx context.Context, rec *models.ConversationRecord, dropped []models.ConversationMessage, ticket uint64) {
	s.summaryMu.Lock()
	for s.serving != ticket {
		s.summaryTurn.Wait()
	}
	defer func() {
		s.serving++
		s.summaryTurn.Broadcast()
		s.summaryMu.Unlock()
	}()

	s.mu.Lock()
	previous := rec.Summary
	s.mu.Unlock()

	summary, err := s.summarizer.Summarize(ctx, previous, dropped)
	if err != nil {
		fiberlog.Warnf("ConversationMemory: summarizing %s failed, keeping previous summary: %v", rec.ConversationKey, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The record may have expired or been cleared while summarizing.
	if current, ok := s.records[rec.ConversationKey]; ok && current == rec {
		rec.Summary = summary
	}
}

// GetConversation returns the messages of a live conversation, oldest first.
// Unknown and expired conversations yield an empty slice.
func (s *MemoryStore) GetConversation(key string) []models.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.liveLocked(key, s.clock.Now())
	if rec == nil {
		return []models.ConversationMessage{}
	}
	return append([]models.ConversationMessage(nil), rec.Messages...)
}

// GetSummary returns the compressed gist of trimmed messages, if any
func (s *MemoryStore) GetSummary(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.liveLocked(key, s.clock.Now()); rec != nil {
		return rec.Summary
	}
	return ""
}

func (s *MemoryStore) GetMetadata(key string) (models.ConversationMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.liveLocked(key, s.clock.Now()); rec != nil {
		return rec.Metadata, true
	}
	return models.ConversationMetadata{}, false
}

// MarkAsEscalated flags the conversation as handed off to a human,
// starting one if needed
func (s *MemoryStore) MarkAsEscalated(key string) error {
	if key == "" {
		return models.NewValidationError("conversation key must not be empty", models.ErrInvalidKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(key, s.clock.Now())
	if !rec.Metadata.Escalated {
		rec.Metadata.Escalated = true
		fiberlog.Infof("ConversationMemory: conversation %s escalated to human", key)
	}
	return nil
}

func (s *MemoryStore) IsEscalated(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.liveLocked(key, s.clock.Now())
	return rec != nil && rec.Metadata.Escalated
}

// Clear forgets a conversation
func (s *MemoryStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// Cleanup deletes expired conversations in batches. It satisfies the
// scheduler's Cleaner contract.
func (s *MemoryStore) Cleanup(ctx context.Context) (int, error) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	removed := 0
	for start := 0; start < len(keys); start += cleanupBatchSize {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		end := min(start+cleanupBatchSize, len(keys))

		s.mu.Lock()
		now := s.clock.Now()
		for _, k := range keys[start:end] {
			if rec, ok := s.records[k]; ok && s.expiredLocked(rec, now) {
				delete(s.records, k)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		fiberlog.Infof("ConversationMemory: cleanup removed %d expired conversations", removed)
	}
	return removed, nil
}

func (s *MemoryStore) Stats() models.ConversationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.ConversationStats
	now := s.clock.Now()
	for _, rec := range s.records {
		if s.expiredLocked(rec, now) {
			continue
		}
		stats.ActiveConversations++
		stats.TotalMessages += len(rec.Messages)
		if rec.Metadata.Escalated {
			stats.Escalated++
		}
		if rec.Summary != "" {
			stats.Summarized++
		}
	}
	return stats
}
