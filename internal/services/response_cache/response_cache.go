package response_cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/Egham-7/support-resilience/internal/models"
	"github.com/Egham-7/support-resilience/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const cleanupBatchSize = 256

type slot struct {
	resp   *models.CachedLLMResponse
	tokens map[string]struct{}
}

type counters struct {
	exactHits      int64
	semanticHits   int64
	embeddingHits  int64
	misses         int64
	evictions      int64
	rejectedWrites int64
}

// ResponseCache keeps cacheable LLM answers for reuse, bounded by an LRU
// and a TTL. Semantic lookup walks the entries sharing an intent.
type ResponseCache struct {
	mu         sync.Mutex
	entries    *simplelru.LRU[string, *slot]
	byIntent   map[string]map[string]struct{}
	config     models.ResponseCacheConfig
	blocked    map[string]struct{}
	clock      utils.Clock
	embeddings EmbeddingIndex
	stats      counters
}

// Option customizes a ResponseCache
type Option func(*ResponseCache)

// WithClock replaces the wall clock
func WithClock(clock utils.Clock) Option {
	return func(rc *ResponseCache) { rc.clock = clock }
}

// WithEmbeddingIndex enables the embedding lookup tried after a
// token-similarity miss
func WithEmbeddingIndex(idx EmbeddingIndex) Option {
	return func(rc *ResponseCache) { rc.embeddings = idx }
}

// New creates a response cache. Zero config values take their defaults.
func New(config models.ResponseCacheConfig, opts ...Option) (*ResponseCache, error) {
	defaults := models.DefaultResponseCacheConfig()
	if config.TTLSeconds <= 0 {
		config.TTLSeconds = defaults.TTLSeconds
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = defaults.SimilarityThreshold
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = defaults.MinConfidence
	}
	if config.MinMessageLength <= 0 {
		config.MinMessageLength = defaults.MinMessageLength
	}
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = defaults.MaxMessageLength
	}
	if config.BlockedIntents == nil {
		config.BlockedIntents = defaults.BlockedIntents
	}

	rc := &ResponseCache{
		byIntent: make(map[string]map[string]struct{}),
		config:   config,
		blocked:  make(map[string]struct{}, len(config.BlockedIntents)),
		clock:    utils.SystemClock{},
	}
	for _, intent := range config.BlockedIntents {
		rc.blocked[strings.ToUpper(intent)] = struct{}{}
	}
	for _, opt := range opts {
		opt(rc)
	}

	lru, err := simplelru.NewLRU[string, *slot](config.MaxEntries, rc.onRemove)
	if err != nil {
		return nil, fmt.Errorf("create response LRU: %w", err)
	}
	rc.entries = lru

	fiberlog.Infof("ResponseCache: initialized (max_entries=%d, ttl=%s, threshold=%.2f, embeddings=%t)",
		config.MaxEntries, config.TTL(), config.SimilarityThreshold, rc.embeddings != nil)
	return rc, nil
}

// onRemove runs under mu for every entry leaving the LRU, whether evicted,
// expired or invalidated
func (rc *ResponseCache) onRemove(key string, s *slot) {
	rc.unindexLocked(key, s.resp.IntentLabel)
	if rc.embeddings != nil {
		rc.embeddings.Remove(key)
	}
}

func (rc *ResponseCache) unindexLocked(key, intent string) {
	if set, ok := rc.byIntent[intent]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(rc.byIntent, intent)
		}
	}
}

// GenerateKey derives the exact-match key from the trimmed, lower-cased
// message plus a hash of the JSON-encoded context. A nil context hashes
// like an empty one.
func GenerateKey(message string, convCtx map[string]any) (string, error) {
	if convCtx == nil {
		convCtx = map[string]any{}
	}
	raw, err := json.Marshal(convCtx)
	if err != nil {
		return "", models.NewValidationError("response cache context is not serializable", err)
	}
	ctxSum := sha256.Sum256(raw)

	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(message))))
	h.Write([]byte{':'})
	h.Write([]byte(hex.EncodeToString(ctxSum[:])))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// touchLocked records an access and returns a copy safe to hand out
func (rc *ResponseCache) touchLocked(key string) *models.CachedLLMResponse {
	s, ok := rc.entries.Get(key)
	if !ok {
		return nil
	}
	s.resp.AccessCount++
	s.resp.LastAccessedAt = rc.clock.Now()
	return clone(s.resp)
}

func clone(r *models.CachedLLMResponse) *models.CachedLLMResponse {
	c := *r
	c.QuickReplies = append([]string(nil), r.QuickReplies...)
	c.Tags = append([]string(nil), r.Tags...)
	return &c
}

// Get returns the entry stored for exactly this message and context
func (rc *ResponseCache) Get(message string, convCtx map[string]any) (*models.CachedLLMResponse, error) {
	key, err := GenerateKey(message, convCtx)
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	s, ok := rc.entries.Peek(key)
	if !ok {
		rc.stats.misses++
		fiberlog.Debugf("ResponseCache: exact miss for %s", shortKey(key))
		return nil, nil
	}
	if s.resp.ExpiredAt(rc.clock.Now()) {
		rc.entries.Remove(key)
		rc.stats.misses++
		fiberlog.Debugf("ResponseCache: exact entry %s expired", shortKey(key))
		return nil, nil
	}

	rc.stats.exactHits++
	fiberlog.Debugf("ResponseCache: exact hit for %s (intent=%s)", shortKey(key), s.resp.IntentLabel)
	return rc.touchLocked(key), nil
}

// GetSemantic finds the best-scoring live entry with the same intent whose
// token similarity to message reaches threshold. A non-positive threshold
// uses the configured one. When the token pass misses and an embedding
// index is configured, it is consulted as a second opinion.
func (rc *ResponseCache) GetSemantic(ctx context.Context, message, intent string, threshold float64) (*models.CachedLLMResponse, error) {
	if threshold > 1 {
		return nil, models.NewValidationError(fmt.Sprintf("similarity threshold must be in (0, 1], got %.2f", threshold), nil)
	}
	if threshold <= 0 {
		threshold = rc.config.SimilarityThreshold
	}

	query := Tokenize(message)

	rc.mu.Lock()
	bestKey, bestScore := rc.bestMatchLocked(query, intent, threshold)
	if bestKey != "" {
		rc.stats.semanticHits++
		resp := rc.touchLocked(bestKey)
		rc.mu.Unlock()
		fiberlog.Debugf("ResponseCache: semantic hit for intent %s (score=%.2f)", intent, bestScore)
		return resp, nil
	}
	rc.mu.Unlock()

	if rc.embeddings != nil {
		if resp := rc.embeddingMatch(ctx, message, intent); resp != nil {
			return resp, nil
		}
	}

	rc.mu.Lock()
	rc.stats.misses++
	rc.mu.Unlock()
	fiberlog.Debugf("ResponseCache: semantic miss for intent %s", intent)
	return nil, nil
}

func (rc *ResponseCache) bestMatchLocked(query map[string]struct{}, intent string, threshold float64) (string, float64) {
	now := rc.clock.Now()
	var (
		bestKey   string
		bestScore float64
		expired   []string
	)
	for key := range rc.byIntent[intent] {
		s, ok := rc.entries.Peek(key)
		if !ok {
			continue
		}
		if s.resp.ExpiredAt(now) {
			expired = append(expired, key)
			continue
		}
		if score := Jaccard(query, s.tokens); score >= threshold && score > bestScore {
			bestKey, bestScore = key, score
		}
	}
	for _, key := range expired {
		rc.entries.Remove(key)
	}
	return bestKey, bestScore
}

func (rc *ResponseCache) embeddingMatch(ctx context.Context, message, intent string) *models.CachedLLMResponse {
	key, score, found, err := rc.embeddings.Lookup(ctx, message)
	if err != nil {
		fiberlog.Warnf("ResponseCache: embedding lookup failed: %v", err)
		return nil
	}
	if !found {
		return nil
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	s, ok := rc.entries.Peek(key)
	if !ok || s.resp.IntentLabel != intent || s.resp.ExpiredAt(rc.clock.Now()) {
		return nil
	}
	rc.stats.embeddingHits++
	fiberlog.Debugf("ResponseCache: embedding hit for intent %s (score=%.2f)", intent, score)
	return rc.touchLocked(key)
}

// Set stores an answer when it passes IsCacheable. It reports whether the
// entry was stored; a rejected answer is not an error.
func (rc *ResponseCache) Set(ctx context.Context, in models.ResponseInput) (bool, error) {
	if math.IsNaN(in.Confidence) || in.Confidence < 0 || in.Confidence > 1 {
		return false, models.NewValidationError(fmt.Sprintf("confidence must be in [0, 1], got %.2f", in.Confidence), nil)
	}
	key, err := GenerateKey(in.Message, in.Context)
	if err != nil {
		return false, err
	}

	if reason, ok := rc.rejectReason(in.Message, in.Intent, in.Confidence); !ok {
		rc.mu.Lock()
		rc.stats.rejectedWrites++
		rc.mu.Unlock()
		fiberlog.Debugf("ResponseCache: not caching response for intent %s: %s", in.Intent, reason)
		return false, nil
	}

	now := rc.clock.Now()
	resp := &models.CachedLLMResponse{
		ID:                   uuid.NewString(),
		NormalizedMessageKey: key,
		MessageText:          in.Message,
		ResponseText:         in.ResponseText,
		IntentLabel:          in.Intent,
		Confidence:           in.Confidence,
		QuickReplies:         append([]string{}, in.QuickReplies...),
		CreatedAt:            now,
		ExpiresAt:            now.Add(rc.config.TTL()),
		AccessCount:          1,
		LastAccessedAt:       now,
		Tags:                 dedupe(in.Tags),
		OwnerUserID:          in.OwnerUserID,
	}

	rc.mu.Lock()
	if old, ok := rc.entries.Peek(key); ok {
		// Replacing in place does not fire the removal callback.
		rc.unindexLocked(key, old.resp.IntentLabel)
		fiberlog.Debugf("ResponseCache: replacing entry %s (intent %s -> %s)", shortKey(key), old.resp.IntentLabel, in.Intent)
	}
	if evicted := rc.entries.Add(key, &slot{resp: resp, tokens: Tokenize(in.Message)}); evicted {
		rc.stats.evictions++
		fiberlog.Debug("ResponseCache: evicted least recently used entry")
	}
	set, ok := rc.byIntent[in.Intent]
	if !ok {
		set = make(map[string]struct{})
		rc.byIntent[in.Intent] = set
	}
	set[key] = struct{}{}
	rc.mu.Unlock()

	if rc.embeddings != nil {
		if err := rc.embeddings.Add(ctx, key, in.Message); err != nil {
			fiberlog.Warnf("ResponseCache: embedding store failed for %s: %v", shortKey(key), err)
		}
	}

	fiberlog.Debugf("ResponseCache: cached response %s for intent %s", resp.ID, in.Intent)
	return true, nil
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// removeWhere deletes every entry matching pred, a batch at a time so
// request-path calls can interleave
func (rc *ResponseCache) removeWhere(pred func(*models.CachedLLMResponse) bool) int {
	rc.mu.Lock()
	keys := rc.entries.Keys()
	rc.mu.Unlock()

	removed := 0
	for start := 0; start < len(keys); start += cleanupBatchSize {
		end := min(start+cleanupBatchSize, len(keys))

		rc.mu.Lock()
		for _, key := range keys[start:end] {
			if s, ok := rc.entries.Peek(key); ok && pred(s.resp) {
				rc.entries.Remove(key)
				removed++
			}
		}
		rc.mu.Unlock()
	}
	return removed
}

// Cleanup removes expired entries. It satisfies the scheduler's Cleaner
// contract.
func (rc *ResponseCache) Cleanup(ctx context.Context) (int, error) {
	now := rc.clock.Now()
	removed := rc.removeWhere(func(r *models.CachedLLMResponse) bool {
		return r.ExpiredAt(now)
	})
	if removed > 0 {
		fiberlog.Infof("ResponseCache: cleanup removed %d expired entries", removed)
	}
	return removed, ctx.Err()
}

// InvalidateByTag removes every entry carrying tag
func (rc *ResponseCache) InvalidateByTag(tag string) int {
	removed := rc.removeWhere(func(r *models.CachedLLMResponse) bool { return r.HasTag(tag) })
	fiberlog.Infof("ResponseCache: invalidated %d entries tagged %s", removed, tag)
	return removed
}

// InvalidateUser removes every entry owned by userID
func (rc *ResponseCache) InvalidateUser(userID string) int {
	if userID == "" {
		return 0
	}
	removed := rc.removeWhere(func(r *models.CachedLLMResponse) bool { return r.OwnerUserID == userID })
	fiberlog.Infof("ResponseCache: invalidated %d entries owned by %s", removed, userID)
	return removed
}

// Clear drops every entry
func (rc *ResponseCache) Clear(ctx context.Context) {
	rc.mu.Lock()
	rc.entries.Purge()
	rc.mu.Unlock()

	if rc.embeddings != nil {
		if err := rc.embeddings.Flush(ctx); err != nil {
			fiberlog.Warnf("ResponseCache: embedding flush failed: %v", err)
		}
	}
	fiberlog.Info("ResponseCache: cleared")
}

// Len returns the number of stored entries, expired ones included until swept
func (rc *ResponseCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.entries.Len()
}

// GetStats summarizes contents and lookup counters
func (rc *ResponseCache) GetStats() models.ResponseCacheStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	stats := models.ResponseCacheStats{
		EntriesByIntent: make(map[string]int, len(rc.byIntent)),
		ExactHits:       rc.stats.exactHits,
		SemanticHits:    rc.stats.semanticHits,
		EmbeddingHits:   rc.stats.embeddingHits,
		Misses:          rc.stats.misses,
		Evictions:       rc.stats.evictions,
		RejectedWrites:  rc.stats.rejectedWrites,
	}

	var accesses, reused int
	for _, s := range rc.entries.Values() {
		stats.TotalEntries++
		stats.EntriesByIntent[s.resp.IntentLabel]++
		accesses += s.resp.AccessCount
		if s.resp.AccessCount > 1 {
			reused++
		}
		if size, err := utils.EncodedSize(s.resp); err == nil {
			stats.MemoryBytes += size
		}
	}
	if stats.TotalEntries > 0 {
		stats.AverageAccessCount = float64(accesses) / float64(stats.TotalEntries)
		stats.HitRate = float64(reused) / float64(stats.TotalEntries)
	}
	return stats
}

// Close releases the embedding index, if any
func (rc *ResponseCache) Close() error {
	if rc.embeddings != nil {
		return rc.embeddings.Close()
	}
	return nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
