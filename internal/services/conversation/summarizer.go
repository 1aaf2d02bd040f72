package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Egham-7/support-resilience/internal/models"
)

// Summarizer compresses dropped messages into a short gist
type Summarizer interface {
	Summarize(ctx context.Context, previous string, dropped []models.ConversationMessage) (string, error)
}

// ExtractiveSummarizer keeps a clipped line per dropped message and bounds
// the running summary to MaxChars, discarding the oldest text first
type ExtractiveSummarizer struct {
	MaxChars   int
	PerMessage int
}

func NewExtractiveSummarizer(maxChars int) *ExtractiveSummarizer {
	if maxChars <= 0 {
		maxChars = models.DefaultConversationConfig().SummaryMaxChars
	}
	return &ExtractiveSummarizer{MaxChars: maxChars, PerMessage: 120}
}

func (s *ExtractiveSummarizer) Summarize(_ context.Context, previous string, dropped []models.ConversationMessage) (string, error) {
	var b strings.Builder
	b.WriteString(previous)
	for _, m := range dropped {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(clip(strings.Join(strings.Fields(m.Content), " "), s.PerMessage))
	}
	return tail(b.String(), s.MaxChars), nil
}

func clip(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

// tail keeps the last n runes, starting at a line boundary when possible
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	out := string(r[len(r)-n:])
	if i := strings.IndexByte(out, '\n'); i >= 0 && i < len(out)-1 {
		out = out[i+1:]
	}
	return out
}
