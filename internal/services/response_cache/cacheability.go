package response_cache

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var piiPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"cpf", regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?\d{2}\b`)},
	{"email", regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)},
	// Area code plus an 8 or 9 digit number, or a bare 9 digit mobile.
	// Groups take at most one separator so prices and year ranges pass.
	{"phone", regexp.MustCompile(`(?:\+?\d{2}[\s.-]?)?(?:\(\d{2}\)|\d{2})[\s.-]?9?\d{4}[\s.-]?\d{4}\b|\b9\d{4}[\s.-]?\d{4}\b`)},
}

// ContainsPII reports whether message looks like it carries a document
// number, an email address or a phone number
func ContainsPII(message string) bool {
	_, found := detectPII(message)
	return found
}

func detectPII(message string) (string, bool) {
	for _, p := range piiPatterns {
		if p.re.MatchString(message) {
			return p.name, true
		}
	}
	return "", false
}

// IsCacheable reports whether an answer to message may be stored. All of
// the rules must hold.
func (rc *ResponseCache) IsCacheable(message, intent string, confidence float64) bool {
	_, ok := rc.rejectReason(message, intent, confidence)
	return ok
}

func (rc *ResponseCache) rejectReason(message, intent string, confidence float64) (string, bool) {
	if !(confidence >= rc.config.MinConfidence) {
		return "confidence below threshold", false
	}
	if _, blocked := rc.blocked[strings.ToUpper(intent)]; blocked {
		return "intent " + intent + " is never cached", false
	}

	n := utf8.RuneCountInString(strings.TrimSpace(message))
	if n < rc.config.MinMessageLength || n > rc.config.MaxMessageLength {
		return "message length out of range", false
	}
	if kind, found := detectPII(message); found {
		return "message contains " + kind, false
	}
	return "", true
}
