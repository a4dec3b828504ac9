// Package security holds the secret-handling primitives applied to every
// piece of knowledge before it reaches a model: pattern-based redaction,
// a redacting slog handler, and a JSONL audit trail.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely contain secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|api_key|credential)`)

// Redactor replaces secret values in strings and maps with a redaction placeholder.
// It supports both regex pattern matching (for known API key formats) and
// literal value matching (for credentials loaded at runtime, such as the
// gateway bearer token or the summarizer API key).
// All methods are safe for concurrent use. Redaction never fails: input
// that matches nothing is returned unchanged.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	if pattern == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a literal secret value that should be redacted on sight.
// Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact replaces all known secret patterns and literal values in s
// with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	out, _ := r.RedactCount(s)
	return out
}

// RedactCount is Redact that also reports how many substrings were replaced.
func (r *Redactor) RedactCount(s string) (string, int) {
	if s == "" {
		return s, 0
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	n := 0
	for _, p := range patterns {
		s = p.ReplaceAllStringFunc(s, func(string) string {
			n++
			return RedactPlaceholder
		})
	}

	for _, lit := range literals {
		if c := strings.Count(s, lit); c > 0 {
			n += c
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}

	return s, n
}

// RedactMap walks a map and replaces values whose keys match common secret
// key names (secret, token, password, key, api_key, credential).
// This is used by the config display command.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// DefaultPatterns returns compiled regex patterns for common API key formats.
// Provider-prefixed keys are matched before the generic "sk-" form so a
// whole key collapses into a single placeholder.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic: sk-ant-...
		regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{8,}`),
		// OpenAI: sk-... and sk-proj-...
		regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`),
		// GitHub: ghp_, gho_, ghs_, github_pat_
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// AWS Access Key ID
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
		// Slack bot and user tokens
		regexp.MustCompile(`xox[bp]-[0-9]+-[a-zA-Z0-9]+`),
		// Authorization header values pasted into notes
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{20,}`),
	}
}
