package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|credential)`)

// Redactor replaces secret values in strings and maps with RedactPlaceholder.
// It combines regex patterns for well-known token formats with literal values
// taken from the credential store. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with patterns for the token
// formats this bridge handles: Lark tenant and user access tokens, bearer
// authorization headers, and common model-provider API keys that may pass
// through gateway payloads.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: defaultPatterns(),
	}
}

// AddLiteral registers a literal secret value to redact on sight.
// Empty or very short strings are ignored to avoid mangling ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 8 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SyncCredentials replaces the literal list with the store's current values.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	kept := values[:0]
	for _, v := range values {
		if len(v) >= 8 {
			kept = append(kept, v)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = kept
}

// Redact replaces all known secret patterns and literals in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	return s
}

// RedactMap walks a map in place and blanks string values under secret-named
// keys, then runs Redact over every remaining string. Used by the ops server
// before exposing configuration.
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

func defaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Lark tenant access token
		regexp.MustCompile(`t-[a-zA-Z0-9._\-]{20,}`),
		// Lark user access token
		regexp.MustCompile(`u-[a-zA-Z0-9._\-]{20,}`),
		// Bearer authorization values
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]{12,}`),
		// Anthropic / OpenAI style keys (sk-ant- is covered by the sk- rule)
		regexp.MustCompile(`sk-[a-zA-Z0-9\-]{20,}`),
		// GitHub tokens
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
	}
}
