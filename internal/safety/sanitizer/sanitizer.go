// Package sanitizer cleans raw user input before any downstream processing.
// It strips markup and control characters, normalizes whitespace, enforces a
// length cap, and flags prompt injection attempts against the assistant.
package sanitizer

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxLength is the input length cap in characters
	DefaultMaxLength = 10000
)

// injectionPatterns match attempts to override, extract, or bypass the
// assistant's instructions. All are applied case-insensitively to the
// cleaned text, not the raw input.
var injectionPatterns = compileAll([]string{
	// instruction override
	`ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,
	`forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`,

	// role manipulation
	`you\s+are\s+now\s+(a|an)\s+`,
	`pretend\s+(you're|you\s+are|to\s+be)\s+`,
	`act\s+as\s+(a|an|if)\s+`,
	`roleplay\s+as\s+`,
	`switch\s+to\s+.+\s+mode`,

	// system prompt extraction
	`(show|reveal|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`,
	`what\s+(are|is)\s+your\s+(system\s+)?(prompt|instructions?)`,
	`repeat\s+(your|the)\s+(system\s+)?(prompt|instructions?)`,

	// jailbreaks
	`jailbreak`,
	`DAN\s+mode`,
	`developer\s+mode`,
	`bypass\s+(your\s+)?(restrictions?|filters?|rules?)`,

	// code execution
	`execute\s+(this\s+)?(code|command|script)`,
	`run\s+(this\s+)?(code|command|script)`,
	`eval\s*\(`,
	`exec\s*\(`,

	// data exfiltration
	`(send|transmit|post|upload)\s+(to|data\s+to)\s+`,
	`webhook`,
	`curl\s+`,
	`fetch\s*\(`,
})

var (
	scriptPattern      = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stylePattern       = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	htmlTagPattern     = regexp.MustCompile(`<[^>]+>`)
	controlCharPattern = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	multiSpacePattern  = regexp.MustCompile(` {2,}`)
	multiNLPattern     = regexp.MustCompile(`\n{3,}`)
)

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return compiled
}

// Result describes what sanitization did to a piece of input
type Result struct {
	OriginalText  string   `json:"original_text"`
	SanitizedText string   `json:"sanitized_text"`
	Changes       []string `json:"changes,omitempty"`
	InjectionDetected bool `json:"injection_detected"`
	MatchedPatterns   []string `json:"matched_patterns,omitempty"`
	IsSafe        bool     `json:"is_safe"`
}

// Sanitizer cleans user input. Safe for concurrent use.
type Sanitizer struct {
	maxLength           int
	stripHTML           bool
	detectInjection     bool
	normalizeWhitespace bool
	logger              zerolog.Logger
}

// Option configures a Sanitizer
type Option func(*Sanitizer)

// WithMaxLength overrides the input length cap
func WithMaxLength(n int) Option {
	return func(s *Sanitizer) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithoutHTMLStripping disables markup removal
func WithoutHTMLStripping() Option {
	return func(s *Sanitizer) { s.stripHTML = false }
}

// WithoutInjectionDetection disables the injection pattern scan
func WithoutInjectionDetection() Option {
	return func(s *Sanitizer) { s.detectInjection = false }
}

// New creates a Sanitizer
func New(logger zerolog.Logger, opts ...Option) *Sanitizer {
	s := &Sanitizer{
		maxLength:           DefaultMaxLength,
		stripHTML:           true,
		detectInjection:     true,
		normalizeWhitespace: true,
		logger:              logger.With().Str("component", "sanitizer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize cleans text and scans the cleaned form for injection attempts
func (s *Sanitizer) Sanitize(text string) Result {
	original := text
	var changes []string

	if runes := []rune(text); len(runes) > s.maxLength {
		text = string(runes[:s.maxLength])
		changes = append(changes, fmt.Sprintf("truncated_from_%d_to_%d", len(runes), s.maxLength))
		s.logger.Warn().
			Int("original_length", len(runes)).
			Int("max_length", s.maxLength).
			Msg("input truncated")
	}

	if cleaned := controlCharPattern.ReplaceAllString(text, ""); cleaned != text {
		text = cleaned
		changes = append(changes, "removed_control_characters")
	}

	if s.stripHTML {
		if cleaned := stripMarkup(text); cleaned != text {
			text = cleaned
			changes = append(changes, "stripped_html_tags")
		}
	}

	if decoded := html.UnescapeString(text); decoded != text {
		text = decoded
		changes = append(changes, "decoded_html_entities")
	}

	if s.normalizeWhitespace {
		if normalized := normalizeWhitespace(text); normalized != text {
			text = normalized
			changes = append(changes, "normalized_whitespace")
		}
	}

	if stripped := strings.TrimSpace(text); stripped != text {
		text = stripped
		changes = append(changes, "stripped_outer_whitespace")
	}

	var matched []string
	if s.detectInjection {
		matched = detectInjection(text)
		if len(matched) > 0 {
			changes = append(changes, "prompt_injection_detected")
			s.logger.Warn().
				Strs("patterns", matched).
				Msg("prompt injection detected")
		}
	}

	return Result{
		OriginalText:      original,
		SanitizedText:     text,
		Changes:           changes,
		InjectionDetected: len(matched) > 0,
		MatchedPatterns:   matched,
		IsSafe:            len(matched) == 0,
	}
}

// IsSafe reports whether text passes sanitization without injection findings
func (s *Sanitizer) IsSafe(text string) bool {
	return s.Sanitize(text).IsSafe
}

func stripMarkup(text string) string {
	text = scriptPattern.ReplaceAllString(text, "")
	text = stylePattern.ReplaceAllString(text, "")
	return htmlTagPattern.ReplaceAllString(text, "")
}

func normalizeWhitespace(text string) string {
	text = multiSpacePattern.ReplaceAllString(text, " ")
	return multiNLPattern.ReplaceAllString(text, "\n\n")
}

func detectInjection(text string) []string {
	var matched []string
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			pat := p.String()
			if len(pat) > 50 {
				pat = pat[:50]
			}
			matched = append(matched, pat)
		}
	}
	return matched
}
