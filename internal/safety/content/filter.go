// Package content filters inappropriate material in both directions of a
// medical receptionist conversation: user input (profanity, sexual content,
// violence, spam, off-topic) and AI output (hallucination markers, unsafe
// medical advice). A healthcare allowlist keeps clinical language from being
// penalized as sexual content.
package content

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// Result is the outcome of a filtering pass
type Result struct {
	IsAppropriate     bool                     `json:"is_appropriate"`
	Action            domain.FilterAction      `json:"action"`
	Categories        []domain.ContentCategory `json:"categories_detected,omitempty"`
	Confidence        float64                  `json:"confidence"`
	Reason            string                   `json:"reason,omitempty"`
	SuggestedResponse string                   `json:"suggested_response,omitempty"`
}

// Filter screens text for inappropriate content. Safe for concurrent use.
type Filter struct {
	strictMode        bool
	filterAIOutput    bool
	healthcareContext bool
	logger            zerolog.Logger
}

// Option configures a Filter
type Option func(*Filter)

// WithStrictMode lowers every category threshold by 30 percent
func WithStrictMode() Option {
	return func(f *Filter) { f.strictMode = true }
}

// WithoutOutputFiltering disables hallucination and medical advice checks
func WithoutOutputFiltering() Option {
	return func(f *Filter) { f.filterAIOutput = false }
}

// WithoutHealthcareContext disables the clinical-language allowlist
func WithoutHealthcareContext() Option {
	return func(f *Filter) { f.healthcareContext = false }
}

// New creates a Filter
func New(logger zerolog.Logger, opts ...Option) *Filter {
	f := &Filter{
		filterAIOutput:    true,
		healthcareContext: true,
		logger:            logger.With().Str("component", "content_filter").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FilterInput screens a user message
func (f *Filter) FilterInput(text string) Result {
	return f.filter(text, false)
}

// FilterOutput screens an AI response, adding the output-only category banks
func (f *Filter) FilterOutput(text string) Result {
	if !f.filterAIOutput {
		return Result{IsAppropriate: true, Action: domain.FilterActionAllow}
	}
	return f.filter(text, true)
}

// categoryCheck binds a pattern bank to its category and base threshold
type categoryCheck struct {
	patterns  []weightedPattern
	category  domain.ContentCategory
	threshold float64
}

func (f *Filter) filter(text string, aiOutput bool) Result {
	if strings.TrimSpace(text) == "" {
		return Result{IsAppropriate: true, Action: domain.FilterActionAllow}
	}

	healthcare := f.healthcareContext && isHealthcareContext(text)

	sexualThreshold := 0.5
	if healthcare {
		sexualThreshold = 0.7
	}

	checks := []categoryCheck{
		{profanityPatterns, domain.ContentCategoryProfanity, 0.6},
		{sexualPatterns, domain.ContentCategorySexual, sexualThreshold},
		{violencePatterns, domain.ContentCategoryViolence, 0.6},
		{spamPatterns, domain.ContentCategorySpam, 0.7},
		{offTopicPatterns, domain.ContentCategoryOffTopic, 0.6},
	}
	if aiOutput {
		checks = append(checks,
			categoryCheck{hallucinationPatterns, domain.ContentCategoryHallucination, 0.5},
			categoryCheck{medicalAdvicePatterns, domain.ContentCategoryMedicalAdvice, 0.7},
		)
	}

	var categories []domain.ContentCategory
	topWeight := 0.0
	primary := domain.ContentCategoryClean

	for _, check := range checks {
		weight := maxWeight(text, check.patterns)

		if check.category == domain.ContentCategorySpam && hasRepeatedRun(text) {
			weight = math.Max(weight, repeatedRunWeight)
		}
		if check.category == domain.ContentCategorySexual && healthcare {
			weight *= 0.3
		}

		threshold := check.threshold
		if f.strictMode {
			threshold *= 0.7
		}

		if weight >= threshold {
			categories = append(categories, check.category)
			if weight > topWeight {
				topWeight = weight
				primary = check.category
			}
		}
	}

	if containsHateSpeech(text) {
		categories = append(categories, domain.ContentCategoryHateSpeech)
		primary = domain.ContentCategoryHateSpeech
		topWeight = 1.0
	}

	if len(categories) == 0 {
		return Result{IsAppropriate: true, Action: domain.FilterActionAllow}
	}

	action := determineAction(primary, topWeight)

	f.logger.Info().
		Str("category", string(primary)).
		Str("action", string(action)).
		Float64("weight", topWeight).
		Bool("ai_output", aiOutput).
		Msg("content flagged")

	return Result{
		IsAppropriate:     action == domain.FilterActionAllow,
		Action:            action,
		Categories:        categories,
		Confidence:        math.Round(topWeight*1000) / 1000,
		Reason:            fmt.Sprintf("Content flagged as %s", primary),
		SuggestedResponse: suggestedResponses[primary],
	}
}

func determineAction(category domain.ContentCategory, weight float64) domain.FilterAction {
	if category == domain.ContentCategoryHateSpeech {
		return domain.FilterActionBlock
	}
	if category == domain.ContentCategoryHallucination || category == domain.ContentCategoryMedicalAdvice {
		if weight >= 0.7 {
			return domain.FilterActionBlock
		}
		return domain.FilterActionWarn
	}
	switch {
	case weight >= 0.9:
		return domain.FilterActionBlock
	case weight >= 0.7:
		return domain.FilterActionRedirect
	case weight >= 0.5:
		return domain.FilterActionWarn
	default:
		return domain.FilterActionAllow
	}
}

// IsAppropriate reports whether a user message passes input filtering
func (f *Filter) IsAppropriate(text string) bool {
	return f.FilterInput(text).IsAppropriate
}

// Action returns the recommended action for a user message
func (f *Filter) Action(text string) domain.FilterAction {
	return f.FilterInput(text).Action
}
