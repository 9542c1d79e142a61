// Package crisis detects mental health crises and other safety-critical
// situations that require human intervention. It is a supplementary safety
// layer, not a replacement for professional crisis services.
package crisis

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// Sensitivity bounds. Values below 1.0 detect more, above 1.0 detect less.
const (
	MinSensitivity     = 0.5
	MaxSensitivity     = 2.0
	DefaultSensitivity = 1.0
)

// Result is the outcome of a crisis scan
type Result struct {
	IsCrisis          bool               `json:"is_crisis"`
	Level             domain.CrisisLevel `json:"level"`
	Type              domain.CrisisType  `json:"crisis_type"`
	MatchedPatterns   []string           `json:"matched_patterns,omitempty"`
	Confidence        float64            `json:"confidence"`
	RecommendedAction string             `json:"recommended_action"`
	Resources         []string           `json:"resources,omitempty"`
}

// Detector scans messages for crisis indicators. Safe for concurrent use.
type Detector struct {
	sensitivity      float64
	includeResources bool
	patterns         []crisisPattern
	logger           zerolog.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithSensitivity sets the detection sensitivity, clamped to [0.5, 2.0]
func WithSensitivity(s float64) Option {
	return func(d *Detector) {
		d.sensitivity = math.Max(MinSensitivity, math.Min(MaxSensitivity, s))
	}
}

// WithoutResources omits hotline lists from results
func WithoutResources() Option {
	return func(d *Detector) { d.includeResources = false }
}

// New creates a Detector
func New(logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		sensitivity:      DefaultSensitivity,
		includeResources: true,
		patterns:         crisisPatterns,
		logger:           logger.With().Str("component", "crisis_detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger.Info().
		Float64("sensitivity", d.sensitivity).
		Int("patterns", len(d.patterns)).
		Msg("crisis detector initialized")
	return d
}

// Detect scans text against the crisis pattern bank. Severity is the highest
// base level among matches; every match contributes its weight to confidence.
func (d *Detector) Detect(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Level: domain.CrisisLevelNone, Type: domain.CrisisTypeNone}
	}

	highest := domain.CrisisLevelNone
	primary := domain.CrisisTypeNone
	totalWeight := 0.0
	var matched []string

	for _, p := range d.patterns {
		if !p.pattern.MatchString(text) {
			continue
		}
		matched = append(matched, fmt.Sprintf("%s:%s", p.Type, p.Level))
		totalWeight += p.Weight
		if p.Level.Rank() > highest.Rank() {
			highest = p.Level
			primary = p.Type
		}
	}

	if len(matched) == 0 {
		return Result{
			Level:             domain.CrisisLevelNone,
			Type:              domain.CrisisTypeNone,
			RecommendedAction: recommendedActions[domain.CrisisLevelNone],
		}
	}

	confidence := math.Min(1.0, totalWeight/d.sensitivity)
	level := d.adjustForSensitivity(highest, confidence)

	var resources []string
	if d.includeResources {
		resources = crisisResources[primary]
	}

	d.logger.Warn().
		Str("crisis_type", string(primary)).
		Str("level", string(level)).
		Float64("confidence", confidence).
		Int("matches", len(matched)).
		Msg("crisis indicators detected")

	return Result{
		IsCrisis:          true,
		Level:             level,
		Type:              primary,
		MatchedPatterns:   matched,
		Confidence:        math.Round(confidence*1000) / 1000,
		RecommendedAction: recommendedActions[level],
		Resources:         resources,
	}
}

// adjustForSensitivity may demote a low-confidence result by one step when
// sensitivity is tuned low. Critical is never demoted.
func (d *Detector) adjustForSensitivity(level domain.CrisisLevel, confidence float64) domain.CrisisLevel {
	if level == domain.CrisisLevelCritical {
		return level
	}
	if d.sensitivity > 1.3 && confidence < 0.5 && level.Rank() > 0 {
		return level.Demote()
	}
	return level
}

// IsCrisis reports whether any crisis pattern matches text
func (d *Detector) IsCrisis(text string) bool {
	return d.Detect(text).IsCrisis
}

// Level returns the severity for text
func (d *Detector) Level(text string) domain.CrisisLevel {
	return d.Detect(text).Level
}
