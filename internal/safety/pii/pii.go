// Package pii detects and redacts personally identifiable information.
// Detection is layered: structural pattern recognizers for identifiers and
// contact details, healthcare-specific recognizers for record and insurance
// numbers, and a pluggable recognizer for free-text person names.
package pii

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medrelay/safety-service/internal/safety/domain"
	apperrors "github.com/medrelay/safety-service/pkg/errors"
)

// DefaultConfidenceThreshold discards matches scored below it
const DefaultConfidenceThreshold = 0.5

// Entity is a single PII match within a text
type Entity struct {
	Type       domain.PIIType `json:"type"`
	Text       string         `json:"text"`
	Start      int            `json:"start"`
	End        int            `json:"end"`
	Confidence float64        `json:"confidence"`
}

// Result is the outcome of a detection pass
type Result struct {
	OriginalText  string        `json:"original_text"`
	RedactedText  string        `json:"redacted_text"`
	Entities      []Entity      `json:"entities,omitempty"`
	PIIDetected   bool          `json:"pii_detected"`
	DetectionTime time.Duration `json:"detection_time"`
}

// NameRecognizer finds person names in free text. Implementations may wrap
// a full NER model; the default is a lightweight heuristic.
type NameRecognizer interface {
	RecognizeNames(text string) []Entity
}

// Detector finds and redacts PII. Safe for concurrent use; all recognizers
// are compiled at construction.
type Detector struct {
	threshold   float64
	recognizers []patternRecognizer
	names       NameRecognizer
	logger      zerolog.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithConfidenceThreshold overrides the minimum match confidence
func WithConfidenceThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// WithNameRecognizer replaces the default heuristic name recognizer
func WithNameRecognizer(nr NameRecognizer) Option {
	return func(d *Detector) { d.names = nr }
}

// WithoutNameRecognition disables person-name detection entirely
func WithoutNameRecognition() Option {
	return func(d *Detector) { d.names = nil }
}

// New creates a Detector with the full recognizer set
func New(logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		threshold:   DefaultConfidenceThreshold,
		recognizers: builtinRecognizers(),
		names:       newHeuristicNameRecognizer(),
		logger:      logger.With().Str("component", "pii_detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect finds PII in text and produces a redacted copy. On internal failure
// it returns the original text unredacted with PIIDetected false; it never
// panics through to the caller.
func (d *Detector) Detect(text string) (result Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Err(apperrors.DetectorFailure("pii", fmt.Errorf("%v", r))).Msg("pii detection failed, returning text unredacted")
			result = Result{
				OriginalText:  text,
				RedactedText:  text,
				PIIDetected:   false,
				DetectionTime: time.Since(start),
			}
		}
	}()

	if strings.TrimSpace(text) == "" {
		return Result{OriginalText: text, RedactedText: text}
	}

	var entities []Entity
	for _, rec := range d.recognizers {
		entities = append(entities, rec.find(text)...)
	}
	if d.names != nil {
		entities = append(entities, d.recognizeNames(text)...)
	}

	entities = d.filterAndResolve(entities)

	redacted := text
	if len(entities) > 0 {
		redacted = redact(text, entities)
	}

	return Result{
		OriginalText:  text,
		RedactedText:  redacted,
		Entities:      entities,
		PIIDetected:   len(entities) > 0,
		DetectionTime: time.Since(start),
	}
}

// DetectAndExtract also returns the first raw value found per type. Extracted
// values are for verification only and must be discarded after use.
func (d *Detector) DetectAndExtract(text string) (Result, map[domain.PIIType]string) {
	result := d.Detect(text)

	extracted := make(map[domain.PIIType]string)
	for _, e := range result.Entities {
		if _, seen := extracted[e.Type]; !seen {
			extracted[e.Type] = e.Text
		}
	}
	return result, extracted
}

// Redact is a convenience that returns only the redacted text
func (d *Detector) Redact(text string) string {
	return d.Detect(text).RedactedText
}

// recognizeNames isolates a misbehaving name recognizer from the rest of the
// detection pass.
func (d *Detector) recognizeNames(text string) (entities []Entity) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Err(apperrors.DetectorFailure("name_recognizer", fmt.Errorf("%v", r))).Msg("name recognizer failed, skipping")
			entities = nil
		}
	}()
	return d.names.RecognizeNames(text)
}

// filterAndResolve drops low-confidence matches and resolves overlapping
// spans, preferring higher confidence, then the longer span.
func (d *Detector) filterAndResolve(entities []Entity) []Entity {
	kept := entities[:0]
	for _, e := range entities {
		if e.Confidence >= d.threshold {
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return (kept[i].End - kept[i].Start) > (kept[j].End - kept[j].Start)
	})

	var resolved []Entity
	for _, e := range kept {
		overlaps := false
		for _, r := range resolved {
			if e.Start < r.End && r.Start < e.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			resolved = append(resolved, e)
		}
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Start < resolved[j].Start })
	return resolved
}

// redact replaces each entity span with a type-tagged placeholder, walking
// the sorted spans left to right and copying the text between them.
func redact(text string, entities []Entity) string {
	var b strings.Builder
	last := 0
	for _, e := range entities {
		if e.Start < last {
			continue
		}
		b.WriteString(text[last:e.Start])
		b.WriteString(fmt.Sprintf("[REDACTED_%s]", e.Type))
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String()
}
