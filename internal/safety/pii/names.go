package pii

import (
	"regexp"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// heuristicNameRecognizer finds person names without an NER model. It keys on
// honorifics and self-introduction phrasing, which covers how names actually
// appear in scheduling conversations. A model-backed implementation can be
// swapped in through WithNameRecognizer.
type heuristicNameRecognizer struct {
	patterns []namePattern
}

type namePattern struct {
	pattern    *regexp.Regexp
	confidence float64
	group      int
}

func newHeuristicNameRecognizer() *heuristicNameRecognizer {
	return &heuristicNameRecognizer{
		patterns: []namePattern{
			// Dr. Jane Smith, Mrs. Lopez
			{
				pattern:    regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Miss|Prof)\.?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`),
				confidence: 0.8,
				group:      1,
			},
			// my name is John Doe, this is Maria Garcia
			{
				pattern:    regexp.MustCompile(`(?:[Mm]y\s+name\s+is|[Tt]his\s+is|[Ii]\s+am|[Ii]'m)\s+([A-Z][a-z]+\s+[A-Z][a-z]+)\b`),
				confidence: 0.75,
				group:      1,
			},
			// patient name labels
			{
				pattern:    regexp.MustCompile(`(?i)\b(?:patient|name)\s*[:=]\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)`),
				confidence: 0.7,
				group:      1,
			},
		},
	}
}

func (h *heuristicNameRecognizer) RecognizeNames(text string) []Entity {
	var entities []Entity
	for _, np := range h.patterns {
		for _, m := range np.pattern.FindAllStringSubmatchIndex(text, -1) {
			if len(m) <= 2*np.group+1 || m[2*np.group] < 0 {
				continue
			}
			start, end := m[2*np.group], m[2*np.group+1]
			entities = append(entities, Entity{
				Type:       domain.PIITypePerson,
				Text:       text[start:end],
				Start:      start,
				End:        end,
				Confidence: np.confidence,
			})
		}
	}
	return entities
}
