package pii

import (
	"regexp"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// patternRecognizer matches one PII type with a fixed confidence. When group
// is nonzero only that capture group's span is reported, so contextual label
// text (e.g. "DOB:") survives redaction.
type patternRecognizer struct {
	piiType    domain.PIIType
	pattern    *regexp.Regexp
	confidence float64
	group      int
	validate   func(match string) bool
}

func (r patternRecognizer) find(text string) []Entity {
	var entities []Entity
	for _, m := range r.pattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		if r.group > 0 && len(m) > 2*r.group+1 && m[2*r.group] >= 0 {
			start, end = m[2*r.group], m[2*r.group+1]
		}
		value := text[start:end]
		if r.validate != nil && !r.validate(value) {
			continue
		}
		entities = append(entities, Entity{
			Type:       r.piiType,
			Text:       value,
			Start:      start,
			End:        end,
			Confidence: r.confidence,
		})
	}
	return entities
}

func builtinRecognizers() []patternRecognizer {
	return []patternRecognizer{
		// Social security numbers, hyphenated or labeled
		{
			piiType:    domain.PIITypeSSN,
			pattern:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			confidence: 0.85,
		},
		{
			piiType:    domain.PIITypeSSN,
			pattern:    regexp.MustCompile(`(?i)\b(?:ssn|social\s+security)(?:\s*(?:number|no|#))?\s*[:=]?\s*(\d{3}[- ]?\d{2}[- ]?\d{4})\b`),
			confidence: 0.9,
			group:      1,
		},

		// Credit cards, Luhn-checked
		{
			piiType:    domain.PIITypeCreditCard,
			pattern:    regexp.MustCompile(`\b\d(?:[ -]?\d){12,18}\b`),
			confidence: 0.9,
			validate:   luhnValid,
		},

		// Email addresses
		{
			piiType:    domain.PIITypeEmail,
			pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			confidence: 0.95,
		},

		// US phone numbers
		{
			piiType:    domain.PIITypePhone,
			pattern:    regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s?|\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`),
			confidence: 0.75,
		},

		// IPv4 addresses
		{
			piiType:    domain.PIITypeIPAddress,
			pattern:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`),
			confidence: 0.8,
		},

		// Dates of birth, keyed on context words rather than bare dates
		{
			piiType:    domain.PIITypeDateOfBirth,
			pattern:    regexp.MustCompile(`(?i)\b(?:DOB|Date\s+of\s+Birth|Birth\s*date|Born)\s*[:=]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`),
			confidence: 0.95,
			group:      1,
		},
		{
			piiType:    domain.PIITypeDateOfBirth,
			pattern:    regexp.MustCompile(`(?i)\b(?:DOB|Date\s+of\s+Birth|Birth\s*date|Born)\s*[:=]?\s*([A-Za-z]+\s+\d{1,2},?\s+\d{4})\b`),
			confidence: 0.95,
			group:      1,
		},

		// Medical record numbers
		{
			piiType:    domain.PIITypeMedicalRecord,
			pattern:    regexp.MustCompile(`(?i)\bMRN[-:#\s]?\s*(\d{5,10})\b`),
			confidence: 0.9,
			group:      1,
		},
		{
			piiType:    domain.PIITypeMedicalRecord,
			pattern:    regexp.MustCompile(`(?i)\bMedical\s+Record\s*(?:Number|#)?\s*[:#]?\s*(\d{5,10})\b`),
			confidence: 0.85,
			group:      1,
		},
		{
			piiType:    domain.PIITypeMedicalRecord,
			pattern:    regexp.MustCompile(`(?i)\bPatient\s*(?:ID|#|Number)?\s*[:=#]?\s*(\d{5,10})\b`),
			confidence: 0.7,
			group:      1,
		},

		// Insurance and member identifiers
		{
			piiType:    domain.PIITypeInsuranceID,
			pattern:    regexp.MustCompile(`(?i)\b(?:Insurance|Member|Policy|Subscriber)\s*(?:ID|#|Number)?\s*[:=#]?\s*([A-Z]{0,3}\d{6,12})\b`),
			confidence: 0.85,
			group:      1,
		},
		{
			piiType:    domain.PIITypeInsuranceID,
			pattern:    regexp.MustCompile(`(?i)\b(?:Insurance|Member|Policy)\s*[:=#]?\s*([A-Z]{2,3}[-\s]?\d{3}[-\s]?\d{3,6})\b`),
			confidence: 0.8,
			group:      1,
		},
	}
}

// luhnValid checks the credit card checksum over the digits of match
func luhnValid(match string) bool {
	var digits []int
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
