package content

import (
	"regexp"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// weightedPattern pairs a pattern with the weight it contributes. When unless
// is set, a match is discarded if unless also matches anywhere in the text;
// this stands in for negative lookahead, which RE2 does not support.
type weightedPattern struct {
	pattern *regexp.Regexp
	weight  float64
	unless  *regexp.Regexp
}

func wp(expr string, weight float64) weightedPattern {
	return weightedPattern{pattern: regexp.MustCompile(`(?i)` + expr), weight: weight}
}

func wpUnless(expr string, weight float64, unlessExpr string) weightedPattern {
	return weightedPattern{
		pattern: regexp.MustCompile(`(?i)` + expr),
		weight:  weight,
		unless:  regexp.MustCompile(`(?i)` + unlessExpr),
	}
}

// matches reports whether the pattern applies to text
func (p weightedPattern) matches(text string) bool {
	if !p.pattern.MatchString(text) {
		return false
	}
	if p.unless != nil && p.unless.MatchString(text) {
		return false
	}
	return true
}

const hateSpeechWeight = 1.0

var profanityPatterns = []weightedPattern{
	wp(`\bf+u+c+k+\w*\b`, 0.9),
	wp(`\bs+h+i+t+\w*\b`, 0.7),
	wp(`\ba+s+s+h+o+l+e+\b`, 0.85),
	wp(`\bb+i+t+c+h+\w*\b`, 0.8),
	wp(`\bd+a+m+n+\b`, 0.3),
	wp(`\bh+e+l+l+\b`, 0.2),
	wp(`\bcrap\b`, 0.2),
	wp(`\bpiss(ed)?\b`, 0.4),

	// slurs, always treated as hate speech
	wp(`\b(n+i+g+g+\w*|f+a+g+\w*|r+e+t+a+r+d+\w*)\b`, hateSpeechWeight),
}

var sexualPatterns = []weightedPattern{
	wp(`\b(sex|sexual|sexy)\b`, 0.5),
	wp(`\b(porn|pornograph\w*)\b`, 0.95),
	wp(`\b(nude|naked|nud(ity|e))\b`, 0.7),
	wp(`\b(erotic|xxx)\b`, 0.9),
}

var violencePatterns = []weightedPattern{
	wp(`\b(gore|gory|gruesome)\b`, 0.7),
	wp(`\b(torture|torturing)\b`, 0.8),
	wp(`\b(mutilat\w*)\b`, 0.85),
	// entertainment violence; crisis detection owns actual threats
	wpUnless(`\b(kill(ed|ing)?|murder(ed|ing)?)\b`, 0.3, `\b(myself|me|suicide)\b`),
}

var spamPatterns = []weightedPattern{
	wp(`\b(buy\s+now|click\s+here|free\s+offer)\b`, 0.8),
	wp(`\b(make\s+money|earn\s+\$|work\s+from\s+home)\b`, 0.7),
	wp(`\b(viagra|cialis|pharmacy|pills?\s+online)\b`, 0.9),
	wp(`\b(casino|lottery|jackpot|winner)\b`, 0.6),
	wp(`(https?://\S+.*){3,}`, 0.75),
	wp(`\b(subscribe|unsubscribe|newsletter)\b`, 0.4),
	{pattern: regexp.MustCompile(`[A-Z\s]{20,}`), weight: 0.5},
}

// repeatedRunWeight is added by a scan for 6+ identical consecutive runes,
// which RE2 cannot express as a backreference.
const repeatedRunWeight = 0.6

func hasRepeatedRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= 6 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

var offTopicPatterns = []weightedPattern{
	wp(`\b(stock\s+market|crypto|bitcoin|trading)\b`, 0.7),
	wpUnless(`\b(recipe|cooking|baking)\b`, 0.5, `diet|nutrition|allergy`),
	wp(`\b(sports?\s+score|game\s+result|playoffs?)\b`, 0.6),
	wpUnless(`\b(movie|film|tv\s+show|netflix)\b`, 0.4, `anxiety|stress|mental`),
	wpUnless(`\b(dating|tinder|relationship\s+advice)\b`, 0.5, `health|std|mental`),
	wpUnless(`\b(homework|essay|assignment)\b`, 0.6, `medical|health`),
	wpUnless(`\b(code|programming|software|app\s+develop)\b`, 0.5, `medical|health`),
}

var hallucinationPatterns = []weightedPattern{
	wpUnless(`\b(study\s+shows?|research\s+(indicates?|proves?))\b`, 0.4, `\d{4}`),
	wp(`\b\d{2,3}(\.\d+)?%\s+of\s+(patients?|people|cases?)\b`, 0.3),
	wp(`\byou\s+(definitely|certainly|absolutely)\s+have\b`, 0.8),
	wp(`\bthis\s+is\s+(definitely|certainly)\s+(not\s+)?cancer\b`, 0.9),
	wp(`\byou\s+don'?t\s+need\s+to\s+see\s+a\s+doctor\b`, 0.85),
}

var medicalAdvicePatterns = []weightedPattern{
	wp(`\byou\s+should\s+(take|stop\s+taking)\s+\w+\s*(mg|medication|medicine|drug)\b`, 0.9),
	wp(`\b(increase|decrease|change)\s+your\s+(dosage|medication|prescription)\b`, 0.95),
	wp(`\bdiagnos(is|e|ing)\s+you\s+with\b`, 0.9),
	wp(`\byou\s+have\s+(cancer|diabetes|hiv|aids|heart\s+disease)\b`, 0.95),
	wp(`\bdon'?t\s+(worry|go)\s+.*(emergency|hospital|doctor)\b`, 0.85),
}

// healthcareAllowlist marks legitimate clinical language so anatomical terms
// are not penalized as sexual content.
var healthcareAllowlist = compileList([]string{
	`\b(breast|vagina|penis|testicle|prostate|rectum|anus|genital)\b`,
	`\b(uterus|ovary|cervix|urethra)\b`,
	`\b(pap\s+smear|mammogram|colonoscopy|prostate\s+exam)\b`,
	`\b(biopsy|surgery|operation|procedure)\b`,
	`\b(std|sti|hiv|aids|herpes|chlamydia|gonorrhea)\b`,
	`\b(erectile\s+dysfunction|impotence)\b`,
	`\b(hemorrhoid|constipation|diarrhea)\b`,
	`\b(discharge|bleeding|pain|swelling)\b`,
	`\b(nausea|vomiting|fever)\b`,
})

func compileList(exprs []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		compiled[i] = regexp.MustCompile(`(?i)` + e)
	}
	return compiled
}

// suggestedResponses are the fixed user-facing replies per primary category.
// The hallucination and medical advice entries are internal review markers,
// never shown to patients.
var suggestedResponses = map[domain.ContentCategory]string{
	domain.ContentCategoryProfanity: "I'd be happy to help you, but let's keep our conversation professional. " +
		"How can I assist you with your healthcare needs today?",
	domain.ContentCategorySexual: "I'm a medical receptionist assistant focused on appointment scheduling " +
		"and general healthcare inquiries. How can I help you with your medical needs?",
	domain.ContentCategoryViolence: "I'm here to help with healthcare-related questions. " +
		"Is there something medical I can assist you with?",
	domain.ContentCategorySpam: "I'm an AI medical receptionist. I can help you with appointment scheduling, " +
		"clinic information, and general healthcare questions.",
	domain.ContentCategoryOffTopic: "I'm specifically designed to help with healthcare-related questions " +
		"like scheduling appointments, clinic hours, and medical inquiries. " +
		"Is there something in that area I can help with?",
	domain.ContentCategoryHateSpeech: "I'm unable to engage with that type of content. " +
		"I'm here to help with your healthcare needs in a respectful manner.",
	domain.ContentCategoryHallucination: "[INTERNAL: AI response contained potential hallucination - review required]",
	domain.ContentCategoryMedicalAdvice: "[INTERNAL: AI response contained specific medical advice - blocked for safety]",
}

// SuggestedResponse returns the canned reply for a category
func SuggestedResponse(c domain.ContentCategory) string {
	return suggestedResponses[c]
}

func isHealthcareContext(text string) bool {
	for _, p := range healthcareAllowlist {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// maxWeight returns the highest weight among matching patterns
func maxWeight(text string, patterns []weightedPattern) float64 {
	max := 0.0
	for _, p := range patterns {
		if p.weight > max && p.matches(text) {
			max = p.weight
		}
	}
	return max
}

// containsHateSpeech reports whether any maximal-weight profanity pattern
// (slurs) matches.
func containsHateSpeech(text string) bool {
	for _, p := range profanityPatterns {
		if p.weight >= hateSpeechWeight && p.matches(text) {
			return true
		}
	}
	return false
}
