package crisis

import (
	"regexp"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// crisisPattern ties a compiled pattern to its crisis type, base severity,
// and the weight it contributes to the confidence total.
type crisisPattern struct {
	pattern *regexp.Regexp
	Type    domain.CrisisType
	Level   domain.CrisisLevel
	Weight  float64
}

func cp(expr string, t domain.CrisisType, l domain.CrisisLevel, w float64) crisisPattern {
	return crisisPattern{
		pattern: regexp.MustCompile(`(?i)` + expr),
		Type:    t,
		Level:   l,
		Weight:  w,
	}
}

// crisisPatterns is evaluated in order; the first match at the highest
// severity determines the primary crisis type.
var crisisPatterns = []crisisPattern{
	// suicide
	cp(`\b(want|going|plan(ning)?|think(ing)?( about)?)\s+(to\s+)?(kill\s+myself|end\s+(my\s+)?life|die)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelCritical, 1.0),
	cp(`\b(i('m| am)\s+going\s+to\s+)?(commit|attempting?)\s+suicide\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelCritical, 1.0),
	cp(`\bsuicid(e|al)\s+(ideation|thoughts?|plan)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelCritical, 1.0),
	cp(`\b(no\s+)?reason\s+to\s+(live|go\s+on|continue)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelHigh, 0.8),
	cp(`\bwish\s+i\s+(was|were)\s+(dead|never\s+born)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelHigh, 0.85),
	cp(`\beveryone\s+would\s+be\s+better\s+off\s+without\s+me\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelHigh, 0.8),
	cp(`\bdon'?t\s+want\s+to\s+(be\s+here|exist|wake\s+up)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelHigh, 0.75),
	cp(`\b(pills?|overdose|hanging|jump(ing)?|gun|shoot|slit|cut)\b.{0,30}\b(myself|suicide|end\s+it)\b`,
		domain.CrisisTypeSuicide, domain.CrisisLevelCritical, 1.0),

	// self-harm
	cp(`\b(cutting|cut(ting)?)\s+(myself|my\s+(wrist|arm|leg|body))\b`,
		domain.CrisisTypeSelfHarm, domain.CrisisLevelHigh, 0.9),
	cp(`\bself[- ]?harm(ing)?\b`,
		domain.CrisisTypeSelfHarm, domain.CrisisLevelHigh, 0.85),
	cp(`\bhurt(ing)?\s+myself\b`,
		domain.CrisisTypeSelfHarm, domain.CrisisLevelMedium, 0.7),
	cp(`\bburn(ing)?\s+myself\b`,
		domain.CrisisTypeSelfHarm, domain.CrisisLevelHigh, 0.85),
	cp(`\bpunish(ing)?\s+my(self|\s+body)\b`,
		domain.CrisisTypeSelfHarm, domain.CrisisLevelMedium, 0.6),

	// harm to others
	cp(`\b(want|going|plan(ning)?)\s+to\s+(kill|hurt|harm|attack)\s+(someone|him|her|them|my)\b`,
		domain.CrisisTypeHarmToOthers, domain.CrisisLevelCritical, 1.0),
	cp(`\b(going\s+to|will)\s+(murder|shoot|stab|strangle)\b`,
		domain.CrisisTypeHarmToOthers, domain.CrisisLevelCritical, 1.0),
	cp(`\bthoughts?\s+of\s+(killing|harming|hurting)\s+(people|others|someone)\b`,
		domain.CrisisTypeHarmToOthers, domain.CrisisLevelHigh, 0.85),

	// medical emergency
	cp(`\b(having|think(ing)?)\s+(a\s+)?(heart\s+attack|stroke)\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelCritical, 0.95),
	cp(`\bcan'?t\s+breathe?\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelHigh, 0.8),
	cp(`\bchest\s+pain.{0,20}(severe|crushing|radiating)\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelHigh, 0.85),
	cp(`\bsevere\s+(bleeding|blood\s+loss)\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelCritical, 0.9),
	cp(`\bunconscious|passed\s+out|collapsed\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelHigh, 0.85),
	cp(`\bseizure|convuls(ing|ion)\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelHigh, 0.85),
	cp(`\ballergic\s+reaction.{0,20}(throat|swelling|breathe?)\b`,
		domain.CrisisTypeMedicalEmergency, domain.CrisisLevelCritical, 0.9),

	// substance overdose
	cp(`\b(took|swallowed|overdos(ed?|ing))\s+(too\s+many\s+)?(pills?|medication|drugs?)\b`,
		domain.CrisisTypeSubstanceOverdose, domain.CrisisLevelCritical, 0.95),
	cp(`\boverdos(e|ed|ing)\b`,
		domain.CrisisTypeSubstanceOverdose, domain.CrisisLevelCritical, 0.9),
	cp(`\baccidentally\s+took\s+(too\s+much|double|extra)\s+(dose|medication|medicine)\b`,
		domain.CrisisTypeSubstanceOverdose, domain.CrisisLevelHigh, 0.8),

	// domestic abuse
	cp(`\b(partner|husband|wife|boyfriend|girlfriend|spouse)\s+(hit|hits|hitting|beat|beats|beating|hurt|hurts|hurting)\s+me\b`,
		domain.CrisisTypeDomesticAbuse, domain.CrisisLevelHigh, 0.85),
	cp(`\bdomestic\s+(violence|abuse)\b`,
		domain.CrisisTypeDomesticAbuse, domain.CrisisLevelHigh, 0.8),
	cp(`\bafraid\s+(of\s+)?(my\s+)?(partner|husband|wife|boyfriend|girlfriend)\b`,
		domain.CrisisTypeDomesticAbuse, domain.CrisisLevelMedium, 0.7),
	cp(`\b(he|she)\s+(threatens?|threatened)\s+to\s+(kill|hurt)\s+me\b`,
		domain.CrisisTypeDomesticAbuse, domain.CrisisLevelCritical, 0.95),

	// child safety
	cp(`\b(child|kid|minor|baby|infant)\s+(is\s+)?(being\s+)?(abuse[d]?|hurt|neglect(ed)?)\b`,
		domain.CrisisTypeChildSafety, domain.CrisisLevelCritical, 1.0),
	cp(`\b(abuse|hurt|neglect)(ing)?\s+(a\s+)?(child|kid|minor|baby)\b`,
		domain.CrisisTypeChildSafety, domain.CrisisLevelCritical, 1.0),
	cp(`\bchild\s+(abuse|endangerment|neglect)\b`,
		domain.CrisisTypeChildSafety, domain.CrisisLevelCritical, 0.95),

	// general mental health crisis
	cp(`\b(having|in)\s+(a\s+)?(mental|nervous)\s+(breakdown|crisis)\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelHigh, 0.8),
	cp(`\bcan'?t\s+(cope|handle|take\s+it)\s+(anymore|any\s+more)\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelMedium, 0.65),
	cp(`\b(severe|extreme)\s+(anxiety|panic|depression)\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelMedium, 0.6),
	cp(`\bpanic\s+attack\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelMedium, 0.5),
	cp(`\bhallucinating|hearing\s+voices?\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelHigh, 0.75),
	cp(`\bpsychotic\s+(episode|break)\b`,
		domain.CrisisTypeMentalHealth, domain.CrisisLevelHigh, 0.85),
}

// crisisResources maps each crisis type to its hotline list. Resource
// strings are policy content and are returned verbatim, never generated.
var crisisResources = map[domain.CrisisType][]string{
	domain.CrisisTypeSuicide: {
		"National Suicide Prevention Lifeline: 988",
		"Crisis Text Line: Text HOME to 741741",
		"International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/",
	},
	domain.CrisisTypeSelfHarm: {
		"National Suicide Prevention Lifeline: 988",
		"Crisis Text Line: Text HOME to 741741",
		"SAMHSA National Helpline: 1-800-662-4357",
	},
	domain.CrisisTypeHarmToOthers: {
		"National Crisis Hotline: 988",
		"Emergency Services: 911",
	},
	domain.CrisisTypeMedicalEmergency: {
		"Emergency Services: 911",
		"Poison Control: 1-800-222-1222",
	},
	domain.CrisisTypeSubstanceOverdose: {
		"Emergency Services: 911",
		"Poison Control: 1-800-222-1222",
		"SAMHSA National Helpline: 1-800-662-4357",
	},
	domain.CrisisTypeDomesticAbuse: {
		"National Domestic Violence Hotline: 1-800-799-7233",
		"Text START to 88788",
		"Emergency Services: 911",
	},
	domain.CrisisTypeChildSafety: {
		"Childhelp National Child Abuse Hotline: 1-800-422-4453",
		"Emergency Services: 911",
	},
	domain.CrisisTypeMentalHealth: {
		"National Crisis Hotline: 988",
		"Crisis Text Line: Text HOME to 741741",
		"NAMI Helpline: 1-800-950-6264",
	},
}

// recommendedActions describes the operator playbook per severity
var recommendedActions = map[domain.CrisisLevel]string{
	domain.CrisisLevelNone:     "Continue normal conversation flow.",
	domain.CrisisLevelLow:      "Monitor conversation. Offer supportive responses.",
	domain.CrisisLevelMedium:   "Acknowledge distress. Provide relevant resources. Consider human review.",
	domain.CrisisLevelHigh:     "Prioritize safety. Provide crisis resources. Flag for human review.",
	domain.CrisisLevelCritical: "IMMEDIATE ESCALATION. Connect to human immediately. Provide emergency resources.",
}

// Resources returns the hotline list for a crisis type
func Resources(t domain.CrisisType) []string {
	return crisisResources[t]
}
