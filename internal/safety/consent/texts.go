package consent

import (
	"fmt"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// Text is a versioned consent statement shown to the patient. The version is
// stored on every grant so the audit trail records exactly what was agreed to.
type Text struct {
	Version string `json:"version"`
	Text    string `json:"text"`
}

var consentTexts = map[domain.ConsentType]Text{
	domain.ConsentTypeAIInteraction: {
		Version: "1.0",
		Text: "I consent to interact with an AI-powered medical receptionist. " +
			"I understand that this AI will help with appointment scheduling " +
			"and general inquiries, but will not provide medical advice. " +
			"A human representative is available upon request.",
	},
	domain.ConsentTypeDataProcessing: {
		Version: "1.0",
		Text: "I consent to the processing of my personal and health information " +
			"for the purpose of appointment scheduling and healthcare coordination. " +
			"My data will be handled in accordance with HIPAA regulations.",
	},
	domain.ConsentTypeSMSCommunication: {
		Version: "1.0",
		Text: "I consent to receive SMS text messages regarding my appointments " +
			"and healthcare communications. Message and data rates may apply.",
	},
	domain.ConsentTypeEmailCommunication: {
		Version: "1.0",
		Text: "I consent to receive email communications regarding my appointments " +
			"and healthcare information.",
	},
	domain.ConsentTypeAppointmentReminders: {
		Version: "1.0",
		Text: "I consent to receive automated appointment reminders via my " +
			"preferred communication method.",
	},
}

// TextFor returns the consent statement for a type, with a generic fallback
// for types that have no dedicated wording yet.
func TextFor(consentType domain.ConsentType) Text {
	if t, ok := consentTexts[consentType]; ok {
		return t
	}
	return Text{
		Version: "1.0",
		Text:    fmt.Sprintf("Consent for %s", consentType),
	}
}
