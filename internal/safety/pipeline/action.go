package pipeline

// Action is the pipeline's recommendation to the caller. The set is closed;
// consumers switch over it exhaustively.
type Action string

const (
	// ActionProceed means the message is safe to continue with.
	ActionProceed Action = "proceed"
	// ActionProceedWithRedaction means continue, but only with the redacted text.
	ActionProceedWithRedaction Action = "proceed_with_redaction"
	// ActionRequireConsent means consent must be obtained first.
	ActionRequireConsent Action = "require_consent"
	// ActionRequireVerification means identity verification must complete first.
	ActionRequireVerification Action = "require_verification"
	// ActionEscalateCrisis means immediate human intervention; the text must
	// not reach any language model.
	ActionEscalateCrisis Action = "escalate_crisis"
	// ActionRedirect means gently steer the conversation back on topic.
	ActionRedirect Action = "redirect"
	// ActionBlock means refuse and answer with a safe response.
	ActionBlock Action = "block"
	// ActionHumanReview means proceed is uncertain; flag for human review.
	ActionHumanReview Action = "human_review"
)

// Fixed safe responses returned when the pipeline stops a message.
const (
	crisisFallback = "I'm concerned about what you've shared. Your safety is the top priority. " +
		"Please reach out to one of these resources:\n\n" +
		"• National Crisis Hotline: 988\n" +
		"• Crisis Text Line: Text HOME to 741741\n" +
		"• Emergency Services: 911\n\n" +
		"Would you like me to connect you with a staff member who can help?"

	consentFallback = "Before I can assist you, I need your consent to proceed. " +
		"This AI assistant will help with appointment scheduling and general inquiries. " +
		"Your information will be handled according to HIPAA regulations. " +
		"Do you consent to continue?"

	verificationFallback = "For your security, I need to verify your identity before we continue. " +
		"This helps protect your personal health information."

	blockFallback = "I'm not able to help with that request. " +
		"I'm here to assist with healthcare-related questions like " +
		"scheduling appointments or answering questions about our clinic. " +
		"How can I help you with your healthcare needs?"

	redirectFallback = "I'd be happy to help you with healthcare-related questions. " +
		"Is there something about appointments, clinic services, or " +
		"general health inquiries I can assist with?"

	aiBlockedFallback = "I apologize, but I'm not able to provide that specific information. " +
		"For medical advice, please consult with your healthcare provider directly. " +
		"Is there something else I can help you with regarding appointments or clinic services?"

	technicalIssueFallback = "I apologize, but I'm experiencing a technical issue. " +
		"Please try again or contact the clinic directly."
)
