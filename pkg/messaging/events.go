package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys for safety events forwarded to external monitoring
const (
	EventAuditLogged      = "safety.audit.logged"
	EventCrisisEscalated  = "safety.crisis.escalated"
	EventChainVerified    = "safety.audit.chain_verified"
	EventChainCompromised = "safety.audit.chain_compromised"
)

// Exchange names
const (
	ExchangeSafetyAudit = "safety.audit"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}
