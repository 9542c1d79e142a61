package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/medrelay/safety-service/internal/safety/domain"
)

// GenesisHash anchors the first event of every clinic's chain.
const GenesisHash = "genesis"

// hashPayload is the canonical field set covered by an event's hash. Mutating
// any of these fields after the fact, or reordering events, breaks the chain.
type hashPayload struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	EventType    string `json:"event_type"`
	ClinicID     string `json:"clinic_id"`
	PatientID    string `json:"patient_id"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	PreviousHash string `json:"previous_hash"`
}

// ComputeHash returns the hex SHA-256 of the event's canonical fields chained
// with previousHash. Field order is fixed by the struct, so the encoding is
// stable across processes.
func ComputeHash(e *domain.AuditEvent, previousHash string) string {
	payload := hashPayload{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType:    string(e.EventType),
		ClinicID:     e.ClinicID,
		PatientID:    e.PatientID,
		Action:       e.Action,
		Outcome:      e.Outcome,
		PreviousHash: previousHash,
	}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
