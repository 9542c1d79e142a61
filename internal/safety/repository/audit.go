package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/medrelay/safety-service/internal/safety/audit"
	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/database"
)

// AuditRepository persists audit events in Postgres. The audit_events table
// is append-only with a monotonic seq column; chain order is seq order.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, timestamp, event_type, severity, clinic_id, patient_id, session_id, action, outcome, details, previous_hash, entry_hash`

// Append stores a new event at the tail of its clinic's chain.
func (r *AuditRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	detailsJSON, err := json.Marshal(event.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (id, timestamp, event_type, severity, clinic_id, patient_id,
		                          session_id, action, outcome, details, previous_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.EventType,
		event.Severity,
		event.ClinicID,
		event.PatientID,
		event.SessionID,
		event.Action,
		event.Outcome,
		detailsJSON,
		event.PreviousHash,
		event.EntryHash,
	)
	return err
}

// Query returns events matching the filter in chain order.
func (r *AuditRepository) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE clinic_id = $1`
	args := []interface{}{q.ClinicID}
	argIndex := 2

	if q.PatientID != "" {
		query += fmt.Sprintf(` AND patient_id = $%d`, argIndex)
		args = append(args, q.PatientID)
		argIndex++
	}
	if q.Severity != "" {
		query += fmt.Sprintf(` AND severity = $%d`, argIndex)
		args = append(args, q.Severity)
		argIndex++
	}
	if len(q.EventTypes) > 0 {
		types := make([]string, len(q.EventTypes))
		for i, t := range q.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(` AND event_type = ANY($%d)`, argIndex)
		args = append(args, pq.Array(types))
		argIndex++
	}
	if !q.Start.IsZero() {
		query += fmt.Sprintf(` AND timestamp >= $%d`, argIndex)
		args = append(args, q.Start)
		argIndex++
	}
	if !q.End.IsZero() {
		query += fmt.Sprintf(` AND timestamp <= $%d`, argIndex)
		args = append(args, q.End)
		argIndex++
	}

	query += ` ORDER BY seq`

	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIndex)
		args = append(args, q.Limit)
		argIndex++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIndex)
		args = append(args, q.Offset)
	}

	return r.scanEvents(ctx, query, args...)
}

// Chain returns the complete ordered chain for a clinic.
func (r *AuditRepository) Chain(ctx context.Context, clinicID string) ([]domain.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE clinic_id = $1 ORDER BY seq`
	return r.scanEvents(ctx, query, clinicID)
}

// Clinics lists every clinic that has audit events.
func (r *AuditRepository) Clinics(ctx context.Context) ([]string, error) {
	var clinics []string
	query := `SELECT DISTINCT clinic_id FROM audit_events ORDER BY clinic_id`
	if err := r.db.SelectContext(ctx, &clinics, query); err != nil {
		return nil, err
	}
	return clinics, nil
}

// LastHash returns the hash of a clinic's newest event, or the genesis value
// when the clinic has no events yet.
func (r *AuditRepository) LastHash(ctx context.Context, clinicID string) (string, error) {
	var hash string
	query := `SELECT entry_hash FROM audit_events WHERE clinic_id = $1 ORDER BY seq DESC LIMIT 1`
	err := r.db.GetContext(ctx, &hash, query, clinicID)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.GenesisHash, nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (r *AuditRepository) scanEvents(ctx context.Context, query string, args ...interface{}) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var detailsJSON []byte

		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Severity, &e.ClinicID,
			&e.PatientID, &e.SessionID, &e.Action, &e.Outcome,
			&detailsJSON, &e.PreviousHash, &e.EntryHash,
		); err != nil {
			return nil, err
		}

		if len(detailsJSON) > 0 {
			json.Unmarshal(detailsJSON, &e.Details)
		}

		events = append(events, e)
	}
	return events, rows.Err()
}
