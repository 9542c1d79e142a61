package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medrelay/safety-service/internal/safety/domain"
	apperrors "github.com/medrelay/safety-service/pkg/errors"
	"github.com/medrelay/safety-service/pkg/logger"
)

// Entry carries the caller-supplied fields of an audit event. ClinicID,
// EventType, Severity and Action are required; Outcome defaults to success.
type Entry struct {
	EventType domain.AuditEventType
	Severity  domain.AuditSeverity
	ClinicID  string
	PatientID string
	SessionID string
	Action    string
	Outcome   string
	Details   map[string]interface{}
}

// Forwarder receives every committed audit event, typically to push it into a
// SIEM. Forwarding is best effort and never fails the audit write itself.
type Forwarder interface {
	Forward(ctx context.Context, event *domain.AuditEvent) error
}

// Logger writes tamper-evident audit events. Events within a clinic form a
// hash chain anchored at GenesisHash; the chain tail is guarded by a
// per-clinic mutex so concurrent writers serialize only within their tenant.
type Logger struct {
	store     Store
	log       *logger.Logger
	forwarder Forwarder
	hashChain bool
	now       func() time.Time

	mu    sync.Mutex
	tails map[string]*chainTail
}

type chainTail struct {
	mu     sync.Mutex
	hash   string
	seeded bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithForwarder attaches a Forwarder invoked after each committed event.
func WithForwarder(f Forwarder) Option {
	return func(l *Logger) { l.forwarder = f }
}

// WithoutHashChain disables hash chaining. Events are still stored but
// tampering is no longer detectable.
func WithoutHashChain() Option {
	return func(l *Logger) { l.hashChain = false }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates an audit Logger backed by the given store.
func NewLogger(store Store, log *logger.Logger, opts ...Option) *Logger {
	l := &Logger{
		store:     store,
		log:       log.WithComponent("audit"),
		hashChain: true,
		now:       time.Now,
		tails:     make(map[string]*chainTail),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log commits a new audit event at the tail of its clinic's chain.
func (l *Logger) Log(ctx context.Context, entry Entry) (*domain.AuditEvent, error) {
	if entry.ClinicID == "" {
		return nil, apperrors.BadRequest("audit entry requires a clinic id")
	}
	if entry.Outcome == "" {
		entry.Outcome = domain.OutcomeSuccess
	}

	event := &domain.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: l.now().UTC(),
		EventType: entry.EventType,
		Severity:  entry.Severity,
		ClinicID:  entry.ClinicID,
		PatientID: entry.PatientID,
		SessionID: entry.SessionID,
		Action:    entry.Action,
		Outcome:   entry.Outcome,
		Details:   entry.Details,
	}

	if l.hashChain {
		tail := l.tail(entry.ClinicID)
		tail.mu.Lock()
		if !tail.seeded {
			last, err := l.store.LastHash(ctx, entry.ClinicID)
			if err != nil {
				tail.mu.Unlock()
				return nil, fmt.Errorf("seeding chain tail for clinic %s: %w", entry.ClinicID, err)
			}
			tail.hash = last
			tail.seeded = true
		}
		event.PreviousHash = tail.hash
		event.EntryHash = ComputeHash(event, tail.hash)
		if err := l.store.Append(ctx, event); err != nil {
			tail.mu.Unlock()
			return nil, fmt.Errorf("appending audit event: %w", err)
		}
		tail.hash = event.EntryHash
		tail.mu.Unlock()
	} else {
		if err := l.store.Append(ctx, event); err != nil {
			return nil, fmt.Errorf("appending audit event: %w", err)
		}
	}

	l.emit(event)

	if l.forwarder != nil {
		if err := l.forwarder.Forward(ctx, event); err != nil {
			l.log.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", string(event.EventType)).
				Msg("audit event forwarding failed")
		}
	}

	return event, nil
}

func (l *Logger) tail(clinicID string) *chainTail {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tails[clinicID]
	if !ok {
		t = &chainTail{}
		l.tails[clinicID] = t
	}
	return t
}

func (l *Logger) emit(e *domain.AuditEvent) {
	evt := l.log.Info()
	switch e.Severity {
	case domain.SeverityDebug:
		evt = l.log.Debug()
	case domain.SeverityWarning:
		evt = l.log.Warn()
	case domain.SeverityError, domain.SeverityCritical:
		evt = l.log.Error()
	}
	evt.
		Str("event_type", string(e.EventType)).
		Str("clinic_id", e.ClinicID).
		Str("patient_id", e.PatientID).
		Str("action", e.Action).
		Str("outcome", e.Outcome).
		Msg("audit event")
}

// Query returns events matching the filter in chain order.
func (l *Logger) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEvent, error) {
	if q.ClinicID == "" {
		return nil, apperrors.BadRequest("audit query requires a clinic id")
	}
	return l.store.Query(ctx, q)
}

// PatientTrail returns a patient's audit history within a clinic.
func (l *Logger) PatientTrail(ctx context.Context, clinicID, patientID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.Query(ctx, domain.AuditQuery{
		ClinicID:  clinicID,
		PatientID: patientID,
		Limit:     limit,
	})
}

// Summary aggregates a clinic's audit activity over a time window. Zero-value
// bounds mean unbounded.
func (l *Logger) Summary(ctx context.Context, clinicID string, start, end time.Time) (*domain.AuditSummary, error) {
	events, err := l.store.Query(ctx, domain.AuditQuery{
		ClinicID: clinicID,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return nil, err
	}

	summary := &domain.AuditSummary{
		ClinicID:   clinicID,
		Start:      start,
		End:        end,
		ByType:     make(map[domain.AuditEventType]int),
		BySeverity: make(map[domain.AuditSeverity]int),
	}
	patients := make(map[string]struct{})

	for _, e := range events {
		summary.TotalEvents++
		summary.ByType[e.EventType]++
		summary.BySeverity[e.Severity]++
		switch e.EventType {
		case domain.EventCrisisDetected, domain.EventCrisisEscalated:
			summary.CrisisCount++
		case domain.EventPIIDetected, domain.EventPIIRedacted:
			summary.PIICount++
		}
		switch e.Outcome {
		case domain.OutcomeBlocked:
			summary.BlockedCount++
		case domain.OutcomeFailure:
			summary.FailureCount++
		}
		if e.PatientID != "" {
			patients[e.PatientID] = struct{}{}
		}
	}
	summary.UniquePatients = len(patients)
	return summary, nil
}

// VerifyChainIntegrity replays a clinic's chain from genesis and reports the
// first break, if any. Deletion, reordering and field mutation all surface as
// hash mismatches.
func (l *Logger) VerifyChainIntegrity(ctx context.Context, clinicID string) (*domain.ChainVerification, error) {
	result := &domain.ChainVerification{
		ClinicID:   clinicID,
		Valid:      true,
		FirstBreak: -1,
		CheckedAt:  l.now().UTC(),
	}
	if !l.hashChain {
		return result, nil
	}

	chain, err := l.store.Chain(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("loading chain for clinic %s: %w", clinicID, err)
	}

	previous := GenesisHash
	for i := range chain {
		e := &chain[i]
		result.EventsChecked++
		if e.PreviousHash != previous || e.EntryHash != ComputeHash(e, previous) {
			result.Valid = false
			result.FirstBreak = i
			result.BrokenEventID = e.ID
			l.log.Error().
				Err(apperrors.ChainIntegrity(i, e.ID)).
				Str("clinic_id", clinicID).
				Msg("audit chain integrity violation")
			return result, nil
		}
		previous = e.EntryHash
	}
	return result, nil
}
