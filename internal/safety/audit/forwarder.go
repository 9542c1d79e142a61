package audit

import (
	"context"

	"github.com/medrelay/safety-service/internal/safety/domain"
	"github.com/medrelay/safety-service/pkg/logger"
	"github.com/medrelay/safety-service/pkg/messaging"
)

type eventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// SIEMForwarder pushes committed audit events onto the safety audit exchange
// for external security monitoring. Crisis escalations get their own routing
// key so monitoring can alert on them directly.
type SIEMForwarder struct {
	publisher eventPublisher
	log       *logger.Logger
}

// NewSIEMForwarder creates a forwarder over the given publisher.
func NewSIEMForwarder(pub *messaging.Publisher, log *logger.Logger) *SIEMForwarder {
	return &SIEMForwarder{
		publisher: pub,
		log:       log.WithComponent("siem_forwarder"),
	}
}

// Forward publishes the event to the audit exchange.
func (f *SIEMForwarder) Forward(ctx context.Context, event *domain.AuditEvent) error {
	routingKey := messaging.EventAuditLogged
	if event.EventType == domain.EventCrisisEscalated {
		routingKey = messaging.EventCrisisEscalated
	}
	return f.publisher.Publish(ctx, routingKey, event)
}

// ForwardChainResult publishes the outcome of a chain integrity check.
func (f *SIEMForwarder) ForwardChainResult(ctx context.Context, result *domain.ChainVerification) error {
	routingKey := messaging.EventChainVerified
	if !result.Valid {
		routingKey = messaging.EventChainCompromised
	}
	return f.publisher.Publish(ctx, routingKey, result)
}
