package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/property-service/internal/events"
)

// AuditService writes session lifecycle events to the security audit log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventSessionExpired, a.handleSessionExpired)
	a.dispatcher.Subscribe(events.EventSessionRevoked, a.handleSessionRevoked)
	a.dispatcher.Subscribe(events.EventStoreBypassed, a.handleStoreBypassed)
	a.dispatcher.Subscribe(events.EventSessionsSwept, a.handleSessionsSwept)
}

func (a *AuditService) handleSessionExpired(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.SessionExpiredPayload); ok {
		fields = append(fields, zap.Time("expires_at", payload.ExpiresAt))
	}
	a.logger.Info("SessionExpired", fields...)
	return nil
}

func (a *AuditService) handleSessionRevoked(_ context.Context, event events.Event) error {
	a.logger.Info("SessionRevoked", a.baseFields(event)...)
	return nil
}

func (a *AuditService) handleStoreBypassed(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.StoreBypassedPayload); ok {
		fields = append(fields, zap.String("reason", payload.Reason))
	}
	a.logger.Warn("SessionStoreBypassed", fields...)
	return nil
}

func (a *AuditService) handleSessionsSwept(_ context.Context, event events.Event) error {
	fields := a.baseFields(event)
	if payload, ok := event.Payload.(events.SessionsSweptPayload); ok {
		fields = append(fields,
			zap.Int64("deactivated", payload.Deactivated),
			zap.Int64("deleted", payload.Deleted),
			zap.Bool("failed", payload.Failed))
	}
	a.logger.Info("SessionsSwept", fields...)
	return nil
}

func (a *AuditService) baseFields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Time("at", event.Timestamp),
	}
	if event.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", event.UserID))
	}
	return fields
}
