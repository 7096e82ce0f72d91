package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/property-service/internal/events"
	"github.com/spec-kit/property-service/internal/repository"
	apperrors "github.com/spec-kit/property-service/pkg/util"
)

// SessionService handles caller-initiated session changes.
type SessionService struct {
	store   repository.SessionStore
	events  events.Dispatcher
	timeout time.Duration
}

// NewSessionService builds the service. timeout bounds each store round-trip.
func NewSessionService(store repository.SessionStore, dispatcher events.Dispatcher, timeout time.Duration) *SessionService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SessionService{store: store, events: dispatcher, timeout: timeout}
}

// Logout deactivates the caller's session. Repeating it is harmless.
func (s *SessionService) Logout(ctx context.Context, userID int64, token string) error {
	if token == "" {
		return apperrors.NewValidationError("logout requires a session-backed credential")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.timeout)
	conn, err := s.store.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return apperrors.NewServiceUnavailable("Session store unavailable", err)
	}
	defer conn.Release()

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := conn.Deactivate(writeCtx, token); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewServiceUnavailable("Session store unavailable", err)
		}
		return apperrors.NewInternalError(err)
	}

	if s.events != nil {
		// Audit delivery is in-process; handler failures must not undo the logout.
		_ = s.events.Publish(ctx, events.Event{Type: events.EventSessionRevoked, UserID: userID})
	}
	return nil
}
