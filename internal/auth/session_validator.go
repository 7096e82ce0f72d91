package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/property-service/internal/domain"
	"github.com/spec-kit/property-service/internal/events"
	"github.com/spec-kit/property-service/internal/repository"
)

// StoreFailurePolicy decides what happens when the session store cannot answer.
type StoreFailurePolicy int

const (
	// StoreFailClosed rejects the request with 503.
	StoreFailClosed StoreFailurePolicy = iota + 1
	// StoreFailOpen skips session validation and authorizes on token claims alone.
	StoreFailOpen
)

// ParseStoreFailurePolicy accepts "open" or "closed". There is no default.
func ParseStoreFailurePolicy(value string) (StoreFailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "open":
		return StoreFailOpen, nil
	case "closed":
		return StoreFailClosed, nil
	default:
		return 0, fmt.Errorf("store failure policy must be \"open\" or \"closed\", got %q", value)
	}
}

func (p StoreFailurePolicy) String() string {
	switch p {
	case StoreFailOpen:
		return "open"
	case StoreFailClosed:
		return "closed"
	default:
		return "unset"
	}
}

// SessionGrant is the result of a successful validation.
type SessionGrant struct {
	Role    domain.Role
	Session *domain.Session
	// Bypassed is set when the store failed and the fail-open policy applied.
	Bypassed bool
}

// ValidatorConfig configures a SessionValidator.
type ValidatorConfig struct {
	Policy  StoreFailurePolicy
	Timeout time.Duration
	Now     func() time.Time
}

// SessionValidator checks server-side session state for verified tokens.
type SessionValidator struct {
	store   repository.SessionStore
	policy  StoreFailurePolicy
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
	events  events.Dispatcher
}

// NewSessionValidator builds a validator. The policy must be set explicitly.
func NewSessionValidator(store repository.SessionStore, cfg ValidatorConfig, logger *zap.Logger, dispatcher events.Dispatcher) (*SessionValidator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Policy != StoreFailOpen && cfg.Policy != StoreFailClosed {
		return nil, errors.New("store failure policy must be configured")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("store timeout must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionValidator{
		store:   store,
		policy:  cfg.Policy,
		timeout: cfg.Timeout,
		now:     cfg.Now,
		logger:  logger,
		events:  dispatcher,
	}, nil
}

// Policy returns the configured store failure policy.
func (v *SessionValidator) Policy() StoreFailurePolicy {
	return v.policy
}

// Validate evaluates, in order: not found, deactivated, expired, account disabled, valid.
// An expired session is deactivated before the rejection is returned.
func (v *SessionValidator) Validate(ctx context.Context, token string, userID int64) (SessionGrant, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, v.timeout)
	conn, err := v.store.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return v.storeFailure(ctx, userID, "acquire", err)
	}
	defer conn.Release()

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	session, err := conn.FindSession(lookupCtx, token, userID)
	cancel()
	if errors.Is(err, domain.ErrSessionNotFound) {
		return SessionGrant{}, &SessionError{Kind: SessionNotFound}
	}
	if err != nil {
		return v.storeFailure(ctx, userID, "lookup", err)
	}

	if !session.IsActive {
		return SessionGrant{}, &SessionError{Kind: SessionDeactivated}
	}

	now := v.now()
	if session.ExpiredAt(now) {
		v.deactivate(ctx, conn, session)
		return SessionGrant{}, &SessionError{Kind: SessionExpired, Err: fmt.Errorf("expired at %s", session.ExpiresAt.UTC().Format(time.RFC3339))}
	}

	if !session.User.IsActive {
		return SessionGrant{}, &SessionError{Kind: SessionAccountDisabled}
	}

	role, ok := domain.ParseRole(session.User.RoleName)
	if !ok && session.User.RoleName != "" {
		v.logger.Warn("session user has unsupported role",
			zap.Int64("user_id", userID),
			zap.String("role", session.User.RoleName))
	}

	v.touch(ctx, conn, token, userID, now)
	return SessionGrant{Role: role, Session: session}, nil
}

// storeFailure applies the configured policy. A cancelled request never fails open.
func (v *SessionValidator) storeFailure(ctx context.Context, userID int64, op string, err error) (SessionGrant, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return SessionGrant{}, ctxErr
	}
	if v.policy == StoreFailOpen {
		v.logger.Warn("session store unavailable; authorizing on token claims",
			zap.String("op", op),
			zap.Int64("user_id", userID),
			zap.Error(err))
		v.publish(ctx, events.Event{
			Type:    events.EventStoreBypassed,
			UserID:  userID,
			Payload: events.StoreBypassedPayload{Reason: op + ": " + err.Error()},
		})
		return SessionGrant{Bypassed: true}, nil
	}
	v.logger.Error("session store unavailable", zap.String("op", op), zap.Error(err))
	return SessionGrant{}, &SessionError{Kind: SessionStoreUnavailable, Err: fmt.Errorf("%s: %w", op, err)}
}

// deactivate persists is_active=false. Concurrent identical writes are harmless.
func (v *SessionValidator) deactivate(ctx context.Context, conn repository.SessionConn, session *domain.Session) {
	writeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if err := conn.Deactivate(writeCtx, session.Token); err != nil {
		v.logger.Warn("failed to deactivate expired session",
			zap.Int64("user_id", session.UserID),
			zap.Error(err))
		return
	}
	v.publish(ctx, events.Event{
		Type:    events.EventSessionExpired,
		UserID:  session.UserID,
		Payload: events.SessionExpiredPayload{ExpiresAt: session.ExpiresAt},
	})
}

// touch is best-effort; errors never fail the request.
func (v *SessionValidator) touch(ctx context.Context, conn repository.SessionConn, token string, userID int64, at time.Time) {
	writeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if err := conn.TouchLastActivity(writeCtx, token, at); err != nil {
		v.logger.Debug("failed to touch session activity", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (v *SessionValidator) publish(ctx context.Context, event events.Event) {
	if v.events == nil {
		return
	}
	if err := v.events.Publish(ctx, event); err != nil {
		v.logger.Warn("session event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
