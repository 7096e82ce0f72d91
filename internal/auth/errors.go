package auth

import (
	"errors"
	"net/http"

	apperrors "github.com/spec-kit/property-service/pkg/util"
)

// CredentialKind classifies bearer credential failures.
type CredentialKind int

const (
	CredentialMissing CredentialKind = iota + 1
	CredentialMalformed
	CredentialExpired
	CredentialVerificationFailed
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialMissing:
		return "missing_token"
	case CredentialMalformed:
		return "malformed_token"
	case CredentialExpired:
		return "expired_token"
	case CredentialVerificationFailed:
		return "verification_error"
	default:
		return "unknown"
	}
}

// CredentialError is returned by the verifier. All kinds map to 401.
type CredentialError struct {
	Kind CredentialKind
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return e.Message() + ": " + e.Err.Error()
	}
	return e.Message()
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Is matches any CredentialError of the same kind.
func (e *CredentialError) Is(target error) bool {
	t, ok := target.(*CredentialError)
	return ok && t.Kind == e.Kind
}

func (e *CredentialError) Message() string {
	switch e.Kind {
	case CredentialMissing:
		return "Missing token"
	case CredentialMalformed:
		return "Malformed token"
	case CredentialExpired:
		return "Token expired"
	default:
		return "Token verification failed"
	}
}

func (e *CredentialError) Status() int { return http.StatusUnauthorized }

// SessionKind classifies server-side session failures.
type SessionKind int

const (
	SessionNotFound SessionKind = iota + 1
	SessionDeactivated
	SessionExpired
	SessionAccountDisabled
	SessionStoreUnavailable
)

func (k SessionKind) String() string {
	switch k {
	case SessionNotFound:
		return "session_not_found"
	case SessionDeactivated:
		return "session_deactivated"
	case SessionExpired:
		return "session_expired"
	case SessionAccountDisabled:
		return "account_disabled"
	case SessionStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// SessionError is returned by the session validator.
type SessionError struct {
	Kind SessionKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return e.Message() + ": " + e.Err.Error()
	}
	return e.Message()
}

func (e *SessionError) Unwrap() error { return e.Err }

func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Kind == e.Kind
}

func (e *SessionError) Message() string {
	switch e.Kind {
	case SessionNotFound:
		return "Session not found"
	case SessionDeactivated:
		return "Session deactivated"
	case SessionExpired:
		return "Session expired"
	case SessionAccountDisabled:
		return "Account disabled"
	default:
		return "Session store unavailable"
	}
}

func (e *SessionError) Status() int {
	switch e.Kind {
	case SessionAccountDisabled:
		return http.StatusForbidden
	case SessionStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// AuthorizationKind classifies role gate denials.
type AuthorizationKind int

const (
	AuthorizationNoRole AuthorizationKind = iota + 1
	AuthorizationForbidden
)

func (k AuthorizationKind) String() string {
	switch k {
	case AuthorizationNoRole:
		return "no_role"
	case AuthorizationForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// AuthorizationError is returned by the role gate. All kinds map to 403.
type AuthorizationError struct {
	Kind AuthorizationKind
	Role string
}

func (e *AuthorizationError) Error() string {
	if e.Role != "" {
		return e.Message() + ": role " + e.Role
	}
	return e.Message()
}

func (e *AuthorizationError) Is(target error) bool {
	t, ok := target.(*AuthorizationError)
	return ok && t.Kind == e.Kind
}

func (e *AuthorizationError) Message() string {
	if e.Kind == AuthorizationNoRole {
		return "No role assigned"
	}
	return "Insufficient role"
}

func (e *AuthorizationError) Status() int { return http.StatusForbidden }

// Sentinels for errors.Is comparisons.
var (
	ErrMissingToken       = &CredentialError{Kind: CredentialMissing}
	ErrMalformedToken     = &CredentialError{Kind: CredentialMalformed}
	ErrExpiredToken       = &CredentialError{Kind: CredentialExpired}
	ErrTokenVerification  = &CredentialError{Kind: CredentialVerificationFailed}
	ErrSessionNotFound    = &SessionError{Kind: SessionNotFound}
	ErrSessionDeactivated = &SessionError{Kind: SessionDeactivated}
	ErrSessionExpired     = &SessionError{Kind: SessionExpired}
	ErrAccountDisabled    = &SessionError{Kind: SessionAccountDisabled}
	ErrStoreUnavailable   = &SessionError{Kind: SessionStoreUnavailable}
	ErrNoRole             = &AuthorizationError{Kind: AuthorizationNoRole}
	ErrForbidden          = &AuthorizationError{Kind: AuthorizationForbidden}
)

// rejection is implemented by every error in the taxonomy.
type rejection interface {
	error
	Message() string
	Status() int
}

// RejectionKind returns the metrics/log label of err, or "internal".
func RejectionKind(err error) string {
	var (
		credErr *CredentialError
		sessErr *SessionError
		authErr *AuthorizationError
	)
	switch {
	case errors.As(err, &credErr):
		return credErr.Kind.String()
	case errors.As(err, &sessErr):
		return sessErr.Kind.String()
	case errors.As(err, &authErr):
		return authErr.Kind.String()
	default:
		return "internal"
	}
}

// toDomainError maps a taxonomy error onto the HTTP error envelope.
func toDomainError(err error) error {
	var rej rejection
	if !errors.As(err, &rej) {
		return apperrors.ToDomainError(err)
	}
	switch rej.Status() {
	case http.StatusUnauthorized:
		return apperrors.NewUnauthorized(rej.Message(), err)
	case http.StatusForbidden:
		return apperrors.NewForbidden(rej.Message(), err)
	case http.StatusServiceUnavailable:
		return apperrors.NewServiceUnavailable(rej.Message(), err)
	default:
		return apperrors.NewInternalError(err)
	}
}
