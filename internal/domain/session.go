package domain

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by session stores when no row matches (token, user_id).
var ErrSessionNotFound = errors.New("session not found")

// Session is a server-side login session bound to a bearer token.
type Session struct {
	Token        string
	UserID       int64
	IsActive     bool
	ExpiresAt    time.Time
	LastActivity time.Time
	CreatedAt    time.Time
	User         User
}

// ExpiredAt reports whether the session expiry lies strictly before now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
