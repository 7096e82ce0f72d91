package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/property-service/internal/domain"
)

// SessionConn is a store connection scoped to a single validation. Release must be
// called exactly once, on every path.
type SessionConn interface {
	FindSession(ctx context.Context, token string, userID int64) (*domain.Session, error)
	Deactivate(ctx context.Context, token string) error
	TouchLastActivity(ctx context.Context, token string, at time.Time) error
	Release()
}

// SessionStore hands out scoped connections from a shared pool.
type SessionStore interface {
	Acquire(ctx context.Context) (SessionConn, error)
}

// SessionSweeper performs the bulk expiry operations used by the reaper.
type SessionSweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository is the Postgres session store. Request traffic and the reaper use
// separate instances built on separately sized pools.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a Postgres-backed implementation.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

var (
	_ SessionStore   = (*SessionRepository)(nil)
	_ SessionSweeper = (*SessionRepository)(nil)
)

var errPoolNotConfigured = errors.New("postgres pool not configured")

// Acquire checks a connection out of the pool.
func (r *SessionRepository) Acquire(ctx context.Context) (SessionConn, error) {
	if r.pool == nil {
		return nil, errPoolNotConfigured
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &sessionConn{conn: conn}, nil
}

// ExpireStale soft-expires every active session whose expiry has passed.
func (r *SessionRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const query = `
        UPDATE user_sessions SET is_active=false
        WHERE expires_at < $1 AND is_active=true`

	if r.pool == nil {
		return 0, errPoolNotConfigured
	}
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// DeleteExpiredBefore hard-deletes sessions that expired before cutoff.
func (r *SessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at < $1`

	if r.pool == nil {
		return 0, errPoolNotConfigured
	}
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

type sessionConn struct {
	conn *pgxpool.Conn
}

func (c *sessionConn) FindSession(ctx context.Context, token string, userID int64) (*domain.Session, error) {
	const query = `
        SELECT s.token, s.user_id, s.is_active, s.expires_at, s.last_activity, s.created_at,
               u.id, u.is_active, COALESCE(r.name, '')
        FROM user_sessions s
        JOIN users u ON u.id = s.user_id
        LEFT JOIN roles r ON r.id = u.role_id
        WHERE s.token=$1 AND s.user_id=$2`

	var session domain.Session
	err := c.conn.QueryRow(ctx, query, token, userID).Scan(
		&session.Token,
		&session.UserID,
		&session.IsActive,
		&session.ExpiresAt,
		&session.LastActivity,
		&session.CreatedAt,
		&session.User.ID,
		&session.User.IsActive,
		&session.User.RoleName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Deactivate is an unconditional idempotent write; racing callers converge on false.
func (c *sessionConn) Deactivate(ctx context.Context, token string) error {
	const query = `UPDATE user_sessions SET is_active=false WHERE token=$1`
	_, err := c.conn.Exec(ctx, query, token)
	return err
}

// TouchLastActivity never moves last_activity backwards.
func (c *sessionConn) TouchLastActivity(ctx context.Context, token string, at time.Time) error {
	const query = `
        UPDATE user_sessions SET last_activity=GREATEST(last_activity, $2)
        WHERE token=$1 AND is_active=true`
	_, err := c.conn.Exec(ctx, query, token, at)
	return err
}

func (c *sessionConn) Release() {
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
	}
}
