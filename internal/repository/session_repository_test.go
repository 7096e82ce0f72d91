package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/property-service/internal/domain"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS roles (id SERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE);
INSERT INTO roles (name) VALUES ('Admin'), ('Manager'), ('Landlord'), ('Tenant') ON CONFLICT (name) DO NOTHING;
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    is_active BOOLEAN NOT NULL DEFAULT true,
    role_id INTEGER REFERENCES roles(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS user_sessions (
    id BIGSERIAL PRIMARY KEY,
    token TEXT NOT NULL UNIQUE,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    is_active BOOLEAN NOT NULL DEFAULT true,
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, role string, active bool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
        INSERT INTO users (email, is_active, role_id)
        VALUES ($1, $2, (SELECT id FROM roles WHERE name=$3))
        RETURNING id`, uuid.NewString()+"@example.test", active, role).Scan(&id)
	require.NoError(t, err)
	return id
}

func insertSession(t *testing.T, pool *pgxpool.Pool, userID int64, expiresAt, lastActivity time.Time) string {
	t.Helper()
	token := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
        INSERT INTO user_sessions (token, user_id, expires_at, last_activity)
        VALUES ($1, $2, $3, $4)`, token, userID, expiresAt, lastActivity)
	require.NoError(t, err)
	return token
}

func TestSessionRepositoryLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	userID := insertUser(t, pool, "Manager", true)
	token := insertSession(t, pool, userID, now.Add(time.Hour), now.Add(-time.Minute))

	conn, err := repo.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	session, err := conn.FindSession(ctx, token, userID)
	require.NoError(t, err)
	assert.True(t, session.IsActive)
	assert.True(t, session.User.IsActive)
	assert.Equal(t, "Manager", session.User.RoleName)

	_, err = conn.FindSession(ctx, token, userID+1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, conn.TouchLastActivity(ctx, token, now))
	require.NoError(t, conn.TouchLastActivity(ctx, token, now.Add(-time.Hour)))
	session, err = conn.FindSession(ctx, token, userID)
	require.NoError(t, err)
	assert.True(t, session.LastActivity.Equal(now), "last_activity must not move backwards")

	require.NoError(t, conn.Deactivate(ctx, token))
	require.NoError(t, conn.Deactivate(ctx, token))
	session, err = conn.FindSession(ctx, token, userID)
	require.NoError(t, err)
	assert.False(t, session.IsActive)
}

func TestSessionRepositoryUserWithoutRole(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	userID := insertUser(t, pool, "NotARole", true)
	token := insertSession(t, pool, userID, time.Now().Add(time.Hour), time.Now())

	conn, err := NewSessionRepository(pool).Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	session, err := conn.FindSession(ctx, token, userID)
	require.NoError(t, err)
	assert.Empty(t, session.User.RoleName)
}

func TestSessionRepositorySweep(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	now := time.Now().UTC()
	cutoff := now.Add(-30 * 24 * time.Hour)

	userID := insertUser(t, pool, "Tenant", true)
	old := insertSession(t, pool, userID, now.Add(-31*24*time.Hour), now)
	recent := insertSession(t, pool, userID, now.Add(-10*24*time.Hour), now)

	expired, err := repo.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, expired, int64(2))

	deleted, err := repo.DeleteExpiredBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	conn, err := repo.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.FindSession(ctx, old, userID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	session, err := conn.FindSession(ctx, recent, userID)
	require.NoError(t, err)
	assert.False(t, session.IsActive)

	expired, err = repo.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestRoleRepositoryListNames(t *testing.T) {
	pool := testPool(t)
	names, err := NewRoleRepository(pool).ListNames(context.Background())
	require.NoError(t, err)
	assert.Subset(t, names, []string{"Admin", "Landlord", "Manager", "Tenant"})
}

func TestSessionRepositoryWithoutPool(t *testing.T) {
	repo := NewSessionRepository(nil)
	_, err := repo.Acquire(context.Background())
	require.Error(t, err)
	_, err = repo.ExpireStale(context.Background(), time.Now())
	require.Error(t, err)
}
