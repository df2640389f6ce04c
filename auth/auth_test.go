package auth

import (
	"context"
	"testing"
	"time"

	"mcpanel/config"
	"mcpanel/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, password string) (*Manager, *time.Time) {
	t.Helper()
	cfg, err := config.NewConfigBuilder().
		WithDBPath(t.TempDir()).
		WithDBFile("test.db").
		WithBucket("test").
		Build()
	require.NoError(t, err)

	database, err := db.NewBoltDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := NewManager(database, database.Bucket(db.SessionsBucket), Credentials{Username: "admin", Password: password}, time.Hour, nil)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestLogin(t *testing.T) {
	m, _ := newTestManager(t, "s3cret")
	ctx := context.Background()

	_, err := m.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.Login(ctx, "root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	s, err := m.Login(ctx, "admin", "s3cret")
	require.NoError(t, err)
	assert.Len(t, s.Token, 36)
	assert.Equal(t, time.Hour, s.ExpiresAt.Sub(s.CreatedAt))

	got, err := m.Validate(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Username)
}

func TestLogin_NoPassword(t *testing.T) {
	m, _ := newTestManager(t, "")
	_, err := m.Login(context.Background(), "admin", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestValidate(t *testing.T) {
	m, clock := newTestManager(t, "pw")
	ctx := context.Background()

	_, err := m.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = m.Validate(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvalidSession)

	s, err := m.Login(ctx, "admin", "pw")
	require.NoError(t, err)

	*clock = clock.Add(2 * time.Hour)
	_, err = m.Validate(ctx, s.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	*clock = clock.Add(-2 * time.Hour)
	_, err = m.Validate(ctx, s.Token)
	assert.ErrorIs(t, err, ErrInvalidSession, "expired session is deleted on first check")
}

func TestLogoutAndPurge(t *testing.T) {
	m, clock := newTestManager(t, "pw")
	ctx := context.Background()

	a, err := m.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	require.NoError(t, m.Logout(ctx, a.Token))
	_, err = m.Validate(ctx, a.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.NoError(t, m.Logout(ctx, ""))

	_, err = m.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	*clock = clock.Add(30 * time.Minute)
	live, err := m.Login(ctx, "admin", "pw")
	require.NoError(t, err)

	*clock = clock.Add(45 * time.Minute)
	removed, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.Validate(ctx, live.Token)
	assert.NoError(t, err)
}
