// Package auth implements the panel's single-admin login with sessions kept
// in bbolt.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"mcpanel/db"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CookieName is the session cookie set on login.
const CookieName = "mcpanel_session"

// DefaultTTL applies when the configured session lifetime is zero.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotConfigured      = errors.New("admin password is not configured")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// Session is one logged-in browser.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether s is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Credentials are the admin account.
type Credentials struct {
	Username string
	Password string
}

// Manager issues and checks sessions.
type Manager struct {
	repo   *db.GenericRepository[*Session]
	creds  Credentials
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewManager stores sessions in bucket.
func NewManager(database db.Database, bucket string, creds Credentials, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:   db.NewGenericRepository[*Session](database, bucket, logger),
		creds:  creds,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// TTL is the lifetime of new sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Login checks the credentials and opens a session. An empty configured
// password disables login.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	if m.creds.Password == "" {
		return nil, ErrNotConfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(m.creds.Password)) == 1
	if !userOK || !passOK {
		m.logger.Warn("Rejected login", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	now := m.now().UTC()
	s := &Session{
		Token:     uuid.New().String(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.Save(ctx, s.Token, s); err != nil {
		return nil, err
	}
	m.logger.Info("Session opened", zap.String("username", username))
	return s, nil
}

// Validate returns the live session for token. Expired sessions are removed.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	s, err := m.repo.Get(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		if err := m.repo.Delete(ctx, token); err != nil {
			m.logger.Warn("Failed to remove expired session", zap.Error(err))
		}
		return nil, ErrInvalidSession
	}
	return s, nil
}

// Logout removes the session. Unknown tokens are ignored.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.repo.Delete(ctx, token)
}

// Purge removes every expired session and returns how many were dropped.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	all, err := m.repo.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	removed := 0
	for token, s := range all {
		if !s.Expired(now) {
			continue
		}
		if err := m.repo.Delete(ctx, token); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
