package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
)

// DefaultSessionTTL is the lifetime of a login session.
const DefaultSessionTTL = 8 * time.Hour

var (
	// ErrInvalidCredentials covers unknown users, inactive users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound means the session does not exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionManager authenticates resource owners and keeps their login
// sessions in the store. Authorize reads the session to learn who is granting
// access.
type SessionManager struct {
	store  redis.Store
	users  repository.UserRepository
	ttl    time.Duration
	sink   audit.Sink
	logger *logrus.Logger
	opts   options
}

// NewSessionManager creates a SessionManager. A zero ttl uses DefaultSessionTTL.
func NewSessionManager(
	store redis.Store,
	users repository.UserRepository,
	ttl time.Duration,
	sink audit.Sink,
	logger *logrus.Logger,
	opts ...Option,
) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		store:  store,
		users:  users,
		ttl:    ttl,
		sink:   sink,
		logger: logger,
		opts:   newOptions(opts),
	}
}

func sessionKey(id string) string {
	return constants.KeyPrefixSession + id
}

// Login verifies the password and opens a session.
func (m *SessionManager) Login(
	ctx context.Context,
	req *models.LoginRequest,
	ipAddress string,
) (*models.Session, *models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	user, err := m.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, fmt.Errorf("failed to load user: %w", err)
		}
		burnSecretCheck(req.Password)
		m.loginFailed(ctx, req.Username, ipAddress, "unknown user")
		return nil, nil, ErrInvalidCredentials
	}

	if VerifySecret(user.PasswordHash, req.Password) != nil {
		m.loginFailed(ctx, req.Username, ipAddress, "wrong password")
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		m.loginFailed(ctx, req.Username, ipAddress, "inactive user")
		return nil, nil, ErrInvalidCredentials
	}

	now := m.opts.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err = redis.PutJSON(ctx, m.store, sessionKey(session.ID), session, m.ttl); err != nil {
		return nil, nil, fmt.Errorf("failed to store session: %w", err)
	}

	event := audit.NewEvent(models.AuditLoginSucceeded, true)
	event.Actor = user.ID
	event.IPAddress = ipAddress
	m.sink.Record(ctx, event)

	m.logger.WithFields(logrus.Fields{
		"username": user.Username,
		"user_id":  user.ID,
	}).Info("User logged in successfully")

	return session, &user.User, nil
}

func (m *SessionManager) loginFailed(ctx context.Context, username, ipAddress, reason string) {
	event := audit.NewEvent(models.AuditLoginFailed, false)
	event.Actor = username
	event.IPAddress = ipAddress
	event.Details = map[string]interface{}{"reason": reason}
	m.sink.Record(ctx, event)
}

// Lookup returns a live session.
func (m *SessionManager) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	if _, err := redis.GetJSON(ctx, m.store, sessionKey(sessionID), &session); err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if m.opts.now().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, sessionKey(sessionID))
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Logout ends the session and reports whether one existed.
func (m *SessionManager) Logout(ctx context.Context, sessionID string) (bool, error) {
	session, err := m.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	if err = m.store.Delete(ctx, sessionKey(sessionID)); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	event := audit.NewEvent(models.AuditLogout, true)
	event.Actor = session.UserID
	m.sink.Record(ctx, event)
	return true, nil
}

// TTL returns the session lifetime, used for the cookie max-age.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}
