package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/models"
)

func newSessionManager(t *testing.T) (*auth.SessionManager, *fixture) {
	t.Helper()
	f := newFixture(t)
	m := auth.NewSessionManager(f.store, f.users, time.Hour, f.sink, quietLogger(), auth.WithClock(f.clock.Now))
	return m, f
}

func TestSessionManager_Login(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid_credentials", username: "john.doe", password: "user123"},
		{name: "username_is_case_insensitive", username: "  John.Doe ", password: "user123"},
		{name: "wrong_password", username: "john.doe", password: "nope", wantErr: auth.ErrInvalidCredentials},
		{name: "unknown_user", username: "ghost", password: "user123", wantErr: auth.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f := newSessionManager(t)

			session, user, err := m.Login(context.Background(), &models.LoginRequest{
				Username: tt.username,
				Password: tt.password,
			}, "127.0.0.1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, session)
				assert.Equal(t, []models.AuditEventType{models.AuditLoginFailed}, f.sink.types())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, demoUserID, user.ID)
			assert.Equal(t, demoUserID, session.UserID)
			assert.Equal(t, f.clock.Now().Add(time.Hour), session.ExpiresAt)
			assert.Equal(t, []models.AuditEventType{models.AuditLoginSucceeded}, f.sink.types())
		})
	}
}

func TestSessionManager_Login_Validation(t *testing.T) {
	m, _ := newSessionManager(t)

	_, _, err := m.Login(context.Background(), &models.LoginRequest{Username: "john.doe"}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSessionManager_LookupAndLogout(t *testing.T) {
	m, f := newSessionManager(t)
	ctx := context.Background()

	session, _, err := m.Login(ctx, &models.LoginRequest{Username: "john.doe", Password: "user123"}, "")
	require.NoError(t, err)

	got, err := m.Lookup(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, demoUserID, got.UserID)

	_, err = m.Lookup(ctx, "")
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	ended, err := m.Logout(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, ended)

	_, err = m.Lookup(ctx, session.ID)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)

	ended, err = m.Logout(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, ended)

	assert.Contains(t, f.sink.types(), models.AuditLogout)
}

func TestSessionManager_Expiry(t *testing.T) {
	m, f := newSessionManager(t)
	ctx := context.Background()

	session, _, err := m.Login(ctx, &models.LoginRequest{Username: "john.doe", Password: "user123"}, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = m.Lookup(ctx, session.ID)
	require.NoError(t, err, "still valid at the exact expiry instant")

	f.clock.Advance(time.Second)
	_, err = m.Lookup(ctx, session.ID)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
	assert.Equal(t, time.Hour, m.TTL())
}
