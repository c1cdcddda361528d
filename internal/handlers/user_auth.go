package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/pkg/logger"
)

const (
	internalServerError = "Internal server error"
	invalidJSONError    = "Invalid JSON format"
)

// UserAuthHandler serves resource-owner login and the protected sample
// resources.
type UserAuthHandler struct {
	sessions *auth.SessionManager
	users    repository.UserRepository
	config   *config.Config
	logger   *logrus.Logger
}

// ProfileResponse is the caller's own user record plus the token grant it
// was read with.
type ProfileResponse struct {
	User     *models.User `json:"user"`
	ClientID string       `json:"client_id"`
	Scopes   []string     `json:"scopes"`
}

// UserListResponse lists active users.
type UserListResponse struct {
	Total int            `json:"total"`
	Users []*models.User `json:"users"`
}

func NewUserAuthHandler(
	sessions *auth.SessionManager,
	users repository.UserRepository,
	cfg *config.Config,
	logger *logrus.Logger,
) *UserAuthHandler {
	return &UserAuthHandler{
		sessions: sessions,
		users:    users,
		config:   cfg,
		logger:   logger,
	}
}

// Login handles POST /login. On success the session id is set in an
// HttpOnly cookie that the authorize endpoint reads.
func (h *UserAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, h.logger, http.StatusBadRequest, models.ErrorCodeInvalidRequest, invalidJSONError)
		return
	}

	session, user, err := h.sessions.Login(r.Context(), &req, middleware.ClientIP(r, h.config.Security.TrustedProxies))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeMessage(w, h.logger, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password")
		case strings.Contains(err.Error(), "validation failed"):
			writeMessage(w, h.logger, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		default:
			logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Login failed")
			writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
		}
		return
	}

	http.SetCookie(w, h.sessionCookie(session.ID, session.ExpiresAt, int(h.sessions.TTL().Seconds())))
	writeJSON(w, h.logger, http.StatusOK, models.LoginResponse{User: *user, ExpiresAt: session.ExpiresAt})
}

// Logout handles POST /logout and always clears the cookie.
func (h *UserAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	invalidated := false
	if cookie, err := r.Cookie(constants.SessionCookieName); err == nil {
		invalidated, err = h.sessions.Logout(r.Context(), cookie.Value)
		if err != nil {
			logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Logout failed")
			writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
			return
		}
	}

	http.SetCookie(w, h.sessionCookie("", time.Unix(0, 0), -1))
	writeJSON(w, h.logger, http.StatusOK, models.LogoutResponse{
		Message:            "Logged out",
		SessionInvalidated: invalidated,
	})
}

func (h *UserAuthHandler) sessionCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.Security.SecureCookies,
		SameSite: sameSite(h.config.Security.SameSiteCookies),
	}
}

func sameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Profile handles GET /protected/profile for the token subject.
func (h *UserAuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, h.logger, http.StatusUnauthorized, models.ErrorCodeInvalidToken, "missing token claims")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeMessage(w, h.logger, http.StatusNotFound, "not_found", "user not found")
			return
		}
		logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Failed to load profile")
		writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ProfileResponse{
		User:     &user.User,
		ClientID: claims.Client(),
		Scopes:   claims.Scopes(),
	})
}

// ListUsers handles GET /protected/users.
func (h *UserAuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Failed to list users")
		writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	writeJSON(w, h.logger, http.StatusOK, UserListResponse{Total: len(users), Users: users})
}
