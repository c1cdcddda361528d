package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/token"
)

const bearerPrefix = "Bearer "

type claimsKey struct{}

// WithClaims stores verified access token claims on ctx.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims stored by VerifyToken.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return claims, ok && claims != nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(constants.HeaderAuthorization)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	return tok, tok != ""
}

// VerifyToken requires a valid, unrevoked access token and stores its claims
// on the request context.
func (m *Stack) VerifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := BearerToken(r)
		if !ok {
			m.writeAuthError(w, r, models.NewInvalidToken("missing bearer token"))
			return
		}

		claims, err := m.oauth.VerifyAccessToken(r.Context(), tok)
		if err != nil {
			var oauthErr *models.OAuth2Error
			if !errors.As(err, &oauthErr) {
				oauthErr = models.NewServerError("failed to verify token")
			}
			m.writeAuthError(w, r, oauthErr)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireScopes rejects requests whose token lacks any of scopes. It must run
// after VerifyToken.
func (m *Stack) RequireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				m.writeAuthError(w, r, models.NewInvalidToken("missing bearer token"))
				return
			}

			current := claims.Scopes()
			if !auth.HasAll(current, scopes) {
				m.logger.WithFields(logrus.Fields{
					"user_id":  claims.Subject,
					"required": scopes,
					"current":  current,
				}).Warn("Insufficient scope")
				m.writeAuthError(w, r, models.NewInsufficientScope(scopes, current))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Stack) writeAuthError(w http.ResponseWriter, r *http.Request, oauthErr *models.OAuth2Error) {
	challenge := fmt.Sprintf(`Bearer realm=%q, error=%q`, "sso", oauthErr.Code)
	if oauthErr.Description != "" {
		challenge += fmt.Sprintf(`, error_description=%q`, oauthErr.Description)
	}
	if len(oauthErr.RequiredScopes) > 0 {
		challenge += fmt.Sprintf(`, scope=%q`, strings.Join(oauthErr.RequiredScopes, " "))
	}
	w.Header().Set(constants.HeaderWWWAuthenticate, challenge)
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(oauthErr.StatusCode)

	if err := json.NewEncoder(w).Encode(oauthErr); err != nil {
		m.logger.WithError(err).WithField("path", r.URL.Path).Error("Failed to encode auth error response")
	}
}
