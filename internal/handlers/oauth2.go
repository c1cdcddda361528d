// Package handlers provides the HTTP surface of the SSO service: the OAuth2
// and OpenID Connect endpoints, resource-owner login, protected sample
// resources, admin endpoints and health checks.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/models"
)

const invalidFormDataError = "invalid form data"

// OAuth2Handler handles all OAuth2-related HTTP requests.
type OAuth2Handler struct {
	svc      auth.Service
	sessions *auth.SessionManager
	config   *config.Config
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewOAuth2Handler creates a new OAuth2 HTTP handler.
func NewOAuth2Handler(
	svc auth.Service,
	sessions *auth.SessionManager,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *OAuth2Handler {
	return &OAuth2Handler{
		svc:      svc,
		sessions: sessions,
		config:   cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Authorize handles GET and POST /oauth2/authorize. The resource owner is
// taken from the login session cookie, falling back to the configured
// development owner. Success redirects with 302, or answers with JSON when
// the caller accepts application/json.
func (h *OAuth2Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, "authorize", models.NewInvalidRequest(invalidFormDataError))
		return
	}

	req := &models.AuthorizeRequest{
		ResponseType:        models.ResponseType(r.FormValue("response_type")),
		ClientID:            r.FormValue("client_id"),
		RedirectURI:         r.FormValue("redirect_uri"),
		Scope:               r.FormValue("scope"),
		State:               r.FormValue("state"),
		Nonce:               r.FormValue("nonce"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: r.FormValue("code_challenge_method"),
		ResourceOwnerID:     h.resourceOwner(r),
	}

	resp, err := h.svc.Authorize(r.Context(), req)
	if err != nil {
		h.fail(w, r, "authorize", err)
		return
	}

	if strings.Contains(r.Header.Get(constants.HeaderAccept), constants.ContentTypeJSON) {
		writeJSON(w, h.logger, http.StatusOK, resp)
		return
	}

	h.logger.WithField("client_id", req.ClientID).Info("Authorization successful, redirecting client")
	http.Redirect(w, r, resp.RedirectURL, http.StatusFound)
}

func (h *OAuth2Handler) resourceOwner(r *http.Request) string {
	if h.sessions != nil {
		if cookie, err := r.Cookie(constants.SessionCookieName); err == nil {
			session, lookupErr := h.sessions.Lookup(r.Context(), cookie.Value)
			if lookupErr == nil {
				return session.UserID
			}
			if !errors.Is(lookupErr, auth.ErrSessionNotFound) {
				h.logger.WithError(lookupErr).Warn("Session lookup failed during authorize")
			}
		}
	}
	return h.config.OAuth2.DefaultResourceOwner
}

// Token handles POST /oauth2/token for the authorization_code and
// refresh_token grants.
func (h *OAuth2Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, "token", models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	req := &models.TokenRequest{
		GrantType:    models.GrantType(r.PostFormValue("grant_type")),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	}

	resp, err := h.svc.Token(r.Context(), req)
	if err != nil {
		h.fail(w, r, "token", err)
		return
	}

	w.Header().Set(constants.HeaderCacheControl, "no-store")
	w.Header().Set(constants.HeaderPragma, "no-cache")
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// IntrospectToken handles GET and POST /oauth2/introspect.
func (h *OAuth2Handler) IntrospectToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, "introspect", models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	resp, err := h.svc.IntrospectToken(r.Context(), &models.IntrospectionRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	})
	if err != nil {
		h.fail(w, r, "introspect", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// RevokeToken handles POST /oauth2/revoke. Unknown tokens still get 200.
func (h *OAuth2Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, "revoke", models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := clientCredentials(r)
	err := h.svc.RevokeToken(r.Context(), &models.RevocationRequest{
		Token:         r.PostFormValue("token"),
		TokenTypeHint: r.PostFormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	})
	if err != nil {
		h.fail(w, r, "revoke", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UserInfo handles GET and POST /oauth2/userinfo. VerifyToken runs first, so
// a bearer token is always present.
func (h *OAuth2Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	tok, ok := middleware.BearerToken(r)
	if !ok {
		h.fail(w, r, "userinfo", models.NewInvalidToken("missing bearer token"))
		return
	}

	info, err := h.svc.GetUserInfo(r.Context(), tok)
	if err != nil {
		h.fail(w, r, "userinfo", err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, info)
}

// Discovery handles GET /.well-known/openid-configuration.
func (h *OAuth2Handler) Discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.svc.Discovery())
}

func (h *OAuth2Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var oauthErr *models.OAuth2Error
	if errors.As(err, &oauthErr) && oauthErr.Code == models.ErrorCodeInvalidToken {
		w.Header().Set(constants.HeaderWWWAuthenticate,
			fmt.Sprintf(`Bearer realm="sso", error=%q, error_description=%q`, oauthErr.Code, oauthErr.Description))
	}
	writeOAuth2Error(w, r, h.logger, h.metrics, endpoint, err)
}

// clientCredentials reads client_secret_basic, falling back to
// client_secret_post. Basic credentials are form-encoded per RFC 6749 2.3.1.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}
