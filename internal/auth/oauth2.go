// Package auth implements the authorization-code flow: client authentication,
// authorization codes, token minting and refresh, introspection, revocation,
// userinfo and discovery, plus resource-owner sessions and confirmation codes.
package auth

import (
	"context"
	"errors"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/internal/token"
)

const scopeOpenID = "openid"

// Service defines the OAuth2 operations exposed over HTTP.
type Service interface {
	Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResponse, error)
	Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error)
	IntrospectToken(ctx context.Context, req *models.IntrospectionRequest) (*models.IntrospectionResponse, error)
	RevokeToken(ctx context.Context, req *models.RevocationRequest) error
	GetUserInfo(ctx context.Context, accessToken string) (*models.UserInfo, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (*token.Claims, error)
	Discovery() *models.DiscoveryDocument
}

// OAuth2Service implements Service.
type OAuth2Service struct {
	config   *config.Config
	store    redis.Store
	registry *ClientRegistry
	codes    *CodeStore
	tokens   token.Service
	users    repository.UserRepository
	sink     audit.Sink
	logger   *logrus.Logger
	opts     options
}

// NewOAuth2Service creates a new OAuth2 service instance with the provided dependencies.
func NewOAuth2Service(
	cfg *config.Config,
	store redis.Store,
	registry *ClientRegistry,
	codes *CodeStore,
	tokens token.Service,
	users repository.UserRepository,
	sink audit.Sink,
	logger *logrus.Logger,
	opts ...Option,
) *OAuth2Service {
	return &OAuth2Service{
		config:   cfg,
		store:    store,
		registry: registry,
		codes:    codes,
		tokens:   tokens,
		users:    users,
		sink:     sink,
		logger:   logger,
		opts:     newOptions(opts),
	}
}

// Authorize validates an authorization request and issues a code for the
// resource owner carried in req.ResourceOwnerID.
func (s *OAuth2Service) Authorize(
	ctx context.Context,
	req *models.AuthorizeRequest,
) (*models.AuthorizeResponse, error) {
	s.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
		"scope":     req.Scope,
	}).Info("Processing authorization request")

	resp, err := s.authorize(ctx, req)
	status := "issued"
	if err != nil {
		status = "rejected"
	}
	if s.opts.metrics != nil {
		s.opts.metrics.OAuth2AuthRequests.WithLabelValues(req.ClientID, status).Inc()
	}
	return resp, err
}

func (s *OAuth2Service) authorize(
	ctx context.Context,
	req *models.AuthorizeRequest,
) (*models.AuthorizeResponse, error) {
	var errs models.ValidationErrors
	if req.ClientID == "" {
		errs.Add("client_id", "is required")
	}
	if req.RedirectURI == "" {
		errs.Add("redirect_uri", "is required")
	}
	if req.ResponseType == "" {
		errs.Add("response_type", "is required")
	}
	if errs.HasErrors() {
		return nil, errs.First().WithState(req.State)
	}

	scope := req.Scope
	if scope == "" {
		scope = s.config.OAuth2.DefaultScope
	}

	client, err := s.registry.Find(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, models.NewInvalidClient("unknown client").WithState(req.State)
		}
		s.logger.WithError(err).Error("Client lookup failed during authorize")
		return nil, models.NewServerError("client lookup failed")
	}

	// Never redirect to an unregistered URI: the error is shown, not sent.
	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, models.NewInvalidRequest("redirect_uri is not registered for this client").WithState(req.State)
	}

	if req.ResponseType != models.ResponseTypeCode {
		return nil, models.NewUnsupportedResponseType("only the code response type is supported").WithState(req.State)
	}

	if !client.HasGrantType(models.GrantTypeAuthorizationCode) {
		return nil, models.NewUnauthorizedClient("client may not use the authorization_code grant").WithState(req.State)
	}

	scopes := Intersect(ParseScopes(scope), client.Scopes)
	if len(scopes) == 0 {
		return nil, models.NewInvalidScope("none of the requested scopes are allowed for this client").WithState(req.State)
	}

	method, err := s.validatePKCE(req)
	if err != nil {
		return nil, err
	}

	if req.ResourceOwnerID == "" {
		return nil, models.NewAccessDenied("resource owner is not authenticated").WithState(req.State)
	}

	owner, err := s.users.GetUserByID(ctx, req.ResourceOwnerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, models.NewAccessDenied("resource owner is unknown").WithState(req.State)
		}
		s.logger.WithError(err).Error("User lookup failed during authorize")
		return nil, models.NewServerError("user lookup failed")
	}
	if !owner.IsActive {
		return nil, models.NewAccessDenied("resource owner is disabled").WithState(req.State)
	}

	scopes = GrantableFor(scopes, owner.Roles)
	if len(scopes) == 0 {
		return nil, models.NewInvalidScope("none of the requested scopes may be granted to this user").WithState(req.State)
	}

	grant, err := s.codes.Issue(ctx, IssueInput{
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		ResourceOwnerID:     req.ResourceOwnerID,
		Scopes:              scopes,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue authorization code")
		return nil, models.NewServerError("failed to issue authorization code")
	}

	redirectURL, err := buildRedirectURL(req.RedirectURI, grant.Code, req.State)
	if err != nil {
		return nil, models.NewInvalidRequest("redirect_uri is not a valid URL")
	}

	event := audit.NewEvent(models.AuditCodeIssued, true)
	event.Actor = req.ResourceOwnerID
	event.ClientID = client.ID
	event.Details = map[string]interface{}{"scope": JoinScopes(scopes)}
	s.sink.Record(ctx, event)

	return &models.AuthorizeResponse{
		RedirectURL: redirectURL,
		Code:        grant.Code,
		State:       req.State,
	}, nil
}

// validatePKCE checks an optional code challenge and returns the normalized method.
func (s *OAuth2Service) validatePKCE(req *models.AuthorizeRequest) (string, error) {
	if req.CodeChallenge == "" {
		if req.CodeChallengeMethod != "" {
			return "", models.NewInvalidRequest("code_challenge_method without code_challenge").WithState(req.State)
		}
		if s.config.OAuth2.PKCERequired {
			return "", models.NewInvalidRequest("code_challenge is required").WithState(req.State)
		}
		return "", nil
	}

	method := token.NormalizeChallengeMethod(req.CodeChallengeMethod)
	if err := token.ValidateCodeChallenge(req.CodeChallenge, method); err != nil {
		return "", models.NewInvalidRequest(err.Error()).WithState(req.State)
	}
	return method, nil
}

func buildRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Discovery returns the OpenID provider metadata.
func (s *OAuth2Service) Discovery() *models.DiscoveryDocument {
	base := s.tokens.Issuer() + constants.APIBasePath
	return &models.DiscoveryDocument{
		Issuer:                            s.tokens.Issuer(),
		AuthorizationEndpoint:             base + "/oauth2/authorize",
		TokenEndpoint:                     base + "/oauth2/token",
		UserInfoEndpoint:                  base + "/oauth2/userinfo",
		IntrospectionEndpoint:             base + "/oauth2/introspect",
		RevocationEndpoint:                base + "/oauth2/revoke",
		ResponseTypesSupported:            s.config.OAuth2.SupportedResponseTypes,
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{s.tokens.Algorithm()},
		ScopesSupported:                   s.config.OAuth2.SupportedScopes,
		GrantTypesSupported:               s.config.OAuth2.SupportedGrantTypes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic"},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "name", "email", "preferred_username", "picture", "nonce",
		},
		CodeChallengeMethodsSupported: []string{models.CodeChallengeMethodPlain, models.CodeChallengeMethodS256},
	}
}

func (s *OAuth2Service) recordFailure(ctx context.Context, eventType models.AuditEventType, clientID string, err error) {
	event := audit.NewEvent(eventType, false)
	event.ClientID = clientID
	event.Details = map[string]interface{}{"error": err.Error()}
	s.sink.Record(ctx, event)
}
