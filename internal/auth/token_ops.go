package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/internal/token"
)

const tokenFailureErrorMsg = "failed to generate or store token"

func refreshGrantKey(jti string) string {
	return constants.KeyPrefixRefreshGrant + jti
}

func revokedTokenKey(jti string) string {
	return constants.KeyPrefixRevokedToken + jti
}

// Token handles the token endpoint for the authorization_code and
// refresh_token grants.
func (s *OAuth2Service) Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error) {
	s.logger.WithFields(logrus.Fields{
		"grant_type": req.GrantType,
		"client_id":  req.ClientID,
	}).Info("Processing token request")

	if req.GrantType == "" {
		return nil, models.NewInvalidRequest("grant_type is required")
	}

	client, err := s.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		if errors.Is(err, models.ErrInvalidClient) {
			s.recordFailure(ctx, models.AuditClientAuthFailed, req.ClientID, err)
		}
		return nil, err
	}

	switch req.GrantType {
	case models.GrantTypeAuthorizationCode, models.GrantTypeRefreshToken:
	default:
		return nil, models.NewUnsupportedGrantType(fmt.Sprintf("grant type %s is not supported", req.GrantType))
	}

	if !client.HasGrantType(req.GrantType) {
		return nil, models.NewUnauthorizedClient(fmt.Sprintf("client is not authorized for the %s grant", req.GrantType))
	}

	if req.GrantType == models.GrantTypeAuthorizationCode {
		return s.handleAuthorizationCodeGrant(ctx, req, client)
	}
	return s.handleRefreshTokenGrant(ctx, req, client)
}

// handleAuthorizationCodeGrant redeems the code and mints the token set.
func (s *OAuth2Service) handleAuthorizationCodeGrant(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.TokenResponse, error) {
	if req.Code == "" {
		return nil, models.NewInvalidRequest("code is required for authorization_code grant")
	}
	if req.RedirectURI == "" {
		return nil, models.NewInvalidRequest("redirect_uri is required for authorization_code grant")
	}

	grant, err := s.codes.Redeem(ctx, req.Code)
	if err != nil {
		var oauthErr *models.OAuth2Error
		switch {
		case errors.Is(err, ErrCodeExpired):
			oauthErr = models.NewInvalidGrant("authorization code expired")
		case errors.Is(err, ErrCodeNotFound):
			oauthErr = models.NewInvalidGrant("invalid authorization code")
		default:
			s.logger.WithError(err).Error("Failed to redeem authorization code")
			return nil, models.NewServerError("failed to redeem authorization code")
		}
		s.recordFailure(ctx, models.AuditCodeRedeemFailed, client.ID, oauthErr)
		return nil, oauthErr
	}

	if grant.ClientID != client.ID {
		return nil, models.NewInvalidGrant("authorization code was issued to another client")
	}
	if grant.RedirectURI != req.RedirectURI {
		return nil, models.NewInvalidGrant("redirect_uri does not match the authorization request")
	}

	if grant.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, models.NewInvalidGrant("code_verifier is required")
		}
		if !token.VerifyCodeChallenge(req.CodeVerifier, grant.CodeChallenge, grant.CodeChallengeMethod) {
			return nil, models.NewInvalidGrant("code_verifier does not match the code challenge")
		}
	}

	access, err := s.tokens.IssueAccessToken(grant.ResourceOwnerID, client.ID, grant.Scopes)
	if err != nil {
		s.logger.WithError(err).Error(tokenFailureErrorMsg)
		return nil, models.NewServerError(tokenFailureErrorMsg)
	}

	refresh, err := s.issueRefreshToken(ctx, grant.ResourceOwnerID, client.ID, grant.Scopes, 0)
	if err != nil {
		s.logger.WithError(err).Error(tokenFailureErrorMsg)
		return nil, models.NewServerError(tokenFailureErrorMsg)
	}

	resp := &models.TokenResponse{
		AccessToken:  access.Token,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    access.ExpiresIn(),
		RefreshToken: refresh.Token,
		Scope:        JoinScopes(grant.Scopes),
	}

	if HasAll(grant.Scopes, []string{scopeOpenID}) {
		idToken, idErr := s.tokens.IssueIDToken(
			grant.ResourceOwnerID, client.ID, s.identity(ctx, grant.ResourceOwnerID), grant.Nonce,
		)
		if idErr != nil {
			s.logger.WithError(idErr).Error("Failed to generate ID token")
			return nil, models.NewServerError(tokenFailureErrorMsg)
		}
		resp.IDToken = idToken.Token
	}

	s.tokenIssued(ctx, models.AuditTokenIssued, models.GrantTypeAuthorizationCode, client.ID, grant.ResourceOwnerID, resp.Scope)
	return resp, nil
}

// handleRefreshTokenGrant exchanges a refresh token for a new access token.
// With rotation enabled the presented refresh token is consumed and a new one
// returned.
func (s *OAuth2Service) handleRefreshTokenGrant(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, models.NewInvalidRequest("refresh_token is required")
	}

	claims, err := s.tokens.VerifyType(req.RefreshToken, token.TypeRefresh)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid refresh token")
	}
	if claims.Client() != client.ID {
		return nil, models.NewInvalidGrant("refresh token was issued to another client")
	}

	var stored models.RefreshGrant
	raw, err := redis.GetJSON(ctx, s.store, refreshGrantKey(claims.ID), &stored)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, models.NewInvalidGrant("refresh token has been revoked")
		}
		s.logger.WithError(err).Error("Failed to load refresh grant")
		return nil, models.NewServerError(tokenFailureErrorMsg)
	}
	if stored.ClientID != client.ID || stored.Subject != claims.Subject {
		return nil, models.NewInvalidGrant("refresh token does not match its grant")
	}

	scopes := stored.Scopes
	if req.Scope != "" {
		requested := ParseScopes(req.Scope)
		if !HasAll(stored.Scopes, requested) {
			return nil, models.NewInvalidScope("requested scopes exceed the original grant")
		}
		scopes = requested
	}

	resp := &models.TokenResponse{TokenType: models.TokenTypeBearer, Scope: JoinScopes(scopes)}

	if s.config.OAuth2.RotateRefreshTokens {
		consumed, delErr := s.store.CompareAndDelete(ctx, refreshGrantKey(claims.ID), raw)
		if delErr != nil {
			s.logger.WithError(delErr).Error("Failed to consume refresh grant")
			return nil, models.NewServerError(tokenFailureErrorMsg)
		}
		if !consumed {
			return nil, models.NewInvalidGrant("refresh token has already been used")
		}

		// The rotated grant keeps the originally granted scopes.
		refresh, issueErr := s.issueRefreshToken(ctx, claims.Subject, client.ID, stored.Scopes, stored.RotationCount+1)
		if issueErr != nil {
			s.logger.WithError(issueErr).Error(tokenFailureErrorMsg)
			return nil, models.NewServerError(tokenFailureErrorMsg)
		}
		resp.RefreshToken = refresh.Token
	} else {
		resp.RefreshToken = req.RefreshToken
	}

	access, err := s.tokens.IssueAccessToken(claims.Subject, client.ID, scopes)
	if err != nil {
		s.logger.WithError(err).Error(tokenFailureErrorMsg)
		return nil, models.NewServerError(tokenFailureErrorMsg)
	}
	resp.AccessToken = access.Token
	resp.ExpiresIn = access.ExpiresIn()

	s.tokenIssued(ctx, models.AuditTokenRefreshed, models.GrantTypeRefreshToken, client.ID, claims.Subject, resp.Scope)
	return resp, nil
}

// issueRefreshToken mints a refresh token and stores the grant it stands for.
func (s *OAuth2Service) issueRefreshToken(
	ctx context.Context,
	subject, clientID string,
	scopes []string,
	rotation int,
) (*token.Issued, error) {
	refresh, err := s.tokens.IssueRefreshToken(subject, clientID)
	if err != nil {
		return nil, err
	}

	grant := &models.RefreshGrant{
		ID:            refresh.Claims.ID,
		ClientID:      clientID,
		Subject:       subject,
		Scopes:        scopes,
		IssuedAt:      refresh.Claims.IssuedAt.Time,
		ExpiresAt:     refresh.ExpiresAt,
		RotationCount: rotation,
	}
	if err = redis.PutJSON(ctx, s.store, refreshGrantKey(grant.ID), grant, s.ttlUntil(refresh.ExpiresAt)); err != nil {
		return nil, fmt.Errorf("failed to store refresh grant: %w", err)
	}
	return refresh, nil
}

func (s *OAuth2Service) tokenIssued(
	ctx context.Context,
	eventType models.AuditEventType,
	grantType models.GrantType,
	clientID, subject, scope string,
) {
	if s.opts.metrics != nil {
		s.opts.metrics.OAuth2TokensIssued.WithLabelValues(string(grantType), clientID).Inc()
	}

	event := audit.NewEvent(eventType, true)
	event.Actor = subject
	event.ClientID = clientID
	event.Details = map[string]interface{}{"grant_type": string(grantType), "scope": scope}
	s.sink.Record(ctx, event)

	s.logger.WithFields(logrus.Fields{
		"client_id":  clientID,
		"user_id":    subject,
		"grant_type": grantType,
		"scope":      scope,
	}).Info("Access token issued successfully")
}

// identity loads the identity claims of an ID token. A missing user yields
// empty claims rather than failing the exchange.
func (s *OAuth2Service) identity(ctx context.Context, userID string) token.Identity {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			s.logger.WithError(err).WithField("user_id", userID).Warn("User lookup failed for ID token")
		}
		return token.Identity{}
	}
	return token.Identity{
		Name:              user.FullName,
		Email:             user.Email,
		PreferredUsername: user.Username,
		Picture:           user.Picture,
	}
}

// VerifyAccessToken verifies an access token and checks the deny-list.
func (s *OAuth2Service) VerifyAccessToken(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.tokens.VerifyType(accessToken, token.TypeAccess)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, models.NewInvalidToken("the access token expired")
		}
		return nil, models.NewInvalidToken("the access token is invalid")
	}

	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to check token deny-list")
		return nil, models.NewServerError("failed to verify token")
	}
	if revoked {
		return nil, models.NewInvalidToken("the access token has been revoked")
	}
	return claims, nil
}

func (s *OAuth2Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := s.store.Get(ctx, revokedTokenKey(jti))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}

// IntrospectToken reports token state to an authenticated client. Invalid,
// expired and revoked tokens are reported as inactive.
func (s *OAuth2Service) IntrospectToken(
	ctx context.Context,
	req *models.IntrospectionRequest,
) (*models.IntrospectionResponse, error) {
	if _, err := s.registry.Authenticate(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	inactive := &models.IntrospectionResponse{Active: false}
	if req.Token == "" {
		return inactive, nil
	}

	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		return inactive, nil
	}

	switch claims.TokenType {
	case token.TypeRefresh:
		if _, getErr := s.store.Get(ctx, refreshGrantKey(claims.ID)); getErr != nil {
			return inactive, nil
		}
	default:
		revoked, revErr := s.isRevoked(ctx, claims.ID)
		if revErr != nil || revoked {
			return inactive, nil
		}
	}

	return &models.IntrospectionResponse{
		Active:    true,
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		Issuer:    claims.Issuer,
		Scope:     claims.Scope,
		ClientID:  claims.Client(),
		TokenType: string(claims.TokenType),
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		JWTID:     claims.ID,
	}, nil
}

// RevokeToken revokes a refresh token by deleting its grant, or an access
// token by deny-listing its jti until expiry. Unknown or foreign tokens are
// ignored.
func (s *OAuth2Service) RevokeToken(ctx context.Context, req *models.RevocationRequest) error {
	client, err := s.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}
	if req.Token == "" {
		return models.NewInvalidRequest("token is required")
	}

	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		s.logger.WithField("client_id", client.ID).Debug("Ignoring revocation of an invalid token")
		return nil
	}
	if claims.Client() != client.ID {
		s.logger.WithField("client_id", client.ID).Warn("Client attempted to revoke a token issued to another client")
		return nil
	}

	switch claims.TokenType {
	case token.TypeRefresh:
		err = s.store.Delete(ctx, refreshGrantKey(claims.ID))
	case token.TypeAccess:
		err = s.store.Put(ctx, revokedTokenKey(claims.ID), []byte(claims.Subject), s.ttlUntil(claims.ExpiresAt.Time))
	default:
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to revoke token")
		return models.NewServerError("failed to revoke token")
	}

	if s.opts.metrics != nil {
		s.opts.metrics.OAuth2TokensRevoked.WithLabelValues(string(claims.TokenType), client.ID).Inc()
	}
	event := audit.NewEvent(models.AuditTokenRevoked, true)
	event.Actor = claims.Subject
	event.ClientID = client.ID
	event.Details = map[string]interface{}{"token_type": string(claims.TokenType)}
	s.sink.Record(ctx, event)

	return nil
}

// GetUserInfo returns the claims about the token subject allowed by its scopes.
func (s *OAuth2Service) GetUserInfo(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	claims, err := s.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &models.UserInfo{Subject: claims.Subject}, nil
		}
		s.logger.WithError(err).Error("Failed to load user for userinfo")
		return nil, models.NewServerError("failed to load user")
	}

	return user.UserInfo(claims.Scopes()), nil
}

// ttlUntil returns the remaining lifetime, at least one second.
func (s *OAuth2Service) ttlUntil(t time.Time) time.Duration {
	ttl := t.Sub(s.opts.now())
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
