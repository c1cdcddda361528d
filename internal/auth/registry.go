package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/repository"
)

// ClientRegistry answers questions about registered clients on top of the
// client lookup repository.
type ClientRegistry struct {
	repo   repository.ClientRepository
	logger *logrus.Logger
}

// NewClientRegistry creates a ClientRegistry.
func NewClientRegistry(repo repository.ClientRepository, logger *logrus.Logger) *ClientRegistry {
	return &ClientRegistry{repo: repo, logger: logger}
}

// Find returns an active client. Inactive clients are reported as
// repository.ErrClientNotFound.
func (r *ClientRegistry) Find(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, repository.ErrClientNotFound
	}

	client, err := r.repo.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.IsActive {
		return nil, repository.ErrClientNotFound
	}
	return client, nil
}

// ValidateRedirectURI reports whether uri is registered for the client, by
// exact string comparison.
func (r *ClientRegistry) ValidateRedirectURI(ctx context.Context, clientID, uri string) bool {
	client, err := r.Find(ctx, clientID)
	if err != nil {
		return false
	}
	return client.ValidateRedirectURI(uri)
}

// Authenticate checks the client secret. Unknown clients and wrong secrets
// fail identically with invalid_client.
func (r *ClientRegistry) Authenticate(ctx context.Context, clientID, secret string) (*models.Client, error) {
	client, err := r.Find(ctx, clientID)
	if err != nil {
		if !errors.Is(err, repository.ErrClientNotFound) {
			r.logger.WithError(err).WithField("client_id", clientID).Error("Client lookup failed")
			return nil, models.NewServerError("client lookup failed")
		}
		burnSecretCheck(secret)
		return nil, models.NewInvalidClient("client authentication failed")
	}

	if secret == "" || VerifySecret(client.SecretHash, secret) != nil {
		if secret == "" {
			burnSecretCheck(secret)
		}
		r.logger.WithField("client_id", clientID).Warn("Invalid client credentials")
		return nil, models.NewInvalidClient("client authentication failed")
	}

	return client, nil
}
