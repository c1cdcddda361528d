// Package repository defines interfaces and implementations for data access layers.
// Client and user data are external collaborators of the authorization server:
// they are looked up here, never managed through an HTTP surface.
package repository

import (
	"context"
	"errors"

	"github.com/skingford/sso-web/internal/models"
)

var (
	// ErrClientNotFound is returned when a client does not exist in the repository.
	ErrClientNotFound = errors.New("client not found")
	// ErrClientExists is returned when creating a client whose ID is taken.
	ErrClientExists = errors.New("client already exists")
)

// ClientRepository defines the client lookup service used by the client
// registry. Implementations may use different storage backends (MySQL,
// seed files, the key-value store as a cache). All methods accept a context
// for cancellation and timeout support.
type ClientRepository interface {
	// CreateClient stores a new OAuth2 client. The secret must already be
	// hashed. Returns ErrClientExists when the ID is taken.
	CreateClient(ctx context.Context, client *models.Client) error

	// GetClientByID retrieves a client by its identifier, or ErrClientNotFound.
	GetClientByID(ctx context.Context, clientID string) (*models.Client, error)

	// ListActiveClients retrieves all active clients.
	ListActiveClients(ctx context.Context) ([]*models.Client, error)
}
