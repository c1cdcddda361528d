package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/skingford/sso-web/internal/models"
)

// MemoryClientRepository keeps clients in process memory. It backs the
// registry when no MySQL database is configured and is filled from the seed
// file at startup.
type MemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
}

// NewMemoryClientRepository creates an empty in-memory client repository.
func NewMemoryClientRepository() *MemoryClientRepository {
	return &MemoryClientRepository{clients: make(map[string]*models.Client)}
}

// CreateClient stores a copy of client.
func (r *MemoryClientRepository) CreateClient(_ context.Context, client *models.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.ID]; ok {
		return ErrClientExists
	}
	r.clients[client.ID] = cloneClient(client)
	return nil
}

// GetClientByID returns a copy of the client with the given ID.
func (r *MemoryClientRepository) GetClientByID(_ context.Context, clientID string) (*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return cloneClient(client), nil
}

// ListActiveClients returns the active clients ordered by ID.
func (r *MemoryClientRepository) ListActiveClients(_ context.Context) ([]*models.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*models.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.IsActive {
			clients = append(clients, cloneClient(c))
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func cloneClient(c *models.Client) *models.Client {
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.Scopes = append([]string(nil), c.Scopes...)
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	return &out
}
