package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
)

// ClientCacheTTL bounds how long a cached client survives without a refresh
// from the primary repository.
const ClientCacheTTL = 15 * time.Minute

// CacheClientRepository stores clients in the key-value store under
// auth:client:<id>. It is the cache layer of HybridClientRepository.
type CacheClientRepository struct {
	store redis.Store
	ttl   time.Duration
}

// NewCacheClientRepository creates a store-backed client cache.
func NewCacheClientRepository(store redis.Store, ttl time.Duration) *CacheClientRepository {
	if ttl <= 0 {
		ttl = ClientCacheTTL
	}
	return &CacheClientRepository{store: store, ttl: ttl}
}

func clientCacheKey(clientID string) string {
	return constants.KeyPrefixClientCache + clientID
}

// CreateClient writes the client to the cache, replacing any entry.
func (r *CacheClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	return redis.PutJSON(ctx, r.store, clientCacheKey(client.ID), client.ToCacheEntry(), r.ttl)
}

// GetClientByID returns the cached client, or redis.ErrCacheMiss.
func (r *CacheClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	var entry models.ClientCacheEntry
	if _, err := redis.GetJSON(ctx, r.store, clientCacheKey(clientID), &entry); err != nil {
		return nil, err
	}
	return entry.ToClient(), nil
}

// ListActiveClients returns every cached active client.
func (r *CacheClientRepository) ListActiveClients(ctx context.Context) ([]*models.Client, error) {
	keys, err := r.store.Scan(ctx, constants.KeyPrefixClientCache)
	if err != nil {
		return nil, fmt.Errorf("failed to scan client cache: %w", err)
	}

	clients := make([]*models.Client, 0, len(keys))
	for _, key := range keys {
		var entry models.ClientCacheEntry
		if _, getErr := redis.GetJSON(ctx, r.store, key, &entry); getErr != nil {
			if errors.Is(getErr, redis.ErrCacheMiss) {
				continue
			}
			return nil, getErr
		}
		if entry.IsActive {
			clients = append(clients, entry.ToClient())
		}
	}
	return clients, nil
}

// Invalidate drops the cached client.
func (r *CacheClientRepository) Invalidate(ctx context.Context, clientID string) error {
	return r.store.Delete(ctx, clientCacheKey(clientID))
}
