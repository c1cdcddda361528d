package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
)

// HybridClientRepository implements ClientRepository with a primary store
// (MySQL, or the seeded memory repository) and the key-value store as cache.
// This repository follows the cache-aside pattern:
//   - Reads: Check cache first, on miss read from the primary and populate cache
//   - Writes: Write to the primary first (source of truth), then update cache
//   - Graceful degradation: Serves cached clients while the primary is unreachable
//
// Thread-safe for concurrent operations.
type HybridClientRepository struct {
	primary ClientRepository
	cache   *CacheClientRepository
	logger  *logrus.Logger

	// State tracking for graceful degradation
	primaryAvailable bool
	mu               sync.RWMutex
}

// NewHybridClientRepository creates a new hybrid client repository.
func NewHybridClientRepository(
	primary ClientRepository,
	cache *CacheClientRepository,
	logger *logrus.Logger,
) *HybridClientRepository {
	return &HybridClientRepository{
		primary:          primary,
		cache:            cache,
		logger:           logger,
		primaryAvailable: true,
	}
}

// CreateClient stores a new client in the primary and then in the cache.
func (r *HybridClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	if err := r.primary.CreateClient(ctx, client); err != nil {
		if isConnectionError(err) {
			r.setPrimaryAvailable(false)
		}
		return err
	}
	r.setPrimaryAvailable(true)

	if cacheErr := r.cache.CreateClient(ctx, client); cacheErr != nil {
		r.logger.WithError(cacheErr).WithField("client_id", client.ID).Warn("Failed to cache client after create")
	}
	return nil
}

// GetClientByID reads through the cache. A cached client is served even while
// the primary is down; a miss while the primary is down surfaces the
// connection error rather than ErrClientNotFound.
func (r *HybridClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := r.cache.GetClientByID(ctx, clientID)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		r.logger.WithError(err).WithField("client_id", clientID).Debug("Cache error during GetClientByID")
	}

	client, err = r.primary.GetClientByID(ctx, clientID)
	connErr := isConnectionError(err)
	r.setPrimaryAvailable(!connErr)
	if err != nil {
		if connErr {
			r.logger.WithError(err).WithField("client_id", clientID).Warn("Primary client store unavailable")
		}
		return nil, err
	}

	if cacheErr := r.cache.CreateClient(ctx, client); cacheErr != nil {
		r.logger.WithError(cacheErr).WithField("client_id", clientID).Debug("Failed to populate client cache")
	}

	return client, nil
}

// ListActiveClients lists from the primary, falling back to the cache.
func (r *HybridClientRepository) ListActiveClients(ctx context.Context) ([]*models.Client, error) {
	clients, err := r.primary.ListActiveClients(ctx)
	if err == nil {
		r.setPrimaryAvailable(true)
		return clients, nil
	}
	if !isConnectionError(err) {
		return nil, err
	}

	r.setPrimaryAvailable(false)
	r.logger.WithError(err).Warn("Primary client store unavailable, listing cached clients")
	return r.cache.ListActiveClients(ctx)
}

// IsPrimaryAvailable returns the last observed availability of the primary.
func (r *HybridClientRepository) IsPrimaryAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primaryAvailable
}

func (r *HybridClientRepository) setPrimaryAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.primaryAvailable != available {
		r.logger.WithField("available", available).Info("Primary client store availability changed")
	}
	r.primaryAvailable = available
}

// isConnectionError determines if an error is a connection/availability error vs business logic error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errDBUnavailable) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	for _, marker := range []string{"connection refused", "connection reset", "no such host", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
