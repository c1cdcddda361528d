package repository_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func demoClient(id string) *models.Client {
	return &models.Client{
		ID:           id,
		SecretHash:   "$2a$04$hash",
		Name:         "Demo " + id,
		RedirectURIs: []string{"http://localhost:3001/callback"},
		Scopes:       []string{"openid", "profile"},
		GrantTypes:   []string{"authorization_code"},
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func TestMemoryClientRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryClientRepository()

	require.NoError(t, repo.CreateClient(ctx, demoClient("demo-app-1")))
	assert.ErrorIs(t, repo.CreateClient(ctx, demoClient("demo-app-1")), repository.ErrClientExists)

	inactive := demoClient("retired")
	inactive.IsActive = false
	require.NoError(t, repo.CreateClient(ctx, inactive))

	got, err := repo.GetClientByID(ctx, "demo-app-1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", got.SecretHash)

	got.RedirectURIs[0] = "https://evil.example.com"
	again, err := repo.GetClientByID(ctx, "demo-app-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/callback", again.RedirectURIs[0], "callers get copies")

	_, err = repo.GetClientByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrClientNotFound)

	active, err := repo.ListActiveClients(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "demo-app-1", active[0].ID)
}

func TestCacheClientRepository(t *testing.T) {
	ctx := context.Background()
	store := redis.NewMemoryStore(quietLogger())
	t.Cleanup(func() { _ = store.Close() })

	cache := repository.NewCacheClientRepository(store, time.Minute)

	_, err := cache.GetClientByID(ctx, "demo-app-1")
	require.ErrorIs(t, err, redis.ErrCacheMiss)

	require.NoError(t, cache.CreateClient(ctx, demoClient("demo-app-1")))

	got, err := cache.GetClientByID(ctx, "demo-app-1")
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", got.SecretHash, "cache entries keep the secret hash")

	list, err := cache.ListActiveClients(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, cache.Invalidate(ctx, "demo-app-1"))
	_, err = cache.GetClientByID(ctx, "demo-app-1")
	assert.ErrorIs(t, err, redis.ErrCacheMiss)
}

// flakyPrimary fails every call with a connection error while down is set.
type flakyPrimary struct {
	*repository.MemoryClientRepository
	down  bool
	reads int
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")

func (f *flakyPrimary) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	f.reads++
	if f.down {
		return nil, errConnRefused
	}
	return f.MemoryClientRepository.GetClientByID(ctx, id)
}

func (f *flakyPrimary) ListActiveClients(ctx context.Context) ([]*models.Client, error) {
	if f.down {
		return nil, errConnRefused
	}
	return f.MemoryClientRepository.ListActiveClients(ctx)
}

func TestHybridClientRepository_CacheAside(t *testing.T) {
	ctx := context.Background()
	store := redis.NewMemoryStore(quietLogger())
	t.Cleanup(func() { _ = store.Close() })

	primary := &flakyPrimary{MemoryClientRepository: repository.NewMemoryClientRepository()}
	require.NoError(t, primary.MemoryClientRepository.CreateClient(ctx, demoClient("demo-app-1")))

	repo := repository.NewHybridClientRepository(
		primary, repository.NewCacheClientRepository(store, time.Minute), quietLogger(),
	)

	t.Run("miss_reads_primary_and_populates_cache", func(t *testing.T) {
		got, err := repo.GetClientByID(ctx, "demo-app-1")
		require.NoError(t, err)
		assert.Equal(t, "demo-app-1", got.ID)
		assert.Equal(t, 1, primary.reads)

		_, err = repo.GetClientByID(ctx, "demo-app-1")
		require.NoError(t, err)
		assert.Equal(t, 1, primary.reads, "second read is served from cache")
	})

	t.Run("cached_client_survives_primary_outage", func(t *testing.T) {
		primary.down = true
		t.Cleanup(func() { primary.down = false })

		got, err := repo.GetClientByID(ctx, "demo-app-1")
		require.NoError(t, err)
		assert.Equal(t, "demo-app-1", got.ID)

		_, err = repo.GetClientByID(ctx, "uncached")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrClientNotFound)
		assert.False(t, repo.IsPrimaryAvailable())

		list, err := repo.ListActiveClients(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("unknown_client", func(t *testing.T) {
		_, err := repo.GetClientByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrClientNotFound)
		assert.True(t, repo.IsPrimaryAvailable())
	})

	t.Run("create_writes_through", func(t *testing.T) {
		require.NoError(t, repo.CreateClient(ctx, demoClient("demo-app-2")))
		before := primary.reads
		_, err := repo.GetClientByID(ctx, "demo-app-2")
		require.NoError(t, err)
		assert.Equal(t, before, primary.reads)
	})
}

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()

	user := &models.UserWithPassword{
		User: models.User{
			ID:       "2",
			Username: "john.doe",
			Email:    "john.doe@example.com",
			FullName: "John Doe",
			Roles:    []string{"user"},
			IsActive: true,
		},
		PasswordHash: "$2a$04$hash",
	}
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.ErrorIs(t, repo.CreateUser(ctx, user), repository.ErrUserExists)

	got, err := repo.GetUserByUsername(ctx, "John.Doe")
	require.NoError(t, err)
	assert.Equal(t, "2", got.ID)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)

	_, err = repo.GetUserByID(ctx, "99")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "john.doe", users[0].Username)
}
