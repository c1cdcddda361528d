package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/skingford/sso-web/internal/config"
	redisClient "github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/pkg/logger"
)

func testLogger() *logrus.Logger {
	return logger.New("warn", "json", "stdout")
}

// startRedis runs a Redis container for the lifetime of the test and returns
// a connected store.
func startRedis(t *testing.T) *redisClient.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	ctx := context.Background()
	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("Failed to terminate Redis container: %v", termErr)
		}
	})

	connectionString, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		URL:          connectionString,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConn:  2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  300 * time.Second,
	}

	store, err := redisClient.NewClient(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(ctx))
	return store
}
