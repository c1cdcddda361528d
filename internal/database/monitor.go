// Package database holds the connection managers for the optional SQL
// backends: MySQL for the client registry and PostgreSQL for the user
// directory. Both degrade gracefully: the service keeps running on its seeded
// in-memory repositories while a database is unreachable.
package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthCheckTimeout bounds a single connectivity probe.
const HealthCheckTimeout = 5 * time.Second

// ErrDatabaseUnavailable is returned when database operations are attempted while database is unavailable.
var ErrDatabaseUnavailable = errors.New("database is not available")

// Monitor tracks the availability of one database connection. It pings on a
// fixed period and calls reconnect whenever the ping fails.
type Monitor struct {
	name      string
	period    time.Duration
	ping      func(ctx context.Context) error
	reconnect func(ctx context.Context) error
	logger    *logrus.Logger

	mu        sync.RWMutex
	available bool
}

// NewMonitor creates a monitor. ping must return an error when no connection
// exists yet.
func NewMonitor(
	name string,
	period time.Duration,
	ping func(ctx context.Context) error,
	reconnect func(ctx context.Context) error,
	logger *logrus.Logger,
) *Monitor {
	return &Monitor{
		name:      name,
		period:    period,
		ping:      ping,
		reconnect: reconnect,
		logger:    logger,
	}
}

// Run checks health until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one probe, reconnecting on failure.
func (m *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := m.ping(probeCtx)
	if err != nil {
		err = m.reconnect(probeCtx)
	}
	m.SetAvailable(err == nil, err)
}

// SetAvailable records the connection state and logs transitions.
func (m *Monitor) SetAvailable(available bool, cause error) {
	m.mu.Lock()
	was := m.available
	m.available = available
	m.mu.Unlock()

	entry := m.logger.WithField("database", m.name)
	switch {
	case was && !available:
		entry.WithError(cause).Warn("Database connection lost, attempting reconnection")
	case !was && available:
		entry.Info("Database connection available")
	case !available:
		entry.WithError(cause).Debug("Database reconnection attempt failed")
	}
}

// IsAvailable returns true if the database is currently available.
func (m *Monitor) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}
