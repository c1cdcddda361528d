// Package postgres manages the PostgreSQL pool backing the user directory.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/database"
)

// Manager manages the PostgreSQL database connection pool and health monitoring.
type Manager struct {
	cfg     *config.DatabaseConfig
	dsn     string
	logger  *logrus.Logger
	monitor *database.Monitor

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// NewManager creates a PostgreSQL manager. When the database is configured it
// connects immediately and keeps monitoring the pool until ctx is cancelled.
func NewManager(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *Manager {
	m := &Manager{
		cfg:    &cfg.PostgresDatabase,
		dsn:    cfg.PostgresDatabaseDSN(),
		logger: logger,
	}
	m.monitor = database.NewMonitor("postgres", m.cfg.HealthCheckPeriod, m.Ping, m.connect, logger)

	if !cfg.IsPostgresDatabaseConfigured() {
		logger.Info("PostgreSQL database not configured, running without PostgreSQL")
		return m
	}

	err := m.connect(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to PostgreSQL database on startup, will retry periodically")
	}
	m.monitor.SetAvailable(err == nil, err)

	go m.monitor.Run(ctx)
	return m
}

// usersSchema returns the DDL for the users table read by
// repository.PostgresUserRepository.
func (m *Manager) usersSchema() string {
	schema := pgx.Identifier{m.cfg.Schema}.Sanitize()
	table := pgx.Identifier{m.cfg.Schema, "users"}.Sanitize()
	return `CREATE SCHEMA IF NOT EXISTS ` + schema + `;
CREATE TABLE IF NOT EXISTS ` + table + ` (
	user_id       TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT,
	full_name     TEXT,
	picture       TEXT,
	roles         TEXT[] NOT NULL DEFAULT '{}',
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

// connect establishes the database connection pool.
func (m *Manager) connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(m.dsn)
	if err != nil {
		return err
	}

	poolConfig.MaxConns = m.cfg.MaxConn
	poolConfig.MinConns = m.cfg.MinConn
	poolConfig.MaxConnLifetime = m.cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = m.cfg.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = m.cfg.ConnectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return err
	}

	if pingErr := pool.Ping(connectCtx); pingErr != nil {
		pool.Close()
		return pingErr
	}

	if _, schemaErr := pool.Exec(connectCtx, m.usersSchema()); schemaErr != nil {
		pool.Close()
		return fmt.Errorf("failed to ensure users table: %w", schemaErr)
	}

	m.mu.Lock()
	if m.pool != nil {
		m.pool.Close()
	}
	m.pool = pool
	m.mu.Unlock()

	m.logger.Info("Successfully connected to PostgreSQL database")
	return nil
}

// IsAvailable returns true if the database is currently available.
func (m *Manager) IsAvailable() bool {
	return m.monitor.IsAvailable()
}

// Pool returns the database connection pool. Returns nil if database is not available.
func (m *Manager) Pool() *pgxpool.Pool {
	if !m.IsAvailable() {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// Ping checks connectivity of the current pool.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()

	if pool == nil {
		return database.ErrDatabaseUnavailable
	}
	return pool.Ping(ctx)
}

// Close closes the database connection pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	m.monitor.SetAvailable(false, database.ErrDatabaseUnavailable)
}
