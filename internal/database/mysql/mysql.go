// Package mysql manages the MySQL connection pool backing the client registry.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/database"
)

// clientsSchema creates the oauth2_clients table read by
// repository.MySQLClientRepository.
const clientsSchema = `
CREATE TABLE IF NOT EXISTS oauth2_clients (
	client_id          VARCHAR(128) NOT NULL PRIMARY KEY,
	client_secret_hash VARCHAR(255) NOT NULL,
	client_name        VARCHAR(255) NOT NULL,
	grant_types        JSON         NOT NULL,
	scopes             JSON         NOT NULL,
	redirect_uris      JSON         NULL,
	is_active          BOOLEAN      NOT NULL DEFAULT TRUE,
	created_at         DATETIME(6)  NOT NULL,
	updated_at         DATETIME(6)  NOT NULL,
	metadata           JSON         NULL
)`

// Manager manages the MySQL database connection pool and health monitoring.
type Manager struct {
	cfg     *config.MySQLConfig
	logger  *logrus.Logger
	monitor *database.Monitor

	mu sync.RWMutex
	db *sql.DB
}

// NewManager creates a MySQL manager. When the database is configured it
// connects immediately and keeps monitoring the connection until ctx is
// cancelled; a failed first connection is retried by the monitor.
func NewManager(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *Manager {
	m := &Manager{cfg: &cfg.MySQLDatabase, logger: logger}
	m.monitor = database.NewMonitor("mysql", m.cfg.HealthCheckPeriod, m.Ping, m.connect, logger)

	if !cfg.IsMySQLDatabaseConfigured() {
		logger.Info("MySQL database not configured, running without MySQL")
		return m
	}

	err := m.connect(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to MySQL database on startup, will retry periodically")
	}
	m.monitor.SetAvailable(err == nil, err)

	go m.monitor.Run(ctx)
	return m
}

// DSN builds the driver connection string.
func (m *Manager) DSN() string {
	dsn := mysql.NewConfig()
	dsn.User = m.cfg.User
	dsn.Passwd = m.cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	dsn.DBName = m.cfg.Database
	dsn.ParseTime = true
	dsn.Timeout = m.cfg.ConnectTimeout
	return dsn.FormatDSN()
}

// connect establishes the database connection pool.
func (m *Manager) connect(ctx context.Context) error {
	db, err := sql.Open("mysql", m.DSN())
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(m.cfg.MaxConn)
	db.SetMaxIdleConns(m.cfg.MinConn)
	db.SetConnMaxLifetime(m.cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(m.cfg.MaxConnIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return pingErr
	}

	if _, schemaErr := db.ExecContext(pingCtx, clientsSchema); schemaErr != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ensure oauth2_clients table: %w", schemaErr)
	}

	m.mu.Lock()
	if m.db != nil {
		_ = m.db.Close()
	}
	m.db = db
	m.mu.Unlock()

	m.logger.Info("Successfully connected to MySQL database")
	return nil
}

// IsAvailable returns true if the database is currently available.
func (m *Manager) IsAvailable() bool {
	return m.monitor.IsAvailable()
}

// DB returns the database connection. Returns nil if database is not available.
func (m *Manager) DB() *sql.DB {
	if !m.IsAvailable() {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Ping checks connectivity of the current pool.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	db := m.db
	m.mu.RUnlock()

	if db == nil {
		return database.ErrDatabaseUnavailable
	}
	return db.PingContext(ctx)
}

// Close closes the database connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		_ = m.db.Close()
		m.db = nil
	}
	m.monitor.SetAvailable(false, database.ErrDatabaseUnavailable)
}
