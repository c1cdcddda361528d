package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/database"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/redis"
)

// Version is stamped at build time with -ldflags "-X ...handlers.Version=...".
var Version = "dev"

// slowCheckThreshold marks a dependency as degraded when its ping is slower.
const slowCheckThreshold = time.Second

// Pinger is an optional backing database.
type Pinger interface {
	Ping(ctx context.Context) error
	IsAvailable() bool
}

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	config    *config.Config
	store     redis.Store
	databases map[string]Pinger
	logger    *logrus.Logger
	metrics   *metrics.Metrics
	startTime time.Time
}

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component has degraded performance.
	StatusDegraded HealthStatus = "degraded"
)

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of an individual component.
type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message,omitempty"`
	LastChecked  time.Time    `json:"last_checked"`
	ResponseTime string       `json:"response_time,omitempty"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// NewHealthHandler creates a new health check handler. databases maps a
// component name ("mysql", "postgres") to its manager; nil entries are skipped.
func NewHealthHandler(
	cfg *config.Config,
	store redis.Store,
	databases map[string]Pinger,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *HealthHandler {
	dbs := make(map[string]Pinger, len(databases))
	for name, db := range databases {
		if db != nil {
			dbs[name] = db
		}
	}
	return &HealthHandler{
		config:    cfg,
		store:     store,
		databases: dbs,
		logger:    logger,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Health provides a comprehensive health check including all components.
// The store is critical; databases and configuration only degrade the service.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	components := make(map[string]ComponentHealth)
	overallStatus := StatusHealthy

	storeHealth := h.checkStorage(ctx)
	components["store"] = storeHealth
	if storeHealth.Status == StatusUnhealthy {
		overallStatus = StatusUnhealthy
	} else if storeHealth.Status == StatusDegraded {
		overallStatus = StatusDegraded
	}

	for name, dbHealth := range h.checkDatabases(ctx) {
		components[name] = dbHealth
		if dbHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	configHealth := h.checkConfiguration()
	components["configuration"] = configHealth
	if configHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	h.metrics.HealthChecksTotal.WithLabelValues("health", string(overallStatus)).Inc()
	for component, health := range components {
		healthValue := float64(0)
		if health.Status == StatusHealthy {
			healthValue = 1
		}
		h.metrics.ComponentHealthStatus.WithLabelValues(component).Set(healthValue)
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, statusCode, HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    Version,
		Uptime:     time.Since(h.startTime).String(),
		Components: components,
	})
}

// Liveness returns 200 while the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	h.metrics.HealthChecksTotal.WithLabelValues("liveness", "healthy").Inc()

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

// Readiness reports whether the service can take traffic. Only the store is
// required; the service runs without its databases.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	components := h.checkDatabases(ctx)
	storeHealth := h.checkStorage(ctx)
	components["store"] = storeHealth
	ready := storeHealth.Status != StatusUnhealthy

	statusLabel := "ready"
	statusCode := http.StatusOK
	if !ready {
		statusLabel = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	h.metrics.HealthChecksTotal.WithLabelValues("readiness", statusLabel).Inc()

	writeJSON(w, h.logger, statusCode, ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	})

	h.logger.WithField("ready", ready).Debug("Readiness check completed")
}

func (h *HealthHandler) checkStorage(ctx context.Context) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, database.HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.Ping(checkCtx)
	duration := time.Since(start)
	storageType := h.getStorageType()

	if err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      storageType + " connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := storageType + " is healthy"
	if duration > slowCheckThreshold {
		status = StatusDegraded
		message = storageType + " response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

func (h *HealthHandler) checkDatabases(ctx context.Context) map[string]ComponentHealth {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]ComponentHealth, len(names))
	for _, name := range names {
		results[name] = h.checkDatabase(ctx, name, h.databases[name])
	}
	return results
}

func (h *HealthHandler) checkDatabase(ctx context.Context, name string, db Pinger) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, database.HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := db.Ping(checkCtx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).WithField("database", name).Debug("Database health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      name + " connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}
	if !db.IsAvailable() {
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      name + " marked as unavailable",
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := name + " is healthy"
	if duration > 2*slowCheckThreshold {
		status = StatusDegraded
		message = name + " response time is slow"
	}
	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

func (h *HealthHandler) getStorageType() string {
	switch h.store.(type) {
	case *redis.Client:
		return "Redis"
	case *redis.MemoryStore:
		return "In-Memory"
	default:
		return "Unknown"
	}
}

func (h *HealthHandler) checkConfiguration() ComponentHealth {
	var issues []string

	if !h.config.JWT.IsAsymmetric() && len(h.config.JWT.Secret) < config.MinJWTSecretLength {
		issues = append(issues, "JWT secret is too short")
	}
	if h.config.JWT.AccessTokenExpiry < time.Minute {
		issues = append(issues, "Access token expiry is too short")
	}
	if h.config.OAuth2.DefaultResourceOwner != "" && !h.config.IsDevelopment() {
		issues = append(issues, "default resource owner is set outside development")
	}

	status := StatusHealthy
	message := "Configuration is valid"
	if len(issues) > 0 {
		status = StatusDegraded
		message = "Configuration issues: " + strings.Join(issues, ", ")
	}

	return ComponentHealth{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}
}
