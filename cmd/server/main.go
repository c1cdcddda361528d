// Package main provides the entry point for the SSO authorization service.
// It initializes all dependencies, sets up HTTP routes with middleware,
// and runs the server and background workers until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/client"
	"github.com/skingford/sso-web/internal/client/auditlog"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/database/mysql"
	"github.com/skingford/sso-web/internal/database/postgres"
	"github.com/skingford/sso-web/internal/handlers"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/ratelimit"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/repository"
	"github.com/skingford/sso-web/internal/startup"
	"github.com/skingford/sso-web/internal/sweeper"
	"github.com/skingford/sso-web/internal/token"
	"github.com/skingford/sso-web/pkg/logger"
)

const auditSource = "sso-web"

func main() {
	// .env.local is only read in development (GO_ENV unset or "development").
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithConfig(&cfg.Logging)
	log.WithFields(logrus.Fields{
		"version":     handlers.Version,
		"environment": cfg.Environment.Environment,
		"port":        cfg.Server.Port,
		"host":        cfg.Server.Host,
		"tls":         cfg.IsTLSEnabled(),
	}).Info("Starting SSO authorization service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("Service stopped with error")
		os.Exit(1)
	}
	log.Info("Service exited gracefully")
}

// app holds everything run needs to serve and shut down.
type app struct {
	server    *http.Server
	store     redis.Store
	sweeper   *sweeper.Sweeper
	forwarder *audit.Forwarder
	mysql     *mysql.Manager
	postgres  *postgres.Manager
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeAll(a, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return startServer(a.server, cfg, log) })
	g.Go(func() error { return a.sweeper.Run(gctx) })
	if a.forwarder != nil {
		g.Go(func() error { return a.forwarder.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
		}
		return nil
	})

	return g.Wait()
}

func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	m := metrics.New(prometheus.DefaultRegisterer)

	store, redisClient := initializeStore(cfg, log)

	mysqlMgr := mysql.NewManager(ctx, cfg, log)
	pgMgr := postgres.NewManager(ctx, cfg, log)

	var primaryClients repository.ClientRepository = repository.NewMemoryClientRepository()
	if cfg.IsMySQLDatabaseConfigured() {
		primaryClients = repository.NewMySQLClientRepository(mysqlMgr.DB)
	}
	clients := repository.NewHybridClientRepository(
		primaryClients, repository.NewCacheClientRepository(store, repository.ClientCacheTTL), log,
	)

	var users repository.UserRepository = repository.NewMemoryUserRepository()
	if cfg.IsPostgresDatabaseConfigured() {
		users = repository.NewPostgresUserRepository(pgMgr.Pool, cfg.PostgresDatabase.Schema)
	}

	seeder := startup.NewSeeder(cfg.Seed, primaryClients, users, 0, log)
	if _, seedErr := seeder.Seed(ctx); seedErr != nil {
		log.WithError(seedErr).Error("Failed to load seed data")
	}

	sink, forwarder := initializeAudit(cfg, m, log)

	key, err := token.LoadSigningKey(&cfg.JWT)
	if err != nil {
		closeAll(&app{store: store, mysql: mysqlMgr, postgres: pgMgr}, log)
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	tokens := token.NewJWTService(&cfg.JWT, key)

	withMetrics := auth.WithMetrics(m)
	registry := auth.NewClientRegistry(clients, log)
	codes := auth.NewCodeStore(store, cfg.OAuth2.AuthorizationCodeExpiry, log, withMetrics)
	oauth := auth.NewOAuth2Service(cfg, store, registry, codes, tokens, users, sink, log, withMetrics)
	sessions := auth.NewSessionManager(store, users, cfg.OAuth2.SessionExpiry, sink, log, withMetrics)
	confirmations := auth.NewConfirmationCodes(store, cfg.OAuth2.ConfirmationCodeExpiry, sink, log, withMetrics)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimits, sink, log, ratelimit.WithMetrics(m))

	databases := map[string]handlers.Pinger{}
	if cfg.IsMySQLDatabaseConfigured() {
		databases["mysql"] = mysqlMgr
	}
	if cfg.IsPostgresDatabaseConfigured() {
		databases["postgres"] = pgMgr
	}

	stack := middleware.NewStack(cfg, oauth, sessions, limiter, redisClient, m, log)
	router := handlers.NewRouter(handlers.Routes{
		Stack:   stack,
		OAuth2:  handlers.NewOAuth2Handler(oauth, sessions, cfg, m, log),
		Users:   handlers.NewUserAuthHandler(sessions, users, cfg, log),
		Admin:   handlers.NewAdminHandler(confirmations, limiter, cfg, log),
		Health:  handlers.NewHealthHandler(cfg, store, databases, m, log),
		Metrics: promhttp.Handler(),
	})

	sw := sweeper.New(cfg.OAuth2.SweepInterval, m, log,
		sweeper.Task{Kind: "auth_code", Sweep: codes.Sweep},
		sweeper.Task{Kind: "confirmation_code", Sweep: confirmations.Sweep},
		sweeper.Task{Kind: "rate_limit", Sweep: limiter.Sweep},
	)

	return &app{
		server: &http.Server{
			Addr:         cfg.ServerAddr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		store:     store,
		sweeper:   sw,
		forwarder: forwarder,
		mysql:     mysqlMgr,
		postgres:  pgMgr,
	}, nil
}

// initializeStore connects to Redis, falling back to the in-memory store.
// The raw client is returned for the flood guard and is nil on fallback.
func initializeStore(cfg *config.Config, log *logrus.Logger) (redis.Store, *goredis.Client) {
	redisStore, err := redis.NewClient(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, falling back to in-memory store")
		log.Warn("Note: In-memory store will not persist data between restarts or share it across replicas")
		return redis.NewMemoryStore(log), nil
	}

	log.Info("Successfully connected to Redis store")
	return redisStore, redisStore.GetRedisClient()
}

// initializeAudit always logs audit events and, when enabled, also forwards
// them to the audit-log service.
func initializeAudit(cfg *config.Config, m *metrics.Metrics, log *logrus.Logger) (audit.Sink, *audit.Forwarder) {
	sinks := audit.Multi{audit.NewLogSink(log)}
	if !cfg.Audit.ForwardEnabled {
		return sinks, nil
	}

	urls := cfg.GetServiceURLs()
	base := client.NewBaseClient(urls.AuditServiceBaseURL, cfg.Audit.Timeout, log)
	oauthClient := client.NewOAuth2Client(base,
		cfg.AuthServiceClient.ClientID, cfg.AuthServiceClient.ClientSecret, urls.AuditTokenURL, "audit:write")
	forwarder := audit.NewForwarder(auditlog.NewClient(oauthClient, auditSource, log), cfg.Audit.QueueSize, log, m)

	log.WithField("audit_url", urls.AuditServiceBaseURL).Info("Audit event forwarding enabled")
	return append(sinks, forwarder), forwarder
}

func startServer(server *http.Server, cfg *config.Config, log *logrus.Logger) error {
	log.WithFields(logrus.Fields{
		"addr": server.Addr,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting HTTP server")

	var err error
	if cfg.IsTLSEnabled() {
		err = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func closeAll(a *app, log *logrus.Logger) {
	closeStore(a.store, log)
	a.mysql.Close()
	a.postgres.Close()
	log.Info("Database connections closed")
}

func closeStore(store redis.Store, log *logrus.Logger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Error("Failed to close store connection")
	}
}
