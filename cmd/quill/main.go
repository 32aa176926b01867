package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillnote/quill/pkg/api"
	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/auth"
	"github.com/quillnote/quill/pkg/config"
	"github.com/quillnote/quill/pkg/notes"
	"github.com/quillnote/quill/pkg/observability"
	"github.com/quillnote/quill/pkg/rbac"
	"github.com/quillnote/quill/pkg/spaces"
	"github.com/quillnote/quill/pkg/storage/postgres"
	"github.com/quillnote/quill/pkg/topics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", observability.Version).Info("Starting quill server")

	// Database connections: primary for writes, replicas (if any) for
	// note listing and other read paths.
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	db := cm.Primary()

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	// Authorization engine: permission catalog, role store, resolver
	// with an optional binding cache, and the topic visibility overlay.
	catalog, err := rbac.NewCatalog(ctx, db)
	if err != nil {
		logger.WithError(err).Error("Failed to seed permission catalog")
		os.Exit(1)
	}
	rbacStore := rbac.NewStore(db)

	var resolverOpts []rbac.ResolverOption
	if cfg.Access.CacheSize > 0 {
		resolverOpts = append(resolverOpts,
			rbac.WithBindingCache(cfg.Access.CacheSize, cfg.Access.CacheTTL))
	}
	resolver := rbac.NewRolePermissionResolver(rbacStore, catalog, resolverOpts...)

	visibility := rbac.NewTopicVisibility(rbacStore, rbac.VisibilityPolicy{
		AccessLevels: cfg.Access.TopicAccessLevels,
		UserGrants:   cfg.Access.TopicUserGrants,
	})

	var recorder audit.Recorder = audit.NopRecorder{}
	var auditLister api.AuditLister
	if cfg.Observability.AuditEnabled {
		dbRecorder, err := audit.NewDBRecorder(db)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize audit recorder")
			os.Exit(1)
		}
		recorder = dbRecorder
		auditLister = dbRecorder
	}

	authStore := auth.NewStore(db)
	spaceService := spaces.NewService(spaces.NewStore(db), rbacStore, catalog, resolver, visibility, recorder, logger)
	topicService := topics.NewService(topics.NewStore(db), rbacStore, resolver, visibility, recorder, logger)
	noteService := notes.NewService(notes.NewStore(db), rbacStore, resolver, visibility, logger)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Shared by the distributed rate limiter and the health checker.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Error("Invalid redis URL")
			os.Exit(1)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		redisClient = redis.NewClient(opts)
	}

	server := api.NewServer(api.Deps{
		Auth:     authStore,
		Spaces:   spaceService,
		Topics:   topicService,
		Notes:    noteService,
		Resolver: resolver,
		Audit:    auditLister,
		Metrics:  metrics,
		Logger:   logger,
		Redis:    redisClient,
		TokenTTL: cfg.Auth.TokenTTL,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics run on a separate port so probes and scrapes
	// stay reachable even when the API listener is saturated.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return recorder.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return cm.Close()
	})

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}
