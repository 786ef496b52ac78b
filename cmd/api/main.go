package main

import (
	"context"
	"log"

	"medportal/config"
	"medportal/internal/events"
	"medportal/internal/handler"
	"medportal/internal/identity"
	"medportal/internal/ledger"
	"medportal/internal/redis"
	"medportal/internal/repository"
	"medportal/internal/server"
	"medportal/internal/services"
	"medportal/internal/storage"
	ws "medportal/internal/websocket"
	"medportal/pkg/database"
	"medportal/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redis.Ping(ctx, redisClient); err != nil {
		appLogger.Warnf("redis unavailable at startup: %v", err)
	}

	store, err := storage.NewClient(ctx, storage.S3Config{
		Region:     cfg.S3Region,
		Bucket:     cfg.S3Bucket,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Endpoint:   cfg.S3Endpoint,
		PublicBase: cfg.S3PublicBase,
		PresignTTL: cfg.S3PresignTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create object store client: %v", err)
	}

	chain, err := ledger.Open(cfg.LedgerPath, appLogger)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer chain.Close()

	bus := events.NewBus(appLogger)
	cache := redis.NewListCache(redisClient, cfg.ListCacheTTL)
	// Cached lists must be dropped before any dashboard refreshes.
	services.NewCacheInvalidator(cache).Register(bus)

	repo := repository.NewArtifactRepository(db)
	workflow := services.NewArtifactWorkflow(store, chain, repo, bus, services.WorkflowConfig{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		SimulateOnFailure: cfg.SimulateOnFailure,
	}, appLogger)
	artifactService := services.NewArtifactService(repo, cache, workflow, bus, appLogger)
	authService := services.NewAuthService(identity.NewResolver(cfg.DoctorWalletMarkers), cfg)

	limits := redis.DefaultRateLimitConfig()
	limits.CreateLimit = cfg.CreateLimit
	limits.CreateWindow = cfg.CreateWindow
	limiter := redis.NewRateLimiter(redisClient, limits)

	if cfg.SimulateOnFailure && cfg.ReconcileInterval > 0 {
		reconciler := services.NewReconcileWorker(repo, workflow, cfg.ReconcileInterval, appLogger)
		reconciler.Start()
		defer reconciler.Stop()
	}

	hub := ws.NewHub(appLogger)
	go hub.Run(ctx)

	srv := server.New(cfg, appLogger)
	srv.AddHealthCheck("database", func(ctx context.Context) error { return database.HealthCheck(ctx, db) })
	srv.AddHealthCheck("redis", func(ctx context.Context) error { return redis.Ping(ctx, redisClient) })
	srv.AddHealthCheck("object_store", store.Ping)
	srv.AddHealthCheck("ledger", func(context.Context) error {
		_, err := chain.Height()
		return err
	})
	srv.SetupRoutes(&server.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Artifact:  handler.NewArtifactHandler(artifactService, hub, store, cfg.MaxUploadBytes),
		Ledger:    handler.NewLedgerHandler(chain),
		WebSocket: ws.NewHandler(authService, hub, bus, artifactService, appLogger),
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		appLogger.Errorf("server stopped with error: %v", err)
	}
}
