package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-dashboard/config"
	"trade-dashboard/internal/admin"
	"trade-dashboard/internal/analytics"
	"trade-dashboard/internal/api"
	"trade-dashboard/internal/auth"
	"trade-dashboard/internal/cache"
	"trade-dashboard/internal/dashboard"
	"trade-dashboard/internal/database"
	"trade-dashboard/internal/events"
	"trade-dashboard/internal/logging"
	"trade-dashboard/internal/profile"
	"trade-dashboard/internal/scheduler"
	"trade-dashboard/internal/storage"
	"trade-dashboard/internal/vault"
)

// filesPrefix is where the API serves blobs of the memory storage driver
const filesPrefix = "/api/files"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	logging.SetDefault(logger)
	mainLog := logging.WithComponent(logger, "main")

	ctx := context.Background()

	// Database
	db, err := database.NewDB(ctx, database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
		MaxConns: int32(cfg.DatabaseConfig.MaxConns),
		MinConns: int32(cfg.DatabaseConfig.MinConns),
	}, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to run migrations")
	}
	repo := database.NewRepository(db)

	health := map[string]api.HealthCheck{"database": repo.HealthCheck}

	// Event bus
	eventBus := events.NewEventBus()

	// Auth
	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = cfg.AuthConfig.JWTSecret
	authCfg.AccessTokenDuration = cfg.AuthConfig.AccessTokenDuration
	authCfg.RefreshTokenDuration = cfg.AuthConfig.RefreshTokenDuration
	authCfg.MinPasswordLength = cfg.AuthConfig.MinPasswordLength
	authCfg.MaxSessionsPerUser = cfg.AuthConfig.MaxSessionsPerUser
	authCfg.DefaultCapital = cfg.DashboardConfig.DefaultUserCapital

	authService, err := auth.NewService(repo, authCfg, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to initialize auth service")
	}
	if err := authService.SeedAdmin(ctx, cfg.AdminConfig.Email, cfg.AdminConfig.Password, cfg.AdminConfig.Name); err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to seed admin user")
	}

	// Snapshot cache: Redis when enabled, otherwise in process
	var backend cache.Backend = cache.NewMemory()
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		defer cacheService.Close()
		backend = cacheService
		health["redis"] = cacheService.Ping
	}
	snapshots := cache.NewSnapshots(backend, cfg.RedisConfig.TTL, logger)

	// Secrets and blobs
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to initialize Vault client")
	}
	if vaultClient.IsEnabled() {
		health["vault"] = vaultClient.Health
	} else {
		mainLog.Warn().Msg("Vault disabled; broker credentials are kept in memory only")
	}

	blobs, err := storage.New(ctx, cfg.StorageConfig, filesPrefix, logger)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to initialize blob storage")
	}

	// Domain services
	clientView, err := analytics.ParseDefaultView(cfg.DashboardConfig.ClientDefaultView)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Invalid client default view")
	}
	adminView, err := analytics.ParseDefaultView(cfg.DashboardConfig.AdminDefaultView)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Invalid admin default view")
	}

	dashboardService := dashboard.NewService(dashboard.NewRepositorySource(repo), snapshots, eventBus, dashboard.Config{
		ROIBaseline:       cfg.DashboardConfig.ROIBaseline,
		ROIUseUserCapital: cfg.DashboardConfig.ROIUseUserCapital,
		AdminCapital:      cfg.DashboardConfig.AdminCapital,
		ClientDefaultView: clientView,
		AdminDefaultView:  adminView,
	}, logger)
	dashboardService.Subscribe(eventBus)

	profileService := profile.NewService(repo, vaultClient, blobs, eventBus, logger)
	adminService := admin.NewService(repo, authService, eventBus, logger)

	// Background jobs
	var sched *scheduler.Scheduler
	if cfg.SchedulerConfig.Enabled {
		sched = scheduler.New(logger)
		if err := sched.AddJob(cfg.SchedulerConfig.SessionCleanupSpec, scheduler.NewSessionCleanupJob(authService, time.Minute)); err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to schedule session cleanup")
		}
		probes := make(map[string]scheduler.Probe, len(health))
		for name, check := range health {
			probes[name] = scheduler.Probe(check)
		}
		if err := sched.AddJob(cfg.SchedulerConfig.HealthCheckSpec, scheduler.NewHealthCheckJob(probes, 5*time.Second, logger)); err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to schedule health check")
		}
		sched.Start()
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Auth:      authService,
		Dashboard: dashboardService,
		Profiles:  profileService,
		Admin:     adminService,
		Blobs:     blobs,
		Bus:       eventBus,
		Health:    health,
	}, logger)

	go func() {
		if err := server.Start(); err != nil {
			mainLog.Fatal().Err(err).Msg("Failed to start web server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	mainLog.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error shutting down web server")
	}
	if sched != nil {
		sched.Stop()
	}

	mainLog.Info().Msg("Shutdown complete")
}
