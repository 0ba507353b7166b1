package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/blobstore"
	"github.com/plantvision/inspection-api/pkg/config"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/handlers"
	"github.com/plantvision/inspection-api/pkg/logging"
	"github.com/plantvision/inspection-api/pkg/middleware"
	"github.com/plantvision/inspection-api/pkg/repositories"
	"github.com/plantvision/inspection-api/pkg/seed"
	"github.com/plantvision/inspection-api/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.IsLocal())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("version", cfg.Version))

	// Database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	sqlDB, err := database.OpenSQL(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("run migrations: %w", err)
	}
	_ = sqlDB.Close()

	// Redis is optional; without it logout cannot revoke access tokens early.
	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn("Redis not configured; access tokens stay valid until expiry after logout")
	}

	blobs, err := blobstore.NewLocalStore(cfg.Storage.RootDir, cfg.BaseURL, cfg.Storage.SigningKey, logger)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	plantRepo := repositories.NewPlantRepository(db)
	equipmentRepo := repositories.NewEquipmentRepository(db)
	photoRepo := repositories.NewPhotoRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Services
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	hasher := auth.NewPasswordHasher(auth.BcryptCost)
	revocations := auth.NewRevocationStore(redisClient)

	auditService := services.NewAuditService(auditRepo, db, cfg.Audit.WriteTimeout, logger)
	securityAuditor := audit.NewSecurityAuditor(logger, auditService)
	photoService := services.NewPhotoService(photoRepo, equipmentRepo, blobs, db, auditService, cfg.Storage, logger)
	taskService := services.NewTaskService(taskRepo, equipmentRepo, userRepo, photoRepo, db, auditService, logger)
	equipmentService := services.NewEquipmentService(equipmentRepo, photoService, taskService, db, auditService, logger)
	userService := services.NewUserService(userRepo, auditRepo, db, auditService, logger)
	authService := services.NewAuthService(userRepo, tokens, hasher, revocations, auditService,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, logger)
	retentionService := services.NewRetentionService(auditService, cfg.Audit.RetentionDays, logger)

	if cfg.SeedFile != "" {
		seeder := seed.NewSeeder(plantRepo, userRepo, equipmentRepo, hasher, db, logger)
		result, err := seeder.ApplyFile(ctx, cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		logger.Info("Seed data applied",
			zap.String("file", cfg.SeedFile),
			zap.Int("plants", result.Plants),
			zap.Int("users", result.Users),
			zap.Int("equipment", result.Equipment))
	}

	authMiddleware := auth.NewMiddleware(tokens, userRepo, revocations, securityAuditor, logger.Named("auth"))

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(authService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewUsersHandler(userService, securityAuditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewEquipmentHandler(equipmentService, securityAuditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewPhotosHandler(photoService, cfg.Storage.MaxUploadBytes, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewTasksHandler(taskService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, authMiddleware)
	blobstore.NewHandler(blobs, logger).RegisterRoutes(mux)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
	root := http.NewServeMux()
	root.Handle("/api/", rateLimiter.Middleware(mux))
	root.Handle("/", mux)

	handler := middleware.Chain(root,
		middleware.Recover(logger),
		middleware.RequestLogger(logger.Named("http")),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.CORSOrigins),
		middleware.RequestInfo,
	)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	retentionService.RunScheduler(ctx, cfg.Audit.RetentionInterval)
	rateLimiter.Run(ctx, cfg.RateLimit.Window)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting inspection-api",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			stop()
			retentionService.Wait()
			rateLimiter.Wait()
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.String("error", logging.SanitizeError(err)))
	}
	retentionService.Wait()
	rateLimiter.Wait()
	if err := auditService.Flush(shutdownCtx); err != nil {
		logger.Error("Audit entries were not all written before shutdown", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}
