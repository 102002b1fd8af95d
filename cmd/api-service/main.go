package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/handler"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/router"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/storage"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/videostore"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/config"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/database"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg := config.LoadOrDefault(*configPath, logger.NewDefault().Logger)
	cfg.ApplyAPIDefaults()

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging, "api-service")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database client
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	jobStorage := storage.NewStorage(dbClient)
	if err := jobStorage.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize video store
	videos, err := initVideoStore(ctx, &cfg.Jobs.VideoStore, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize video store: %w", err)
	}

	go runVideoCleanup(ctx, videos, cfg.Jobs.CleanupInterval, cfg.Jobs.MaxVideoAge, appLogger.Logger)

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:             appLogger.Logger,
		Storage:            jobStorage,
		Videos:             videos,
		PublicURL:          cfg.Jobs.PublicURL,
		VideoTimeout:       cfg.Jobs.VideoTimeout,
		ChatTimeout:        cfg.Jobs.ChatTimeout,
		ChatCompletionWait: cfg.Jobs.ChatCompletionWait,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errChan:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	appLogger, err := logger.New(loggerCfg)
	if err != nil {
		return nil, err
	}
	return appLogger.With(slog.String("service", service)), nil
}

// initDatabase initializes the job database client
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return database.NewClient(dbConfig, logger)
}

// initVideoStore opens the configured video backend
func initVideoStore(ctx context.Context, cfg *config.VideoStoreConfig, logger *slog.Logger) (videostore.Store, error) {
	if cfg.Backend != "s3" {
		return videostore.NewLocalStore(cfg.Path, logger)
	}

	client, err := videostore.NewS3Client(ctx, &videostore.S3Config{
		Bucket:       cfg.S3.Bucket,
		Region:       cfg.S3.Region,
		Prefix:       cfg.S3.Prefix,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Using S3 video store",
		slog.String("bucket", cfg.S3.Bucket),
		slog.String("prefix", cfg.S3.Prefix),
	)
	return videostore.NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, logger), nil
}

// runVideoCleanup deletes videos older than maxAge every interval
func runVideoCleanup(ctx context.Context, videos videostore.Store, interval, maxAge time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deleted, err := videos.Cleanup(ctx, time.Now().Add(-maxAge))
		if err != nil {
			logger.Warn("Video cleanup failed", slog.Any("error", err))
		} else if deleted > 0 {
			logger.Info("Old videos deleted", slog.Int("count", deleted))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
