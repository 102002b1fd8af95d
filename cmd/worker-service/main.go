package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/browser"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/config"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/control"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/events"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/source"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/storage"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/logger"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/rabbitmq"
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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration; a missing or broken file falls back to defaults
	cfg := config.LoadOrDefault(*configPath, logger.NewDefault().Logger)
	cfg.ApplyWorkerDefaults()

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging, "worker-service")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistent state
	store, err := initStateStore(ctx, &cfg.State, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}
	defer store.Close()

	// Browser the page adapter runs in
	surface, err := browser.New(ctx, &browser.Config{
		RemoteURL:     cfg.Browser.RemoteURL,
		AdapterScript: cfg.Browser.AdapterScript,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer surface.Close()

	// Notifications
	hub := events.NewHub(64)
	notifiers := events.Multi{hub}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(ctx, &cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		notifiers = append(notifiers, events.NewAMQPNotifier(rabbitClient, "worker", appLogger.Logger))
		appLogger.Info("RabbitMQ connection established")
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:   appLogger.Logger,
		Store:    store,
		Surface:  surface,
		Notifier: notifiers,
		Source: source.NewClient(&source.Config{
			BaseURL:        cfg.JobSource.BaseURL,
			PathPrefix:     cfg.JobSource.PathPrefix,
			RequestTimeout: cfg.JobSource.RequestTimeout,
			UploadTimeout:  cfg.JobSource.UploadTimeout,
		}, appLogger.Logger),

		PollInterval:        cfg.Worker.PollInterval,
		VideoTimeoutSeconds: cfg.Worker.VideoTimeoutSeconds,
		Chat: domain.ChatSettings{
			TimeoutSeconds:     cfg.Worker.Chat.TimeoutSeconds,
			ImageUploadDelayMs: cfg.Worker.Chat.ImageUploadDelayMs,
		},
		StuckGrace:   cfg.Worker.StuckGrace,
		RequirePanel: cfg.Worker.RequirePanel,

		TabPrefix:         cfg.Browser.TabPrefix,
		ChatURL:           cfg.Browser.ChatURL,
		VideoURL:          cfg.Browser.VideoURL,
		TabLoadTimeout:    cfg.Browser.TabLoadTimeout,
		TabPollInterval:   cfg.Browser.TabPollInterval,
		ReadyAttempts:     cfg.Browser.ReadyAttempts,
		ReadyBackoff:      cfg.Browser.ReadyBackoff,
		MaxImageDimension: cfg.Browser.MaxImageDimension,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 2)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Control surface; request contexts derive from ctx so event streams
	// end on shutdown
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      initRouter(cfg.App.Environment, appLogger.Logger, workerInstance, hub),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("control server failed: %w", err)
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("control_address", srv.Addr),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	}

	// Cancel context to stop worker and open event streams
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Control server forced to shutdown", slog.Any("error", err))
	}

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
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

// initStateStore opens the configured state backend
func initStateStore(ctx context.Context, cfg *config.StateConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := storage.NewRedisStore(client, cfg.Redis.Key, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return storage.NewFileStore(cfg.Path, logger)
	}
}

// initRabbitMQ initializes the RabbitMQ client used for event fan-out
func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
	}

	return rabbitmq.NewClient(ctx, rabbitConfig, logger)
}

// initRouter initializes the control surface router
func initRouter(environment string, logger *slog.Logger, w *worker.Worker, hub *events.Hub) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return control.SetupRouter(logger, control.NewHandler(logger, w, hub))
}
