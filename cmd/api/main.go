package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/authman/internal/auth"
	"github.com/redmonkez12/authman/internal/config"
	"github.com/redmonkez12/authman/internal/database"
	"github.com/redmonkez12/authman/internal/email"
	httpServer "github.com/redmonkez12/authman/internal/http"
	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/session"
	"github.com/redmonkez12/authman/internal/user"
	"github.com/redmonkez12/authman/internal/view"
	"github.com/redmonkez12/authman/templates"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"session_store", cfg.Session.Store,
	)

	ctx := context.Background()

	// Initialize database connection
	sqlDB, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, sqlDB, database.Up); err != nil {
			return err
		}
		version, err := database.Version(ctx, sqlDB)
		if err != nil {
			return err
		}
		logger.Info("database migrated", "version", version)
	}

	db := database.NewBunDB(sqlDB)

	// Initialize session store
	store, closeStore, err := initSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := session.NewCodec(cfg.Session.Key, cfg.Session.TTL)
	if err != nil {
		return fmt.Errorf("failed to initialize session codec: %w", err)
	}
	sessions := session.NewManager(store, codec, cfg.Session.CookieName, !cfg.Server.IsDevelopment())

	// Initialize services
	userRepo := user.NewRepository(db)
	authService := auth.NewService(
		userRepo,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		logger,
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	)

	emailService, err := email.NewService(cfg.Email, cfg.Auth.ResetTokenTTL, cfg.Server.IsDevelopment())
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}
	if !cfg.Email.SMTPEnabled() {
		if cfg.Server.IsDevelopment() {
			logger.Warn("SMTP_HOST not set, password reset links will only be logged")
		} else {
			logger.Warn("SMTP_HOST not set, password reset emails will be dropped")
		}
	}

	pages, err := view.NewRenderer(templates.PagesFS, "pages")
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(authService, sessions, pages, emailService)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, sessions, logger)

	// Initialize HTTP server
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Let queued reset emails go out before the store connections close
		if err := authHandler.WaitForPending(ctx); err != nil {
			logger.Warn("password reset deliveries still pending at shutdown", "error", err.Error())
		}
	}

	return nil
}

// initSessionStore returns the configured session store and a function releasing it
func initSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.Session.Store == config.SessionStoreMemory {
		return session.NewMemoryStore(), func() {}, nil
	}

	client, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	return session.NewRedisStore(client), func() { client.Close() }, nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
