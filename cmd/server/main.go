package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rrens/event-chat/internal/api"
	"github.com/Rrens/event-chat/internal/config"
	"github.com/Rrens/event-chat/internal/mailer"
	"github.com/Rrens/event-chat/internal/repository/postgres"
	"github.com/Rrens/event-chat/internal/repository/redis"
	"github.com/Rrens/event-chat/internal/repository/sqlite"
	"github.com/Rrens/event-chat/internal/worker"
	"github.com/joho/godotenv"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting event chat server")

	ctx := context.Background()

	// Initialize database
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	// Initialize Redis; chat keeps working without it, only unthrottled
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without rate limiting")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Detached side effects
	runner := worker.NewRunner(cfg.Worker.MaxConcurrent, cfg.Worker.TaskTimeout)

	// Outbound mail
	var m mailer.Mailer = mailer.NewLogMailer()
	if cfg.Mail.Enabled() {
		m = mailer.NewHTTPMailer(cfg.Mail)
		log.Info().Str("base_url", cfg.Mail.BaseURL).Msg("Mail API configured")
	}

	// Initialize router
	router := api.NewRouter(cfg, store, runner, m, redisClient)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s%s", server.Addr, cfg.Server.BasePath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush heartbeats, read receipts and mail still in flight
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Background tasks did not finish")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if !cfg.IsProduction() || cfg.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if cfg.Logging.File != "" {
		rotator, err := rotatelogs.New(
			cfg.Logging.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.Logging.File),
			rotatelogs.WithMaxAge(cfg.Logging.MaxAge),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", cfg.Logging.File, err)
		} else {
			out = zerolog.MultiLevelWriter(out, rotator)
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// openStore connects the configured relational store and returns its repositories
func openStore(ctx context.Context, cfg *config.Config) (api.Store, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return api.Store{}, nil, err
		}
		log.Info().Str("path", cfg.Database.SQLitePath).Msg("Using SQLite store")
		return api.Store{
			Registrations: sqlite.NewRegistrationRepository(db),
			Sessions:      sqlite.NewSessionRepository(db),
			Credentials:   sqlite.NewCredentialRepository(db),
			Messages:      sqlite.NewMessageRepository(db),
			DB:            db,
		}, func() { db.Close() }, nil

	case "postgres", "":
		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsURL()); err != nil {
				return api.Store{}, nil, err
			}
		}
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return api.Store{}, nil, err
		}
		return api.Store{
			Registrations: postgres.NewRegistrationRepository(db),
			Sessions:      postgres.NewSessionRepository(db),
			Credentials:   postgres.NewCredentialRepository(db),
			Messages:      postgres.NewMessageRepository(db),
			DB:            db,
		}, func() { db.Close() }, nil

	default:
		return api.Store{}, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
