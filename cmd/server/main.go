// Package main is the entry point for the linked roles service. It wires
// the OAuth sign-in flow, the linking state machine and the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/auth"
	"github.com/osucord/linkedroles/internal/config"
	"github.com/osucord/linkedroles/internal/database"
	httpserver "github.com/osucord/linkedroles/internal/http"
	"github.com/osucord/linkedroles/internal/linking"
	"github.com/osucord/linkedroles/internal/provider"
	"github.com/osucord/linkedroles/internal/ratelimit"
	"github.com/osucord/linkedroles/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected for non-syncable
		// file descriptors and can be safely ignored
		_ = log.Sync()
	}()

	log.Info("starting linked roles service",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database connection
	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := runMigrations(db, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Start cleanup job for expired sessions and oauth states
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	db.StartCleanupJob(ctx, 30*time.Minute)

	// Provider registry and shared HTTP client
	registry := provider.NewRegistry(cfg)
	client := auth.NewClient(log)
	client.SetRateLimiter(ratelimit.New(log))

	osuDesc, err := registry.Lookup(provider.Osu)
	if err != nil {
		log.Fatal("missing osu descriptor", zap.Error(err))
	}
	discordDesc, err := registry.Lookup(provider.Discord)
	if err != nil {
		log.Fatal("missing discord descriptor", zap.Error(err))
	}

	// Token handling
	cipher, err := auth.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		log.Fatal("failed to create token cipher", zap.Error(err))
	}
	refresher := auth.NewRefresher(db, cipher, client, log)

	// Provider clients and the role connection publisher
	osuClient := auth.NewOsuClient(client, osuDesc, log)
	discordClient := auth.NewDiscordClient(client, discordDesc, cfg.Discord.GuildID, log)
	publisher := auth.NewPublisher(client, discordDesc, cfg.Discord.BotToken, log)

	// Sign-in flow and the linking state machine
	signIn := auth.NewSignInManager(db, registry, cipher, osuClient, discordClient,
		cfg.Server.RedirectURI,
		time.Duration(cfg.Security.StateExpiryMinutes)*time.Minute,
		time.Duration(cfg.Security.SessionExpiryHours)*time.Hour,
		log,
	)
	linker := linking.NewLinker(db, refresher, registry, osuClient, discordClient, publisher, log)

	// HTTP server
	secureCookies := cfg.Server.Env != "development"
	handlers := httpserver.NewHandlers(signIn, linker, db, db, secureCookies, log)
	server := httpserver.NewServer(handlers, cfg.Server.Port, log)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatal("HTTP server error", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	log.Info("server shut down successfully")
}

// runMigrations runs database migrations using golang-migrate library
func runMigrations(db *database.DB, log *zap.Logger) error {
	log.Info("running database migrations")

	migrationsPath := "migrations"
	if err := db.RunMigrations(migrationsPath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}
