// Package main registers the role connection metadata schema with
// Discord. Run once per application, and again whenever the schema
// changes.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/auth"
	"github.com/osucord/linkedroles/internal/config"
	"github.com/osucord/linkedroles/internal/provider"
	"github.com/osucord/linkedroles/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.Discord.BotToken == "" {
		log.Fatal("LINK_DISCORD_BOT_TOKEN is required for schema registration")
	}

	registry := provider.NewRegistry(cfg)
	discordDesc, err := registry.Lookup(provider.Discord)
	if err != nil {
		log.Fatal("missing discord descriptor", zap.Error(err))
	}

	publisher := auth.NewPublisher(auth.NewClient(log), discordDesc, cfg.Discord.BotToken, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := publisher.RegisterSchema(ctx); err != nil {
		log.Fatal("failed to register metadata schema", zap.Error(err))
	}

	log.Info("metadata schema registered",
		zap.String("application_id", cfg.Discord.ClientID),
	)
}
