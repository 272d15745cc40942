package testutil

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/osucord/linkedroles/internal/config"
	"github.com/osucord/linkedroles/internal/models"
)

// GenerateTestConfig returns a complete configuration for tests
func GenerateTestConfig() *config.Config {
	key := make([]byte, 32)
	for i := range key {
		key[i] = 0xab
	}

	return &config.Config{
		Server: config.ServerConfig{
			Port:    "3000",
			BaseURL: "https://link.example.com",
			Env:     "test",
		},
		Osu: config.ProviderConfig{
			ClientID:     "osu_client_id",
			ClientSecret: "osu_client_secret",
			Scopes:       []string{"identify"},
		},
		Discord: config.DiscordConfig{
			ProviderConfig: config.ProviderConfig{
				ClientID:     "discord_client_id",
				ClientSecret: "discord_client_secret",
				Scopes:       []string{"identify", "connections", "guilds", "role_connections.write"},
			},
			GuildID:  TargetGuildID,
			BotToken: "test_bot_token",
		},
		Security: config.SecurityConfig{
			TokenEncryptionKey: key,
			SessionExpiryHours: 168,
			StateExpiryMinutes: 10,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}

// GenerateUser creates a test user
func GenerateUser() *models.User {
	id := uuid.NewString()
	return &models.User{
		ID:     id,
		Name:   fmt.Sprintf("testuser_%s", id[:8]),
		Email:  sql.NullString{Valid: false},
		Avatar: sql.NullString{String: "https://a.ppy.sh/test.jpeg", Valid: true},
	}
}

// GenerateLinkedAccount creates a linked account with a fresh token for
// the given provider and user. Token fields hold opaque test values.
func GenerateLinkedAccount(providerID, userID string) *models.LinkedAccount {
	return &models.LinkedAccount{
		Provider:          providerID,
		UserID:            userID,
		ProviderAccountID: fmt.Sprintf("%s_account_%s", providerID, userID[:8]),
		AccessToken:       "encrypted_access_token_value",
		RefreshToken:      "encrypted_refresh_token_value",
		ExpiresAt:         time.Now().Add(24 * time.Hour).Unix(),
	}
}

// GenerateExpiredLinkedAccount creates a linked account whose access
// token expired a day ago
func GenerateExpiredLinkedAccount(providerID, userID string) *models.LinkedAccount {
	account := GenerateLinkedAccount(providerID, userID)
	account.ExpiresAt = time.Now().Add(-24 * time.Hour).Unix()
	return account
}

// GenerateSession creates a week-long session for the given user
func GenerateSession(userID string) *models.Session {
	return &models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
}

// GenerateOsuInfo returns a normalized osu! snapshot matching
// DefaultOsuProfile
func GenerateOsuInfo() *models.OsuInfo {
	return &models.OsuInfo{
		ID:           4171323,
		Username:     "WhiteCat",
		Ruleset:      "osu",
		PlayStyles:   []models.PlayStyle{models.PlayStyleKeyboard, models.PlayStyleTablet},
		Country:      "KR",
		AvatarURL:    "https://a.ppy.sh/4171323.jpeg",
		CreationDate: time.Date(2014, 3, 15, 11, 10, 4, 0, time.UTC),
		GlobalRank:   12,
		CountryRank:  2,
		TotalPP:      18123.7,
		PlayCount:    214210,
	}
}
