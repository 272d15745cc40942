// Package config provides application configuration management using environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Osu      ProviderConfig
	Discord  DiscordConfig
	Database DatabaseConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port    string
	BaseURL string
	Env     string
}

// ProviderConfig holds OAuth client credentials for a provider
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// DiscordConfig extends the provider credentials with the Discord-specific
// pieces of the linking flow: the target community guild and the bot token
// used by the one-shot metadata registration command.
type DiscordConfig struct {
	ProviderConfig
	GuildID  string
	BotToken string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	TokenEncryptionKey []byte
	SessionExpiryHours int
	StateExpiryMinutes int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
// It optionally loads from a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:    getEnv("LINK_PORT", "3000"),
		BaseURL: strings.TrimRight(getEnv("LINK_BASEURL", ""), "/"),
		Env:     getEnv("ENVIRONMENT", "development"),
	}

	cfg.Osu = ProviderConfig{
		ClientID:     getEnv("LINK_OSU_CLIENT_ID", ""),
		ClientSecret: getEnv("LINK_OSU_CLIENT_SECRET", ""),
		Scopes:       strings.Split(getEnv("LINK_OSU_SCOPES", "identify"), " "),
	}

	cfg.Discord = DiscordConfig{
		ProviderConfig: ProviderConfig{
			ClientID:     getEnv("LINK_DISCORD_CLIENT_ID", ""),
			ClientSecret: getEnv("LINK_DISCORD_CLIENT_SECRET", ""),
			Scopes:       strings.Split(getEnv("LINK_DISCORD_SCOPES", "identify connections guilds role_connections.write"), " "),
		},
		GuildID:  getEnv("LINK_DISCORD_GUILD_ID", ""),
		BotToken: getEnv("LINK_DISCORD_BOT_TOKEN", ""),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))

	cfg.Database = DatabaseConfig{
		Host:         getEnv("DB_HOST", "localhost"),
		Port:         getEnv("DB_PORT", "5432"),
		User:         getEnv("DB_USER", "linkedroles"),
		Password:     getEnv("DB_PASSWORD", ""),
		Name:         getEnv("DB_NAME", "linkedroles_db"),
		SSLMode:      getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	sessionExpiryHours, _ := strconv.Atoi(getEnv("SESSION_EXPIRY_HOURS", "168"))
	stateExpiryMinutes, _ := strconv.Atoi(getEnv("STATE_EXPIRY_MINUTES", "10"))

	encryptionKeyHex := getEnv("TOKEN_ENCRYPTION_KEY", "")
	encryptionKey, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: must be a hex-encoded string: %w", err)
	}

	cfg.Security = SecurityConfig{
		TokenEncryptionKey: encryptionKey,
		SessionExpiryHours: sessionExpiryHours,
		StateExpiryMinutes: stateExpiryMinutes,
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("LINK_BASEURL is required")
	}

	if c.Osu.ClientID == "" {
		return fmt.Errorf("LINK_OSU_CLIENT_ID is required")
	}
	if c.Osu.ClientSecret == "" {
		return fmt.Errorf("LINK_OSU_CLIENT_SECRET is required")
	}

	if c.Discord.ClientID == "" {
		return fmt.Errorf("LINK_DISCORD_CLIENT_ID is required")
	}
	if c.Discord.ClientSecret == "" {
		return fmt.Errorf("LINK_DISCORD_CLIENT_SECRET is required")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("LINK_DISCORD_GUILD_ID is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if len(c.Security.TokenEncryptionKey) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 32 bytes (64 hex characters) for AES-256")
	}
	if c.Security.SessionExpiryHours <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_HOURS must be positive")
	}
	if c.Security.StateExpiryMinutes <= 0 {
		return fmt.Errorf("STATE_EXPIRY_MINUTES must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// RedirectURI returns the OAuth callback URL for a provider
func (c *ServerConfig) RedirectURI(providerID string) string {
	return c.BaseURL + "/auth/callback/" + providerID
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
