package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osucord/linkedroles/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Osu: config.ProviderConfig{
			ClientID:     "osu_client",
			ClientSecret: "osu_secret",
			Scopes:       []string{"identify"},
		},
		Discord: config.DiscordConfig{
			ProviderConfig: config.ProviderConfig{
				ClientID:     "discord_client",
				ClientSecret: "discord_secret",
				Scopes:       []string{"identify", "connections", "guilds", "role_connections.write"},
			},
			GuildID: "guild_123",
		},
	}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry(testConfig())

	osu, err := registry.Lookup(Osu)
	require.NoError(t, err)
	assert.Equal(t, "osu_client", osu.ClientID)
	assert.Equal(t, "https://osu.ppy.sh/oauth/token", osu.TokenURL)
	assert.Equal(t, "https://osu.ppy.sh/api/v2/me", osu.UserInfoURL())

	discord, err := registry.Lookup(Discord)
	require.NoError(t, err)
	assert.Equal(t, "discord_client", discord.ClientID)
	assert.Equal(t, "https://discord.com/api/oauth2/token", discord.TokenURL)
	assert.Equal(t, "https://discord.com/api/v10/users/@me", discord.UserInfoURL())

	assert.Len(t, registry.List(), 2)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	registry := NewRegistry(testConfig())

	_, err := registry.Lookup("github")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestDescriptor_OAuth2Config(t *testing.T) {
	registry := NewRegistry(testConfig())
	discord, err := registry.Lookup(Discord)
	require.NoError(t, err)

	oc := discord.OAuth2Config("https://link.example.com/auth/callback/discord")
	assert.Equal(t, "discord_client", oc.ClientID)
	assert.Equal(t, "https://link.example.com/auth/callback/discord", oc.RedirectURL)
	assert.Equal(t, discord.AuthURL, oc.Endpoint.AuthURL)
	assert.Equal(t, discord.TokenURL, oc.Endpoint.TokenURL)
	assert.Contains(t, oc.AuthCodeURL("state_1"), "state=state_1")
}

func TestErrorClassification(t *testing.T) {
	unlinked := &UnlinkedError{Provider: Discord}
	unauthorized := &UnauthorizedError{Provider: Osu, Endpoint: "/me"}
	protocol := &ProtocolError{Provider: Discord, Status: 502, Body: "bad gateway"}
	rejection := &RejectionError{Provider: Osu, Reason: "account is a bot"}
	payload := &PayloadError{Provider: Osu, Err: errors.New("unexpected end of JSON input")}

	assert.True(t, IsUnlinked(unlinked))
	assert.False(t, IsUnlinked(unauthorized))
	assert.True(t, IsUnauthorized(unauthorized))
	assert.False(t, IsUnauthorized(protocol))

	// Classification must survive wrapping.
	wrapped := fmt.Errorf("refreshing token: %w", unlinked)
	assert.True(t, IsUnlinked(wrapped))
	wrapped = fmt.Errorf("fetching info: %w", unauthorized)
	assert.True(t, IsUnauthorized(wrapped))

	// Payload errors unwrap to their cause.
	assert.EqualError(t, errors.Unwrap(payload), "unexpected end of JSON input")

	assert.Contains(t, protocol.Error(), "502")
	assert.Contains(t, rejection.Error(), "bot")
}
