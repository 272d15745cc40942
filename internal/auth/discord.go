package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// DiscordClient fetches the current user's Discord identity and
// community standing.
type DiscordClient struct {
	client  *Client
	desc    *provider.Descriptor
	guildID string
	logger  *zap.Logger
}

// NewDiscordClient creates a Discord client. guildID is the community
// guild whose membership feeds the in_community metadata field.
func NewDiscordClient(client *Client, desc *provider.Descriptor, guildID string, logger *zap.Logger) *DiscordClient {
	return &DiscordClient{client: client, desc: desc, guildID: guildID, logger: logger}
}

// DiscordUser is the identity slice of GET /users/@me used during
// sign-in.
type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
}

type discordGuild struct {
	ID string `json:"id"`
}

type discordConnection struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// FetchUser retrieves the signed-in user's Discord identity along with
// the raw response body.
func (d *DiscordClient) FetchUser(ctx context.Context, accessToken string) (*DiscordUser, []byte, error) {
	body, err := d.client.Get(ctx, d.desc.ID, d.desc.UserInfoURL(), accessToken)
	if err != nil {
		return nil, nil, err
	}

	var user DiscordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, nil, &provider.PayloadError{Provider: d.desc.ID, Err: fmt.Errorf("failed to parse user: %w", err)}
	}
	if user.ID == "" {
		return nil, nil, &provider.PayloadError{Provider: d.desc.ID, Err: fmt.Errorf("user response missing id")}
	}

	return &user, body, nil
}

// FetchInfo determines community membership and, for members only, the
// user's verified reddit connection. Non-members skip the connections
// call entirely.
func (d *DiscordClient) FetchInfo(ctx context.Context, accessToken string) (*models.DiscordInfo, error) {
	guildsBody, err := d.client.Get(ctx, d.desc.ID, d.desc.APIBaseURL+"/users/@me/guilds", accessToken)
	if err != nil {
		return nil, err
	}

	var guilds []discordGuild
	if err := json.Unmarshal(guildsBody, &guilds); err != nil {
		return nil, &provider.PayloadError{Provider: d.desc.ID, Err: fmt.Errorf("failed to parse guilds: %w", err)}
	}

	info := &models.DiscordInfo{}
	for _, g := range guilds {
		if g.ID == d.guildID {
			info.InCommunity = true
			break
		}
	}

	if !info.InCommunity {
		return info, nil
	}

	connsBody, err := d.client.Get(ctx, d.desc.ID, d.desc.APIBaseURL+"/users/@me/connections", accessToken)
	if err != nil {
		return nil, err
	}

	var conns []discordConnection
	if err := json.Unmarshal(connsBody, &conns); err != nil {
		return nil, &provider.PayloadError{Provider: d.desc.ID, Err: fmt.Errorf("failed to parse connections: %w", err)}
	}

	for _, c := range conns {
		if c.Type == "reddit" && c.Verified {
			info.RedditUsername = c.Name
			break
		}
	}

	return info, nil
}
