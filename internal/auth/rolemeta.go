package auth

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// Publisher pushes linked-role connection metadata to Discord and
// registers the metadata schema the application exposes to guild
// role gates.
type Publisher struct {
	client   *Client
	desc     *provider.Descriptor
	botToken string
	logger   *zap.Logger
}

// NewPublisher creates a publisher. The bot token is only used for
// schema registration; connection updates ride on the user's own token.
func NewPublisher(client *Client, desc *provider.Descriptor, botToken string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, desc: desc, botToken: botToken, logger: logger}
}

// RoleConnection is the role-connection payload shape
type RoleConnection struct {
	PlatformName     string            `json:"platform_name"`
	PlatformUsername string            `json:"platform_username"`
	Metadata         map[string]string `json:"metadata"`
}

// MetadataField describes one entry of the registered schema
type MetadataField struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        int    `json:"type"`
}

// Discord role-connection metadata field types
const (
	MetadataIntegerLessThanOrEqual     = 1
	MetadataIntegerGreaterThanOrEqual  = 2
	MetadataDatetimeLessThanOrEqual    = 5
	MetadataDatetimeGreaterThanOrEqual = 6
	MetadataBooleanEqual               = 7
)

// Publish updates the user's role connection with a fresh osu! profile
// snapshot. accessToken is the user's Discord token, which must carry
// the role_connections.write scope.
func (p *Publisher) Publish(ctx context.Context, accessToken string, info *models.OsuInfo) error {
	endpoint := p.desc.APIBaseURL + "/users/@me/applications/" + p.desc.ClientID + "/role-connection"

	payload := BuildRoleConnection(info)
	if _, err := p.client.PutJSON(ctx, p.desc.ID, endpoint, accessToken, payload); err != nil {
		return err
	}

	p.logger.Info("published role connection",
		zap.Int64("osu_id", info.ID),
		zap.String("platform_name", payload.PlatformName),
	)
	return nil
}

// RegisterSchema registers the metadata schema with Discord. This is a
// one-time setup call authenticated with the bot token.
func (p *Publisher) RegisterSchema(ctx context.Context) error {
	endpoint := p.desc.APIBaseURL + "/applications/" + p.desc.ClientID + "/role-connections/metadata"

	schema := MetadataSchema()
	if _, err := p.client.PutJSONAsBot(ctx, p.desc.ID, endpoint, p.botToken, schema); err != nil {
		return err
	}

	p.logger.Info("registered role connection metadata schema", zap.Int("fields", len(schema)))
	return nil
}

// MetadataSchema returns the metadata fields the application registers
func MetadataSchema() []MetadataField {
	return []MetadataField{
		{Key: "creationdate", Name: "Account creation date", Description: "Minimum days since account creation", Type: MetadataDatetimeGreaterThanOrEqual},
		{Key: "globalrank", Name: "Global Rank", Description: "Maximum global rank", Type: MetadataIntegerLessThanOrEqual},
		{Key: "countryrank", Name: "Country Rank", Description: "Maximum country rank", Type: MetadataIntegerLessThanOrEqual},
		{Key: "totalpp", Name: "Total PP", Description: "Minimum total performance points", Type: MetadataIntegerGreaterThanOrEqual},
		{Key: "playcount", Name: "Play Count", Description: "Minimum play count", Type: MetadataIntegerGreaterThanOrEqual},
	}
}

// BuildRoleConnection formats an osu! profile into the role-connection
// payload.
func BuildRoleConnection(info *models.OsuInfo) RoleConnection {
	return RoleConnection{
		PlatformName:     PlatformName(info.Ruleset),
		PlatformUsername: PlatformUsername(info),
		Metadata: map[string]string{
			"creationdate": info.CreationDate.UTC().Format("2006-01-02"),
			"globalrank":   fmt.Sprintf("%d", info.GlobalRank),
			"countryrank":  fmt.Sprintf("%d", info.CountryRank),
			"totalpp":      fmt.Sprintf("%d", int64(math.Floor(info.TotalPP))),
			"playcount":    fmt.Sprintf("%d", info.PlayCount),
		},
	}
}

// PlatformName renders the ruleset as a platform name: "osu!" for the
// standard ruleset, "osu!catch" for fruits, otherwise "osu!" plus the
// ruleset name.
func PlatformName(ruleset string) string {
	return "osu!" + rulesetDisplay(ruleset)
}

func rulesetDisplay(ruleset string) string {
	switch ruleset {
	case "osu":
		return ""
	case "fruits":
		return "catch"
	default:
		return ruleset
	}
}

// PlatformUsername renders "@{username} — {flag} {playstyle emojis}".
// The trailing parts are omitted when absent.
func PlatformUsername(info *models.OsuInfo) string {
	var b strings.Builder
	b.WriteString("@")
	b.WriteString(info.Username)

	decorations := make([]string, 0, len(info.PlayStyles)+1)
	if flag := CountryFlag(info.Country); flag != "" {
		decorations = append(decorations, flag)
	}
	for _, ps := range info.PlayStyles {
		if emoji := playStyleEmoji(ps); emoji != "" {
			decorations = append(decorations, emoji)
		}
	}

	if len(decorations) > 0 {
		b.WriteString(" — ")
		b.WriteString(strings.Join(decorations, " "))
	}
	return b.String()
}

// CountryFlag converts an ISO 3166-1 alpha-2 code into the matching
// regional indicator emoji. Anything that is not two ASCII letters
// yields an empty string.
func CountryFlag(code string) string {
	if len(code) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range strings.ToUpper(code) {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(rune(127397 + c))
	}
	return b.String()
}

func playStyleEmoji(ps models.PlayStyle) string {
	switch ps {
	case models.PlayStyleKeyboard:
		return "⌨️"
	case models.PlayStyleMouse:
		return "🖱️"
	case models.PlayStyleTablet:
		return "🖊️"
	case models.PlayStyleTouchscreen:
		return "💻"
	default:
		return ""
	}
}
