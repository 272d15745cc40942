package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// OsuClient fetches the current user's osu! profile.
type OsuClient struct {
	client *Client
	desc   *provider.Descriptor
	logger *zap.Logger
}

// NewOsuClient creates an osu! client
func NewOsuClient(client *Client, desc *provider.Descriptor, logger *zap.Logger) *OsuClient {
	return &OsuClient{client: client, desc: desc, logger: logger}
}

type osuMeResponse struct {
	ID           int64    `json:"id"`
	Username     string   `json:"username"`
	JoinDate     string   `json:"join_date"`
	Playmode     string   `json:"playmode"`
	Playstyle    []string `json:"playstyle"`
	AvatarURL    string   `json:"avatar_url"`
	IsBot        bool     `json:"is_bot"`
	IsDeleted    bool     `json:"is_deleted"`
	IsRestricted bool     `json:"is_restricted"`
	Country      struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"country"`
	Statistics struct {
		GlobalRank  int64   `json:"global_rank"`
		CountryRank int64   `json:"country_rank"`
		PP          float64 `json:"pp"`
		PlayCount   int64   `json:"play_count"`
	} `json:"statistics"`
}

// FetchInfo retrieves the signed-in user's profile and statistics. Bot,
// deleted, and restricted accounts are refused: they have no business
// holding a verified role. The raw response body is returned alongside
// the parsed info so callers can persist it for auditing.
func (o *OsuClient) FetchInfo(ctx context.Context, accessToken string) (*models.OsuInfo, []byte, error) {
	body, err := o.client.Get(ctx, o.desc.ID, o.desc.UserInfoURL(), accessToken)
	if err != nil {
		return nil, nil, err
	}

	var me osuMeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, nil, &provider.PayloadError{Provider: o.desc.ID, Err: fmt.Errorf("failed to parse profile: %w", err)}
	}

	switch {
	case me.IsBot:
		return nil, nil, &provider.RejectionError{Provider: o.desc.ID, Reason: "account is a bot"}
	case me.IsDeleted:
		return nil, nil, &provider.RejectionError{Provider: o.desc.ID, Reason: "account is deleted"}
	case me.IsRestricted:
		return nil, nil, &provider.RejectionError{Provider: o.desc.ID, Reason: "account is restricted"}
	}

	creationDate, err := time.Parse(time.RFC3339, me.JoinDate)
	if err != nil {
		return nil, nil, &provider.PayloadError{Provider: o.desc.ID, Err: fmt.Errorf("failed to parse join date %q: %w", me.JoinDate, err)}
	}

	playStyles := models.ParsePlayStyles(me.Playstyle)
	if len(playStyles) != len(me.Playstyle) {
		o.logger.Debug("dropped unknown playstyles",
			zap.Int64("osu_id", me.ID),
			zap.Strings("raw", me.Playstyle),
		)
	}

	info := &models.OsuInfo{
		ID:           me.ID,
		Username:     me.Username,
		Ruleset:      me.Playmode,
		PlayStyles:   playStyles,
		Country:      me.Country.Code,
		AvatarURL:    me.AvatarURL,
		CreationDate: creationDate,
		GlobalRank:   me.Statistics.GlobalRank,
		CountryRank:  me.Statistics.CountryRank,
		TotalPP:      me.Statistics.PP,
		PlayCount:    me.Statistics.PlayCount,
	}

	return info, body, nil
}
