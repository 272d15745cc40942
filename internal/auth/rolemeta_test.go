package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
	"github.com/osucord/linkedroles/internal/testutil"
)

func publisherFor(mds *testutil.MockDiscordServer) *Publisher {
	return NewPublisher(NewClient(zap.NewNop()), discordDescriptorFor(mds), "bot-token-abc", zap.NewNop())
}

func sampleOsuInfo() *models.OsuInfo {
	return &models.OsuInfo{
		ID:           4171323,
		Username:     "WhiteCat",
		Ruleset:      "osu",
		PlayStyles:   []models.PlayStyle{models.PlayStyleKeyboard, models.PlayStyleTablet},
		Country:      "KR",
		CreationDate: time.Date(2014, 3, 15, 11, 10, 4, 0, time.UTC),
		GlobalRank:   12,
		CountryRank:  2,
		TotalPP:      18123.7,
		PlayCount:    214210,
	}
}

func TestPlatformName(t *testing.T) {
	tests := []struct {
		ruleset string
		want    string
	}{
		{"osu", "osu!"},
		{"fruits", "osu!catch"},
		{"taiko", "osu!taiko"},
		{"mania", "osu!mania"},
	}

	for _, tt := range tests {
		t.Run(tt.ruleset, func(t *testing.T) {
			assert.Equal(t, tt.want, PlatformName(tt.ruleset))
		})
	}
}

func TestPlatformUsername(t *testing.T) {
	assert.Equal(t, "@WhiteCat — 🇰🇷 ⌨️ 🖊️", PlatformUsername(sampleOsuInfo()))
}

func TestPlatformUsernameWithoutDecorations(t *testing.T) {
	info := &models.OsuInfo{Username: "plain"}
	assert.Equal(t, "@plain", PlatformUsername(info))
}

func TestCountryFlag(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"KR", "🇰🇷"},
		{"us", "🇺🇸"},
		{"DE", "🇩🇪"},
		{"", ""},
		{"XYZ", ""},
		{"1A", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CountryFlag(tt.code), "code %q", tt.code)
	}
}

func TestBuildRoleConnectionMetadata(t *testing.T) {
	payload := BuildRoleConnection(sampleOsuInfo())

	assert.Equal(t, "osu!", payload.PlatformName)
	assert.Equal(t, map[string]string{
		"creationdate": "2014-03-15",
		"globalrank":   "12",
		"countryrank":  "2",
		"totalpp":      "18123",
		"playcount":    "214210",
	}, payload.Metadata)
}

func TestBuildRoleConnectionDateIsUTCZeroPadded(t *testing.T) {
	info := sampleOsuInfo()
	// 02:30 on Jan 6 in a +07:00 zone is still Jan 5 in UTC; the
	// metadata must use the UTC calendar day.
	loc := time.FixedZone("UTC+7", 7*3600)
	info.CreationDate = time.Date(2016, 1, 6, 2, 30, 0, 0, loc)

	payload := BuildRoleConnection(info)
	assert.Equal(t, "2016-01-05", payload.Metadata["creationdate"])
}

func TestBuildRoleConnectionFloorsPP(t *testing.T) {
	info := sampleOsuInfo()
	info.TotalPP = 999.999

	payload := BuildRoleConnection(info)
	assert.Equal(t, "999", payload.Metadata["totalpp"])
}

func TestPublishSendsPayload(t *testing.T) {
	mds := testutil.NewMockDiscordServer()
	defer mds.Close()

	err := publisherFor(mds).Publish(context.Background(), testutil.DiscordAccessToken, sampleOsuInfo())
	require.NoError(t, err)

	require.Equal(t, 1, mds.RoleConnectionPuts)

	var sent RoleConnection
	require.NoError(t, json.Unmarshal(mds.LastRoleConnectionBody, &sent))
	assert.Equal(t, "osu!", sent.PlatformName)
	assert.Equal(t, "@WhiteCat — 🇰🇷 ⌨️ 🖊️", sent.PlatformUsername)
	assert.Equal(t, "2014-03-15", sent.Metadata["creationdate"])
}

func TestPublishRevokedTokenIsUnauthorized(t *testing.T) {
	mds := testutil.NewMockDiscordServer()
	defer mds.Close()

	err := publisherFor(mds).Publish(context.Background(), testutil.DiscordBadToken, sampleOsuInfo())
	require.Error(t, err)
	assert.True(t, provider.IsUnauthorized(err))
}

func TestRegisterSchema(t *testing.T) {
	mds := testutil.NewMockDiscordServer()
	defer mds.Close()

	err := publisherFor(mds).RegisterSchema(context.Background())
	require.NoError(t, err)

	var fields []MetadataField
	require.NoError(t, json.Unmarshal(mds.RegisteredSchema, &fields))
	require.Len(t, fields, 5)

	keys := make([]string, len(fields))
	types := make(map[string]int, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
		types[f.Key] = f.Type
	}
	assert.Equal(t, []string{"creationdate", "globalrank", "countryrank", "totalpp", "playcount"}, keys)

	// Gates compare against minimum age / best rank / minimum totals.
	assert.Equal(t, MetadataDatetimeGreaterThanOrEqual, types["creationdate"])
	assert.Equal(t, MetadataIntegerLessThanOrEqual, types["globalrank"])
	assert.Equal(t, MetadataIntegerLessThanOrEqual, types["countryrank"])
	assert.Equal(t, MetadataIntegerGreaterThanOrEqual, types["totalpp"])
	assert.Equal(t, MetadataIntegerGreaterThanOrEqual, types["playcount"])
}
