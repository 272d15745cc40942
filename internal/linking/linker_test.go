package linking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/database"
	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

type fakeLinkStore struct {
	accounts        map[string]*models.LinkedAccount
	osuSnapshot     *models.OsuInfo
	discordSnapshot *models.DiscordInfo
}

func (f *fakeLinkStore) GetLinkedAccount(_ context.Context, providerID, _ string) (*models.LinkedAccount, error) {
	account, ok := f.accounts[providerID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return account, nil
}

func (f *fakeLinkStore) UpdateOsuSnapshot(_ context.Context, _ string, info *models.OsuInfo, _ string, _ []byte) error {
	f.osuSnapshot = info
	return nil
}

func (f *fakeLinkStore) UpdateDiscordSnapshot(_ context.Context, _ string, info *models.DiscordInfo, _ []byte) error {
	f.discordSnapshot = info
	return nil
}

type fakeTokens struct {
	tokens map[string]string
	errs   map[string]error
	forced []string
}

func (f *fakeTokens) Refresh(_ context.Context, desc *provider.Descriptor, _ *models.LinkedAccount, force bool) (string, error) {
	if force {
		f.forced = append(f.forced, desc.ID)
	}
	if err := f.errs[desc.ID]; err != nil {
		return "", err
	}
	return f.tokens[desc.ID], nil
}

type fakeOsuFetcher struct {
	info  *models.OsuInfo
	raw   []byte
	err   error
	calls int
}

func (f *fakeOsuFetcher) FetchInfo(_ context.Context, _ string) (*models.OsuInfo, []byte, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.info, f.raw, nil
}

type fakeDiscordFetcher struct {
	info  *models.DiscordInfo
	err   error
	calls int
}

func (f *fakeDiscordFetcher) FetchInfo(_ context.Context, _ string) (*models.DiscordInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakePublisher struct {
	err       error
	published *models.OsuInfo
	token     string
	calls     int
}

func (f *fakePublisher) Publish(_ context.Context, accessToken string, info *models.OsuInfo) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.token = accessToken
	f.published = info
	return nil
}

type linkerFixture struct {
	store     *fakeLinkStore
	tokens    *fakeTokens
	osu       *fakeOsuFetcher
	discord   *fakeDiscordFetcher
	publisher *fakePublisher
	linker    *Linker
}

func bothLinked() map[string]*models.LinkedAccount {
	expires := time.Now().Add(time.Hour).Unix()
	return map[string]*models.LinkedAccount{
		provider.Osu:     {ID: 1, Provider: provider.Osu, UserID: "user-1", ExpiresAt: expires},
		provider.Discord: {ID: 2, Provider: provider.Discord, UserID: "user-1", ExpiresAt: expires},
	}
}

func newLinkerFixture(accounts map[string]*models.LinkedAccount) *linkerFixture {
	f := &linkerFixture{
		store: &fakeLinkStore{accounts: accounts},
		tokens: &fakeTokens{
			tokens: map[string]string{
				provider.Osu:     "osu-token",
				provider.Discord: "discord-token",
			},
			errs: make(map[string]error),
		},
		osu: &fakeOsuFetcher{
			info: &models.OsuInfo{ID: 4171323, Username: "WhiteCat", Ruleset: "osu"},
			raw:  []byte(`{"id":4171323}`),
		},
		discord:   &fakeDiscordFetcher{info: &models.DiscordInfo{InCommunity: true, RedditUsername: "whitecat_osu"}},
		publisher: &fakePublisher{},
	}

	registry := provider.NewRegistryWith(
		&provider.Descriptor{ID: provider.Osu},
		&provider.Descriptor{ID: provider.Discord},
	)
	f.linker = NewLinker(f.store, f.tokens, registry, f.osu, f.discord, f.publisher, zap.NewNop())
	return f
}

func TestLinkNeedsOsuSignIn(t *testing.T) {
	f := newLinkerFixture(map[string]*models.LinkedAccount{})

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeNeedSignIn, outcome.Kind)
	assert.Equal(t, provider.Osu, outcome.Provider)
	assert.Equal(t, 0, f.publisher.calls)
}

func TestLinkNeedsDiscordSignIn(t *testing.T) {
	accounts := bothLinked()
	delete(accounts, provider.Discord)
	f := newLinkerFixture(accounts)

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeNeedSignIn, outcome.Kind)
	assert.Equal(t, provider.Discord, outcome.Provider)
}

func TestLinkFullyLinkedPublishes(t *testing.T) {
	f := newLinkerFixture(bothLinked())

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeDone, outcome.Kind)
	assert.Equal(t, 1, f.osu.calls)
	assert.Equal(t, 1, f.discord.calls)

	require.NotNil(t, f.store.osuSnapshot)
	assert.Equal(t, "WhiteCat", f.store.osuSnapshot.Username)
	require.NotNil(t, f.store.discordSnapshot)
	assert.True(t, f.store.discordSnapshot.InCommunity)

	assert.Equal(t, "discord-token", f.publisher.token)
	require.NotNil(t, f.publisher.published)
	assert.Equal(t, int64(4171323), f.publisher.published.ID)
}

func TestLinkRejectedTokenForcesRefreshAndRetries(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.publisher.err = &provider.UnauthorizedError{Provider: provider.Discord, Endpoint: "/role-connection"}

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeRetry, outcome.Kind)
	assert.Equal(t, provider.Discord, outcome.Provider)
	// Both providers are force-refreshed before the one-shot retry.
	assert.Equal(t, []string{provider.Osu, provider.Discord}, f.tokens.forced)
}

func TestLinkRetryAttemptSucceeds(t *testing.T) {
	f := newLinkerFixture(bothLinked())

	outcome := f.linker.Link(context.Background(), "user-1", true)

	assert.Equal(t, OutcomeDone, outcome.Kind)
	assert.Equal(t, 1, f.publisher.calls)
}

func TestLinkSecondRejectionIsProviderOutage(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.osu.err = &provider.UnauthorizedError{Provider: provider.Osu, Endpoint: "/me"}

	outcome := f.linker.Link(context.Background(), "user-1", true)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "osu! appears to be down, please try again later", outcome.Message)
	// No further refresh loop on the retry attempt.
	assert.Empty(t, f.tokens.forced)
}

func TestLinkForcedRefreshRevealsRevocation(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.discord.err = &provider.UnauthorizedError{Provider: provider.Discord, Endpoint: "/users/@me/guilds"}

	// The non-forced refreshes succeed, but the forced refresh after the
	// rejection finds the Discord grant revoked.
	f.linker.tokens = refreshFunc(func(_ context.Context, desc *provider.Descriptor, _ *models.LinkedAccount, force bool) (string, error) {
		if force && desc.ID == provider.Discord {
			return "", &provider.UnlinkedError{Provider: provider.Discord}
		}
		return "token", nil
	})

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "your Discord account was unlinked, please sign in again", outcome.Message)
}

type refreshFunc func(ctx context.Context, desc *provider.Descriptor, account *models.LinkedAccount, force bool) (string, error)

func (f refreshFunc) Refresh(ctx context.Context, desc *provider.Descriptor, account *models.LinkedAccount, force bool) (string, error) {
	return f(ctx, desc, account, force)
}

func TestLinkRefreshRevocationIsTerminal(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.tokens.errs[provider.Osu] = &provider.UnlinkedError{Provider: provider.Osu}

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "your osu! account was unlinked, please sign in again", outcome.Message)
	assert.Equal(t, 0, f.osu.calls)
	assert.Equal(t, 0, f.publisher.calls)
}

func TestLinkProtocolErrorSurfacesResponse(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.osu.err = &provider.ProtocolError{Provider: provider.Osu, Status: 503, Body: "maintenance"}

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "osu! responded with status 503: maintenance", outcome.Message)
	assert.Empty(t, f.tokens.forced)
}

func TestLinkRejectedOsuAccountFails(t *testing.T) {
	f := newLinkerFixture(bothLinked())
	f.osu.err = &provider.RejectionError{Provider: provider.Osu, Reason: "account is restricted"}

	outcome := f.linker.Link(context.Background(), "user-1", false)

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.Equal(t, "your osu! account is restricted", outcome.Message)
	assert.Equal(t, 0, f.publisher.calls)
}
