package linking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osucord/linkedroles/internal/database"
	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// Store is the slice of the database the linker needs.
type Store interface {
	GetLinkedAccount(ctx context.Context, providerID, userID string) (*models.LinkedAccount, error)
	UpdateOsuSnapshot(ctx context.Context, userID string, info *models.OsuInfo, playstylesJSON string, raw []byte) error
	UpdateDiscordSnapshot(ctx context.Context, userID string, info *models.DiscordInfo, raw []byte) error
}

// TokenSource produces usable access tokens for linked accounts.
type TokenSource interface {
	Refresh(ctx context.Context, desc *provider.Descriptor, account *models.LinkedAccount, force bool) (string, error)
}

// OsuFetcher retrieves an osu! profile snapshot.
type OsuFetcher interface {
	FetchInfo(ctx context.Context, accessToken string) (*models.OsuInfo, []byte, error)
}

// DiscordFetcher retrieves community standing.
type DiscordFetcher interface {
	FetchInfo(ctx context.Context, accessToken string) (*models.DiscordInfo, error)
}

// RolePublisher pushes role connection metadata to Discord.
type RolePublisher interface {
	Publish(ctx context.Context, accessToken string, info *models.OsuInfo) error
}

// Linker drives a linking attempt for a signed-in user.
type Linker struct {
	store     Store
	tokens    TokenSource
	registry  *provider.Registry
	osu       OsuFetcher
	discord   DiscordFetcher
	publisher RolePublisher
	logger    *zap.Logger
}

// NewLinker creates a linker
func NewLinker(
	store Store,
	tokens TokenSource,
	registry *provider.Registry,
	osu OsuFetcher,
	discord DiscordFetcher,
	publisher RolePublisher,
	logger *zap.Logger,
) *Linker {
	return &Linker{
		store:     store,
		tokens:    tokens,
		registry:  registry,
		osu:       osu,
		discord:   discord,
		publisher: publisher,
		logger:    logger,
	}
}

// Link runs one linking attempt for the user. retry reports that a
// previous attempt already force-refreshed tokens after a provider
// rejection, so a second rejection is treated as a provider outage
// rather than triggering another refresh loop.
//
// When the attempt fails with a token rejection and retry is false,
// both providers' tokens are force-refreshed and OutcomeRetry asks the
// caller to run the attempt once more.
func (l *Linker) Link(ctx context.Context, userID string, retry bool) Outcome {
	osuAccount, err := l.store.GetLinkedAccount(ctx, provider.Osu, userID)
	if errors.Is(err, database.ErrNotFound) {
		return needSignIn(provider.Osu)
	}
	if err != nil {
		l.logger.Error("failed to load osu account", zap.String("user_id", userID), zap.Error(err))
		return failed("something went wrong, please try again later")
	}

	discordAccount, err := l.store.GetLinkedAccount(ctx, provider.Discord, userID)
	if errors.Is(err, database.ErrNotFound) {
		return needSignIn(provider.Discord)
	}
	if err != nil {
		l.logger.Error("failed to load discord account", zap.String("user_id", userID), zap.Error(err))
		return failed("something went wrong, please try again later")
	}

	attemptErr := l.attempt(ctx, userID, osuAccount, discordAccount)
	outcome := resolve(attemptErr, retry)

	if attemptErr != nil {
		l.logger.Warn("linking attempt did not complete",
			zap.String("user_id", userID),
			zap.Bool("retry", retry),
			zap.Error(attemptErr),
		)
	}

	if outcome.Kind != OutcomeRetry {
		return outcome
	}

	// A provider rejected a token we believed fresh. Force-refresh both
	// providers and hand control back for exactly one more attempt.
	accounts := map[string]*models.LinkedAccount{
		provider.Osu:     osuAccount,
		provider.Discord: discordAccount,
	}
	for _, providerID := range []string{provider.Osu, provider.Discord} {
		desc, err := l.registry.Lookup(providerID)
		if err != nil {
			return failed("something went wrong, please try again later")
		}
		if _, err := l.tokens.Refresh(ctx, desc, accounts[providerID], true); err != nil {
			return resolve(err, true)
		}
	}

	return outcome
}

// attempt refreshes both tokens, fetches both providers concurrently,
// persists the snapshots and publishes the role connection.
func (l *Linker) attempt(ctx context.Context, userID string, osuAccount, discordAccount *models.LinkedAccount) error {
	osuDesc, err := l.registry.Lookup(provider.Osu)
	if err != nil {
		return err
	}
	discordDesc, err := l.registry.Lookup(provider.Discord)
	if err != nil {
		return err
	}

	osuToken, err := l.tokens.Refresh(ctx, osuDesc, osuAccount, false)
	if err != nil {
		return err
	}
	discordToken, err := l.tokens.Refresh(ctx, discordDesc, discordAccount, false)
	if err != nil {
		return err
	}

	var (
		osuInfo     *models.OsuInfo
		osuRaw      []byte
		discordInfo *models.DiscordInfo
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		osuInfo, osuRaw, err = l.osu.FetchInfo(groupCtx, osuToken)
		return err
	})
	group.Go(func() error {
		var err error
		discordInfo, err = l.discord.FetchInfo(groupCtx, discordToken)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	if err := l.store.UpdateOsuSnapshot(ctx, userID, osuInfo, models.PlayStylesJSON(osuInfo.PlayStyles), osuRaw); err != nil {
		return fmt.Errorf("failed to store osu snapshot: %w", err)
	}

	discordRaw, err := json.Marshal(discordInfo)
	if err != nil {
		return fmt.Errorf("failed to encode discord snapshot: %w", err)
	}
	if err := l.store.UpdateDiscordSnapshot(ctx, userID, discordInfo, discordRaw); err != nil {
		return fmt.Errorf("failed to store discord snapshot: %w", err)
	}

	if err := l.publisher.Publish(ctx, discordToken, osuInfo); err != nil {
		return err
	}

	l.logger.Info("linking complete",
		zap.String("user_id", userID),
		zap.Int64("osu_id", osuInfo.ID),
		zap.Bool("in_community", discordInfo.InCommunity),
	)
	return nil
}
