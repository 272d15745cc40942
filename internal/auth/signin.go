package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/osucord/linkedroles/internal/database"
	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// ErrInvalidState is returned when a callback carries a state value that
// is unknown, already used or expired.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// SignInStore is the slice of the database the sign-in flow needs.
type SignInStore interface {
	CreateOAuthState(ctx context.Context, state *models.OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (*models.OAuthState, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
	GetLinkedAccountByProviderAccount(ctx context.Context, providerID, providerAccountID string) (*models.LinkedAccount, error)
	UpsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error
	UpdateOsuSnapshot(ctx context.Context, userID string, info *models.OsuInfo, playstylesJSON string, raw []byte) error
	CreateSession(ctx context.Context, session *models.Session) error
}

// SignInManager drives the authorization-code flow for both providers:
// it issues single-use state values, exchanges callback codes for
// tokens, resolves or creates the user, and opens a browser session.
type SignInManager struct {
	store       SignInStore
	registry    *provider.Registry
	cipher      *TokenCipher
	osu         *OsuClient
	discord     *DiscordClient
	redirectURI func(providerID string) string
	stateTTL    time.Duration
	sessionTTL  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewSignInManager creates a sign-in manager
func NewSignInManager(
	store SignInStore,
	registry *provider.Registry,
	cipher *TokenCipher,
	osu *OsuClient,
	discord *DiscordClient,
	redirectURI func(providerID string) string,
	stateTTL, sessionTTL time.Duration,
	logger *zap.Logger,
) *SignInManager {
	return &SignInManager{
		store:       store,
		registry:    registry,
		cipher:      cipher,
		osu:         osu,
		discord:     discord,
		redirectURI: redirectURI,
		stateTTL:    stateTTL,
		sessionTTL:  sessionTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Begin issues a fresh state value and returns the provider's
// authorization URL to redirect the browser to. userID is the signed-in
// user when a second provider is being attached, empty on first contact.
func (m *SignInManager) Begin(ctx context.Context, providerID, userID string) (string, error) {
	desc, err := m.registry.Lookup(providerID)
	if err != nil {
		return "", err
	}

	state := &models.OAuthState{
		State:     uuid.New().String(),
		Provider:  providerID,
		CreatedAt: m.now(),
		ExpiresAt: m.now().Add(m.stateTTL),
	}
	if userID != "" {
		state.UserID = sql.NullString{String: userID, Valid: true}
	}

	if err := m.store.CreateOAuthState(ctx, state); err != nil {
		return "", fmt.Errorf("failed to persist oauth state: %w", err)
	}

	return desc.OAuth2Config(m.redirectURI(providerID)).AuthCodeURL(state.State), nil
}

// Complete handles the provider callback: it validates and consumes the
// state, exchanges the code for tokens, fetches the provider identity,
// attaches or creates the user, and opens a session.
func (m *SignInManager) Complete(ctx context.Context, providerID, state, code string) (*models.Session, error) {
	desc, err := m.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if stored.Provider != providerID || stored.IsExpired() {
		return nil, ErrInvalidState
	}

	token, err := desc.OAuth2Config(m.redirectURI(providerID)).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	switch providerID {
	case provider.Osu:
		return m.completeOsu(ctx, desc, stored, token)
	case provider.Discord:
		return m.completeDiscord(ctx, desc, stored, token)
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerID)
	}
}

func (m *SignInManager) completeOsu(ctx context.Context, desc *provider.Descriptor, state *models.OAuthState, token *oauth2.Token) (*models.Session, error) {
	info, raw, err := m.osu.FetchInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	userID, err := m.resolveUser(ctx, desc.ID, fmt.Sprintf("%d", info.ID), state, info.Username, info.AvatarURL)
	if err != nil {
		return nil, err
	}

	if err := m.saveAccount(ctx, desc.ID, userID, fmt.Sprintf("%d", info.ID), token); err != nil {
		return nil, err
	}

	if err := m.store.UpdateOsuSnapshot(ctx, userID, info, models.PlayStylesJSON(info.PlayStyles), raw); err != nil {
		return nil, fmt.Errorf("failed to store osu snapshot: %w", err)
	}

	return m.openSession(ctx, userID)
}

func (m *SignInManager) completeDiscord(ctx context.Context, desc *provider.Descriptor, state *models.OAuthState, token *oauth2.Token) (*models.Session, error) {
	user, _, err := m.discord.FetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	userID, err := m.resolveUser(ctx, desc.ID, user.ID, state, user.Username, user.Avatar)
	if err != nil {
		return nil, err
	}

	if err := m.saveAccount(ctx, desc.ID, userID, user.ID, token); err != nil {
		return nil, err
	}

	return m.openSession(ctx, userID)
}

// resolveUser finds the user a fresh provider sign-in belongs to: the
// existing owner of this provider account if one is already linked, the
// state's signed-in user when a second provider is being attached, or a
// brand new user otherwise.
func (m *SignInManager) resolveUser(ctx context.Context, providerID, providerAccountID string, state *models.OAuthState, name, avatar string) (string, error) {
	existing, err := m.store.GetLinkedAccountByProviderAccount(ctx, providerID, providerAccountID)
	if err == nil {
		m.refreshProfile(ctx, existing.UserID, name, avatar)
		return existing.UserID, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("failed to look up linked account: %w", err)
	}

	if state.UserID.Valid {
		if _, err := m.store.GetUserByID(ctx, state.UserID.String); err == nil {
			return state.UserID.String, nil
		} else if !errors.Is(err, database.ErrNotFound) {
			return "", fmt.Errorf("failed to look up user: %w", err)
		}
		// The session's user vanished between redirect and callback;
		// fall through to creating a fresh one.
	}

	user := &models.User{
		ID:   uuid.New().String(),
		Name: name,
	}
	if avatar != "" {
		user.Avatar = sql.NullString{String: avatar, Valid: true}
	}
	if err := m.store.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	m.logger.Info("created user from sign-in",
		zap.String("provider", providerID),
		zap.String("user_id", user.ID),
	)
	return user.ID, nil
}

// refreshProfile updates the stored display fields when a known
// provider account signs in again. Failures are logged and swallowed;
// linking can proceed on a stale name.
func (m *SignInManager) refreshProfile(ctx context.Context, userID, name, avatar string) {
	user, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		m.logger.Warn("failed to load user for profile refresh", zap.String("user_id", userID), zap.Error(err))
		return
	}

	user.Name = name
	if avatar != "" {
		user.Avatar = sql.NullString{String: avatar, Valid: true}
	}
	if err := m.store.UpdateUserProfile(ctx, user); err != nil {
		m.logger.Warn("failed to refresh user profile", zap.String("user_id", userID), zap.Error(err))
	}
}

func (m *SignInManager) saveAccount(ctx context.Context, providerID, userID, providerAccountID string, token *oauth2.Token) error {
	encAccess, err := m.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := m.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	account := &models.LinkedAccount{
		Provider:          providerID,
		UserID:            userID,
		ProviderAccountID: providerAccountID,
		AccessToken:       encAccess,
		RefreshToken:      encRefresh,
		ExpiresAt:         token.Expiry.Unix(),
	}
	if err := m.store.UpsertLinkedAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return nil
}

func (m *SignInManager) openSession(ctx context.Context, userID string) (*models.Session, error) {
	session := &models.Session{
		Token:     uuid.New().String(),
		UserID:    userID,
		CreatedAt: m.now(),
		ExpiresAt: m.now().Add(m.sessionTTL),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
