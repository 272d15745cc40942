package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osucord/linkedroles/internal/models"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func generateUser() *models.User {
	id := uuid.NewString()
	return &models.User{
		ID:     id,
		Name:   "testuser_" + id[:8],
		Avatar: sql.NullString{String: "https://a.ppy.sh/test.jpeg", Valid: true},
	}
}

func generateLinkedAccount(providerID, userID string) *models.LinkedAccount {
	return &models.LinkedAccount{
		Provider:          providerID,
		UserID:            userID,
		ProviderAccountID: providerID + "_account_" + userID[:8],
		AccessToken:       "encrypted_access_token_value",
		RefreshToken:      "encrypted_refresh_token_value",
		ExpiresAt:         time.Now().Add(24 * time.Hour).Unix(),
	}
}

func generateSession(userID string) *models.Session {
	return &models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
}

func generateOsuInfo() *models.OsuInfo {
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

// ============================================================================
// User Tests
// ============================================================================

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	err = db.CreateUser(ctx, user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), user.CreatedAt, 2*time.Second)

	retrieved, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, retrieved.ID)
	assert.Equal(t, user.Name, retrieved.Name)
	assert.Equal(t, user.Avatar, retrieved.Avatar)
	assert.False(t, retrieved.OsuUsername.Valid)
	assert.False(t, retrieved.InCommunity.Valid)
}

func TestGetUserByID_NotFound(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	_, err = db.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUserProfile(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	user.Name = "renamed"
	user.Avatar = sql.NullString{String: "https://a.ppy.sh/new.jpeg", Valid: true}
	require.NoError(t, db.UpdateUserProfile(ctx, user))

	retrieved, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", retrieved.Name)
	assert.Equal(t, "https://a.ppy.sh/new.jpeg", retrieved.Avatar.String)
}

func TestUpdateUserProfile_NotFound(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	ghost := generateUser()
	assert.ErrorIs(t, db.UpdateUserProfile(ctx, ghost), ErrNotFound)
}

func TestUpdateOsuSnapshot(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	info := generateOsuInfo()
	raw := []byte(`{"id":4171323,"username":"WhiteCat"}`)
	err = db.UpdateOsuSnapshot(ctx, user.ID, info, models.PlayStylesJSON(info.PlayStyles), raw)
	require.NoError(t, err)

	retrieved, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "WhiteCat", retrieved.OsuUsername.String)
	assert.Equal(t, int64(12), retrieved.OsuGlobalRank.Int64)
	assert.Equal(t, int64(2), retrieved.OsuCountryRank.Int64)
	assert.InDelta(t, 18123.7, retrieved.OsuTotalPP.Float64, 0.001)
	assert.Equal(t, int64(214210), retrieved.OsuPlayCount.Int64)
	assert.Equal(t, "osu", retrieved.OsuRuleset.String)
	assert.Equal(t, `["keyboard","tablet"]`, retrieved.OsuPlaystyles.String)
	assert.Equal(t, "KR", retrieved.OsuCountry.String)
	assert.JSONEq(t, string(raw), string(retrieved.OsuRaw))
	assert.WithinDuration(t, info.CreationDate, retrieved.OsuCreationDate.Time, time.Second)
}

func TestUpdateOsuSnapshot_UserNotFound(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	err = db.UpdateOsuSnapshot(ctx, uuid.NewString(), generateOsuInfo(), "[]", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDiscordSnapshot(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	info := &models.DiscordInfo{InCommunity: true, RedditUsername: "whitecat_osu"}
	err = db.UpdateDiscordSnapshot(ctx, user.ID, info, []byte(`{"in_community":true}`))
	require.NoError(t, err)

	retrieved, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.InCommunity.Bool)
	assert.Equal(t, "whitecat_osu", retrieved.RedditUsername.String)

	// An empty reddit handle is stored as NULL, not empty string.
	err = db.UpdateDiscordSnapshot(ctx, user.ID, &models.DiscordInfo{InCommunity: false}, nil)
	require.NoError(t, err)

	retrieved, err = db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.InCommunity.Bool)
	assert.False(t, retrieved.RedditUsername.Valid)
}

func TestDeleteUser_Cascades(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	account := generateLinkedAccount("osu", user.ID)
	require.NoError(t, db.UpsertLinkedAccount(ctx, account))

	session := generateSession(user.ID)
	require.NoError(t, db.CreateSession(ctx, session))

	require.NoError(t, db.DeleteUser(ctx, user.ID))

	_, err = db.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetLinkedAccount(ctx, "osu", user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetSession(ctx, session.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// Linked Account Tests
// ============================================================================

func TestUpsertLinkedAccount(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	account := generateLinkedAccount("osu", user.ID)
	require.NoError(t, db.UpsertLinkedAccount(ctx, account))
	assert.NotZero(t, account.ID)
	originalID := account.ID

	// Re-linking the same provider overwrites the stored tokens in place.
	relinked := generateLinkedAccount("osu", user.ID)
	relinked.AccessToken = "encrypted_new_access"
	relinked.RefreshToken = "encrypted_new_refresh"
	require.NoError(t, db.UpsertLinkedAccount(ctx, relinked))
	assert.Equal(t, originalID, relinked.ID)

	retrieved, err := db.GetLinkedAccount(ctx, "osu", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "encrypted_new_access", retrieved.AccessToken)
	assert.Equal(t, "encrypted_new_refresh", retrieved.RefreshToken)
}

func TestGetLinkedAccountByProviderAccount(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	account := generateLinkedAccount("discord", user.ID)
	require.NoError(t, db.UpsertLinkedAccount(ctx, account))

	retrieved, err := db.GetLinkedAccountByProviderAccount(ctx, "discord", account.ProviderAccountID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, retrieved.UserID)

	_, err = db.GetLinkedAccountByProviderAccount(ctx, "discord", "never-seen")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListLinkedAccounts(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	require.NoError(t, db.UpsertLinkedAccount(ctx, generateLinkedAccount("osu", user.ID)))
	require.NoError(t, db.UpsertLinkedAccount(ctx, generateLinkedAccount("discord", user.ID)))

	accounts, err := db.ListLinkedAccounts(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestUpdateLinkedAccountTokens(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	account := generateLinkedAccount("osu", user.ID)
	require.NoError(t, db.UpsertLinkedAccount(ctx, account))

	account.AccessToken = "encrypted_rotated_access"
	account.RefreshToken = "encrypted_rotated_refresh"
	account.ExpiresAt = time.Now().Add(48 * time.Hour).Unix()
	require.NoError(t, db.UpdateLinkedAccountTokens(ctx, account))

	retrieved, err := db.GetLinkedAccount(ctx, "osu", user.ID)
	require.NoError(t, err)
	assert.Equal(t, "encrypted_rotated_access", retrieved.AccessToken)
	assert.Equal(t, "encrypted_rotated_refresh", retrieved.RefreshToken)
	assert.Equal(t, account.ExpiresAt, retrieved.ExpiresAt)
}

func TestUpdateLinkedAccountTokens_NotFound(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	account := &models.LinkedAccount{ID: 424242, AccessToken: "x", RefreshToken: "y", ExpiresAt: 1}
	err = db.UpdateLinkedAccountTokens(ctx, account)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// Session and OAuth State Tests
// ============================================================================

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	session := generateSession(user.ID)
	require.NoError(t, db.CreateSession(ctx, session))

	retrieved, err := db.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, retrieved.UserID)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, 2*time.Second)

	require.NoError(t, db.DeleteSession(ctx, session.Token))
	_, err = db.GetSession(ctx, session.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, db.DeleteSession(ctx, session.Token), ErrNotFound)
}

func TestConsumeOAuthState_SingleUse(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	state := &models.OAuthState{
		State:     uuid.NewString(),
		Provider:  "osu",
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	require.NoError(t, db.CreateOAuthState(ctx, state))

	consumed, err := db.ConsumeOAuthState(ctx, state.State)
	require.NoError(t, err)
	assert.Equal(t, "osu", consumed.Provider)
	assert.False(t, consumed.UserID.Valid)

	_, err = db.ConsumeOAuthState(ctx, state.State)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeOAuthState_CarriesUserID(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	state := &models.OAuthState{
		State:     uuid.NewString(),
		Provider:  "discord",
		UserID:    sql.NullString{String: user.ID, Valid: true},
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	require.NoError(t, db.CreateOAuthState(ctx, state))

	consumed, err := db.ConsumeOAuthState(ctx, state.State)
	require.NoError(t, err)
	require.True(t, consumed.UserID.Valid)
	assert.Equal(t, user.ID, consumed.UserID.String)
}

func TestConsumeOAuthState_Expired(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	state := &models.OAuthState{
		State:     uuid.NewString(),
		Provider:  "osu",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, db.CreateOAuthState(ctx, state))

	_, err = db.ConsumeOAuthState(ctx, state.State)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	db, cleanup, err := setupTestDB(ctx)
	require.NoError(t, err)
	defer cleanup()

	user := generateUser()
	require.NoError(t, db.CreateUser(ctx, user))

	expired := generateSession(user.ID)
	expired.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.CreateSession(ctx, expired))

	live := generateSession(user.ID)
	require.NoError(t, db.CreateSession(ctx, live))

	staleState := &models.OAuthState{
		State:     uuid.NewString(),
		Provider:  "osu",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, db.CreateOAuthState(ctx, staleState))

	require.NoError(t, db.CleanupExpired(ctx))

	_, err = db.GetSession(ctx, expired.Token)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetSession(ctx, live.Token)
	assert.NoError(t, err)

	_, err = db.ConsumeOAuthState(ctx, staleState.State)
	assert.ErrorIs(t, err, ErrNotFound)
}
