package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/osucord/linkedroles/internal/models"
)

const userColumns = `id, name, email, avatar,
		osu_username, osu_creation_date, osu_global_rank, osu_country_rank,
		osu_total_pp, osu_play_count, osu_ruleset, osu_playstyles, osu_country,
		reddit_username, in_community, osu_raw, discord_raw,
		created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Avatar,
		&user.OsuUsername,
		&user.OsuCreationDate,
		&user.OsuGlobalRank,
		&user.OsuCountryRank,
		&user.OsuTotalPP,
		&user.OsuPlayCount,
		&user.OsuRuleset,
		&user.OsuPlaystyles,
		&user.OsuCountry,
		&user.RedditUsername,
		&user.InCommunity,
		&user.OsuRaw,
		&user.DiscordRaw,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, avatar)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err := db.QueryRowContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Avatar,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.QueryRowContext(ctx, query, userID))
}

// UpdateUserProfile updates the display fields refreshed at sign-in
func (db *DB) UpdateUserProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET name = $2, email = $3, avatar = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Avatar)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateOsuSnapshot persists the fields of a successful osu! info fetch
// onto the user, along with the raw payload.
func (db *DB) UpdateOsuSnapshot(ctx context.Context, userID string, info *models.OsuInfo, playstylesJSON string, raw []byte) error {
	query := `
		UPDATE users
		SET osu_username = $2,
			osu_creation_date = $3,
			osu_global_rank = $4,
			osu_country_rank = $5,
			osu_total_pp = $6,
			osu_play_count = $7,
			osu_ruleset = $8,
			osu_playstyles = $9,
			osu_country = $10,
			osu_raw = $11,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query,
		userID,
		info.Username,
		info.CreationDate,
		info.GlobalRank,
		info.CountryRank,
		info.TotalPP,
		info.PlayCount,
		info.Ruleset,
		playstylesJSON,
		info.Country,
		raw,
	)
	if err != nil {
		return fmt.Errorf("failed to update osu snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateDiscordSnapshot persists the fields of a successful Discord info
// fetch onto the user, along with the raw payload.
func (db *DB) UpdateDiscordSnapshot(ctx context.Context, userID string, info *models.DiscordInfo, raw []byte) error {
	query := `
		UPDATE users
		SET reddit_username = $2,
			in_community = $3,
			discord_raw = $4,
			updated_at = NOW()
		WHERE id = $1
	`

	redditUsername := sql.NullString{String: info.RedditUsername, Valid: info.RedditUsername != ""}

	result, err := db.ExecContext(ctx, query, userID, redditUsername, info.InCommunity, raw)
	if err != nil {
		return fmt.Errorf("failed to update discord snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteUser deletes a user. Linked accounts, sessions and pending
// states cascade at the schema level.
func (db *DB) DeleteUser(ctx context.Context, userID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
