package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
)

// CreateSession creates a new browser session
func (db *DB) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	err := db.QueryRowContext(ctx, query,
		session.Token,
		session.UserID,
		session.ExpiresAt,
	).Scan(&session.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by its cookie token
func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT token, user_id, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`

	session := &models.Session{}
	err := db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession deletes a session
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
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

// CreateOAuthState creates a new OAuth state for CSRF protection
func (db *DB) CreateOAuthState(ctx context.Context, state *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (state, provider, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := db.QueryRowContext(ctx, query,
		state.State,
		state.Provider,
		state.UserID,
		state.ExpiresAt,
	).Scan(&state.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}

	return nil
}

// ConsumeOAuthState validates and deletes an OAuth state (single-use)
func (db *DB) ConsumeOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT state, provider, user_id, created_at, expires_at
		FROM oauth_states
		WHERE state = $1
	`

	oauthState := &models.OAuthState{}
	err = tx.QueryRowContext(ctx, query, state).Scan(
		&oauthState.State,
		&oauthState.Provider,
		&oauthState.UserID,
		&oauthState.CreatedAt,
		&oauthState.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate oauth state: %w", err)
	}

	// An expired state is as good as absent; the cleanup job would have
	// removed it eventually anyway.
	if oauthState.IsExpired() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
			return nil, fmt.Errorf("failed to delete oauth state: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return oauthState, nil
}

// CleanupExpired deletes expired sessions and OAuth states
func (db *DB) CleanupExpired(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to cleanup expired oauth states: %w", err)
	}

	db.logger.Debug("cleaned up expired sessions and states")
	return nil
}

// StartCleanupJob starts a background job to periodically cleanup
// expired sessions and states
func (db *DB) StartCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := db.CleanupExpired(ctx); err != nil {
					db.logger.Error("failed to cleanup expired rows", zap.Error(err))
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	db.logger.Info("started cleanup job", zap.Duration("interval", interval))
}
