package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/osucord/linkedroles/internal/models"
)

// UpsertLinkedAccount creates or replaces the linked account for a
// (provider, user) pair. Used by the OAuth callback; re-linking the same
// provider overwrites the stored tokens.
func (db *DB) UpsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error {
	query := `
		INSERT INTO linked_accounts (provider, user_id, provider_account_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, user_id)
		DO UPDATE SET
			provider_account_id = EXCLUDED.provider_account_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := db.QueryRowContext(ctx, query,
		account.Provider,
		account.UserID,
		account.ProviderAccountID,
		account.AccessToken,
		account.RefreshToken,
		account.ExpiresAt,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert linked account: %w", err)
	}

	return nil
}

// GetLinkedAccount retrieves the linked account for a (provider, user)
// pair. Returns ErrNotFound when the provider is not linked yet.
func (db *DB) GetLinkedAccount(ctx context.Context, providerID, userID string) (*models.LinkedAccount, error) {
	query := `
		SELECT id, provider, user_id, provider_account_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM linked_accounts
		WHERE provider = $1 AND user_id = $2
	`

	account := &models.LinkedAccount{}
	err := db.QueryRowContext(ctx, query, providerID, userID).Scan(
		&account.ID,
		&account.Provider,
		&account.UserID,
		&account.ProviderAccountID,
		&account.AccessToken,
		&account.RefreshToken,
		&account.ExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}

	return account, nil
}

// GetLinkedAccountByProviderAccount retrieves a linked account by the
// provider-side account id. Used by the sign-in callback to find the
// user a returning provider account already belongs to.
func (db *DB) GetLinkedAccountByProviderAccount(ctx context.Context, providerID, providerAccountID string) (*models.LinkedAccount, error) {
	query := `
		SELECT id, provider, user_id, provider_account_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM linked_accounts
		WHERE provider = $1 AND provider_account_id = $2
	`

	account := &models.LinkedAccount{}
	err := db.QueryRowContext(ctx, query, providerID, providerAccountID).Scan(
		&account.ID,
		&account.Provider,
		&account.UserID,
		&account.ProviderAccountID,
		&account.AccessToken,
		&account.RefreshToken,
		&account.ExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}

	return account, nil
}

// ListLinkedAccounts returns every linked account for a user
func (db *DB) ListLinkedAccounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	query := `
		SELECT id, provider, user_id, provider_account_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM linked_accounts
		WHERE user_id = $1
		ORDER BY provider
	`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*models.LinkedAccount
	for rows.Next() {
		account := &models.LinkedAccount{}
		if err := rows.Scan(
			&account.ID,
			&account.Provider,
			&account.UserID,
			&account.ProviderAccountID,
			&account.AccessToken,
			&account.RefreshToken,
			&account.ExpiresAt,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}

	return accounts, nil
}

// UpdateLinkedAccountTokens persists a refreshed token triple in place
func (db *DB) UpdateLinkedAccountTokens(ctx context.Context, account *models.LinkedAccount) error {
	query := `
		UPDATE linked_accounts
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := db.QueryRowContext(ctx, query,
		account.ID,
		account.AccessToken,
		account.RefreshToken,
		account.ExpiresAt,
	).Scan(&account.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update linked account tokens: %w", err)
	}

	return nil
}
