package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/osucord/linkedroles/internal/models"
	"github.com/osucord/linkedroles/internal/provider"
)

// RefreshStore is the slice of the database the refresher needs.
type RefreshStore interface {
	UpdateLinkedAccountTokens(ctx context.Context, account *models.LinkedAccount) error
	DeleteUser(ctx context.Context, userID string) error
}

// Refresher keeps linked account tokens usable. A refresh that the
// provider refuses with a revocation signal tears down the whole user
// record, so the next visit starts the linking flow from scratch.
type Refresher struct {
	store  RefreshStore
	cipher *TokenCipher
	client *Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRefresher creates a refresher
func NewRefresher(store RefreshStore, cipher *TokenCipher, client *Client, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:  store,
		cipher: cipher,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken returns the decrypted access token of an account without
// touching the provider.
func (r *Refresher) AccessToken(account *models.LinkedAccount) (string, error) {
	token, err := r.cipher.Decrypt(account.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return token, nil
}

// Refresh returns a usable access token for the account. When the
// stored token has not expired and force is false it is returned as-is
// with no network traffic. Otherwise the refresh token is exchanged at
// the provider's token endpoint and the rotated pair is persisted
// before the new access token is returned.
//
// A 401 from the token endpoint, or a 400 carrying the OAuth error code
// "invalid_grant", means the user revoked the app's access: the user
// record is deleted (linked accounts and sessions cascade) and an
// UnlinkedError is returned.
func (r *Refresher) Refresh(ctx context.Context, desc *provider.Descriptor, account *models.LinkedAccount, force bool) (string, error) {
	if account.Fresh(r.now()) && !force {
		return r.AccessToken(account)
	}

	refreshToken, err := r.cipher.Decrypt(account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", desc.ClientID)
	form.Set("client_secret", desc.ClientSecret)
	form.Set("refresh_token", refreshToken)

	status, body, err := r.client.PostForm(ctx, desc.TokenURL, form)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}

	if r.isRevocation(status, body) {
		r.logger.Info("refresh grant revoked, unlinking user",
			zap.String("provider", desc.ID),
			zap.String("user_id", account.UserID),
		)
		if err := r.store.DeleteUser(ctx, account.UserID); err != nil {
			return "", fmt.Errorf("failed to delete unlinked user: %w", err)
		}
		return "", &provider.UnlinkedError{Provider: desc.ID}
	}

	if status < 200 || status > 299 {
		return "", &provider.ProtocolError{Provider: desc.ID, Status: status, Body: string(body)}
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return "", &provider.PayloadError{Provider: desc.ID, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if tokens.AccessToken == "" {
		return "", &provider.PayloadError{Provider: desc.ID, Err: fmt.Errorf("token response missing access_token")}
	}

	// Providers may omit refresh_token when the grant is not rotated.
	newRefresh := tokens.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	encAccess, err := r.cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := r.cipher.Encrypt(newRefresh)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	account.AccessToken = encAccess
	account.RefreshToken = encRefresh
	account.ExpiresAt = r.now().Unix() + tokens.ExpiresIn
	if err := r.store.UpdateLinkedAccountTokens(ctx, account); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	r.logger.Debug("refreshed provider tokens",
		zap.String("provider", desc.ID),
		zap.String("user_id", account.UserID),
		zap.Int64("expires_at", account.ExpiresAt),
	)

	return tokens.AccessToken, nil
}

// isRevocation reports whether a token endpoint response signals that
// the user revoked the grant. Discord answers 400 invalid_grant rather
// than 401, so both shapes count.
func (r *Refresher) isRevocation(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status == http.StatusBadRequest {
		var oauthErr oauthErrorResponse
		if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error == "invalid_grant" {
			return true
		}
	}
	return false
}
