package models

import (
	"database/sql"
	"time"
)

// LinkedAccount ties one provider-side account to a user. A user holds
// at most one per provider; the linking flow drives this toward two.
// Token fields are encrypted at rest and only ever written by the OAuth
// callback and the token refresher.
type LinkedAccount struct {
	ID                int64     `json:"id"`
	Provider          string    `json:"provider"` // "osu" or "discord"
	UserID            string    `json:"user_id"`
	ProviderAccountID string    `json:"provider_account_id"`
	AccessToken       string    `json:"-"`          // encrypted
	RefreshToken      string    `json:"-"`          // encrypted
	ExpiresAt         int64     `json:"expires_at"` // epoch seconds
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Fresh reports whether the access token is still valid at the given time
func (a *LinkedAccount) Fresh(now time.Time) bool {
	return a.ExpiresAt > now.Unix()
}

// Session maps a browser cookie token to a user
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// OAuthState is a single-use CSRF token for a sign-in redirect. UserID is
// set when a signed-in user starts linking a second provider, so the
// callback can attach the new account to the existing user.
type OAuthState struct {
	State     string         `json:"state"`
	Provider  string         `json:"provider"`
	UserID    sql.NullString `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// IsExpired checks if the OAuth state has expired
func (s *OAuthState) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
