// Package testutil provides shared test helpers: mock provider API
// servers, fixtures and a containerized test database.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Well-known token and code values the mock servers switch on
const (
	OsuAccessToken       = "osu_access_token_123"
	OsuBotAccessToken    = "osu_access_token_bot"
	OsuDeletedToken      = "osu_access_token_deleted"
	OsuRestrictedToken   = "osu_access_token_restricted"
	OsuBadToken          = "osu_access_token_revoked"
	OsuRefreshToken      = "osu_refresh_token_456"
	OsuRevokedRefresh    = "osu_refresh_token_revoked"
	OsuNewAccessToken    = "osu_access_token_refreshed"
	OsuNewRefreshToken   = "osu_refresh_token_rotated"
	OsuValidCode         = "osu_valid_code"
	DiscordAccessToken   = "discord_access_token_123"
	DiscordBadToken      = "discord_access_token_revoked"
	DiscordRefreshToken  = "discord_refresh_token_456"
	DiscordRevokedGrant  = "discord_refresh_token_revoked"
	DiscordNewAccess     = "discord_access_token_refreshed"
	DiscordNewRefresh    = "discord_refresh_token_rotated"
	DiscordValidCode     = "discord_valid_code"
	DiscordUserID        = "123456789012345678"
	TargetGuildID        = "111222333444555666"
)

// TokenResponse is the OAuth token response shape both providers share
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthErrorResponse is an OAuth error body
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// OsuProfile is the mock /me payload
type OsuProfile struct {
	ID           int64         `json:"id"`
	Username     string        `json:"username"`
	AvatarURL    string        `json:"avatar_url"`
	JoinDate     string        `json:"join_date"`
	Playmode     string        `json:"playmode"`
	Playstyle    []string      `json:"playstyle"`
	IsBot        bool          `json:"is_bot"`
	IsDeleted    bool          `json:"is_deleted"`
	IsRestricted bool          `json:"is_restricted"`
	Country      osuCountry    `json:"country"`
	Statistics   osuStatistics `json:"statistics"`
}

type osuCountry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type osuStatistics struct {
	GlobalRank  int64   `json:"global_rank"`
	CountryRank int64   `json:"country_rank"`
	PP          float64 `json:"pp"`
	PlayCount   int64   `json:"play_count"`
}

// DefaultOsuProfile returns the profile served for OsuAccessToken
func DefaultOsuProfile() OsuProfile {
	return OsuProfile{
		ID:        4171323,
		Username:  "WhiteCat",
		AvatarURL: "https://a.ppy.sh/4171323.jpeg",
		JoinDate:  "2014-03-15T11:10:04+00:00",
		Playmode:  "osu",
		Playstyle: []string{"keyboard", "tablet"},
		Country:   osuCountry{Code: "KR", Name: "South Korea"},
		Statistics: osuStatistics{
			GlobalRank:  12,
			CountryRank: 2,
			PP:          18123.7,
			PlayCount:   214210,
		},
	}
}

// MockOsuServer is a mock osu! API for token refresh and /me fetches
type MockOsuServer struct {
	Server     *httptest.Server
	Profile    OsuProfile
	mu         sync.Mutex
	TokenCalls int
	MeCalls    int
}

// NewMockOsuServer starts a mock osu! API
func NewMockOsuServer() *MockOsuServer {
	ms := &MockOsuServer{Profile: DefaultOsuProfile()}

	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.TokenCalls++
		ms.mu.Unlock()

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.FormValue("grant_type") {
		case "authorization_code":
			if r.FormValue("code") != OsuValidCode {
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_request", ErrorDescription: "unknown code"})
				return
			}
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken:  OsuAccessToken,
				TokenType:    "Bearer",
				ExpiresIn:    86400,
				RefreshToken: OsuRefreshToken,
			})
		case "refresh_token":
			switch r.FormValue("refresh_token") {
			case OsuRefreshToken:
				writeJSON(w, http.StatusOK, TokenResponse{
					AccessToken:  OsuNewAccessToken,
					TokenType:    "Bearer",
					ExpiresIn:    86400,
					RefreshToken: OsuNewRefreshToken,
				})
			case OsuRevokedRefresh:
				writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized", ErrorDescription: "The refresh token is invalid."})
			case "osu_refresh_oauth_error":
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_request", ErrorDescription: "malformed request"})
			case "osu_refresh_server_error":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			default:
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_request"})
			}
		default:
			writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "unsupported_grant_type"})
		}
	})

	mux.HandleFunc("/api/v2/me", func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.MeCalls++
		ms.mu.Unlock()

		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized"})
			return
		}

		switch token {
		case OsuAccessToken, OsuNewAccessToken:
			writeJSON(w, http.StatusOK, ms.Profile)
		case OsuBotAccessToken:
			profile := ms.Profile
			profile.IsBot = true
			writeJSON(w, http.StatusOK, profile)
		case OsuDeletedToken:
			profile := ms.Profile
			profile.IsDeleted = true
			writeJSON(w, http.StatusOK, profile)
		case OsuRestrictedToken:
			profile := ms.Profile
			profile.IsRestricted = true
			writeJSON(w, http.StatusOK, profile)
		case OsuBadToken:
			writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized"})
		case "osu_server_error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Internal Server Error"))
		default:
			writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized"})
		}
	})

	ms.Server = httptest.NewServer(mux)
	return ms
}

// Close shuts the mock server down
func (ms *MockOsuServer) Close() { ms.Server.Close() }

// TokenURL returns the token endpoint URL
func (ms *MockOsuServer) TokenURL() string { return ms.Server.URL + "/oauth/token" }

// APIBaseURL returns the API base URL
func (ms *MockOsuServer) APIBaseURL() string { return ms.Server.URL + "/api/v2" }

// DiscordGuild is a guild entry in the mock guild list
type DiscordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DiscordConnection is a connected-account entry
type DiscordConnection struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// DiscordUser is the mock /users/@me payload
type DiscordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
}

// MockDiscordServer is a mock Discord API covering the token endpoint,
// user/guilds/connections lookups and the role-connection PUT.
type MockDiscordServer struct {
	Server *httptest.Server

	// Behavior knobs, set before issuing requests.
	Guilds []DiscordGuild
	// RedditUsername controls whether the connections list carries a
	// reddit connection. Empty means none.
	RedditUsername string
	// RoleConnectionDenials makes the next N role-connection PUTs
	// return 401 before succeeding again.
	RoleConnectionDenials int

	mu                     sync.Mutex
	TokenCalls             int
	UserInfoCalls          int
	GuildCalls             int
	ConnectionCalls        int
	RoleConnectionPuts     int
	LastRoleConnectionBody []byte
	RegisteredSchema       []byte
}

// NewMockDiscordServer starts a mock Discord API. The default guild list
// contains the target community guild.
func NewMockDiscordServer() *MockDiscordServer {
	mds := &MockDiscordServer{
		Guilds: []DiscordGuild{
			{ID: "999888777666555444", Name: "somewhere else"},
			{ID: TargetGuildID, Name: "the community"},
		},
		RedditUsername: "whitecat_osu",
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		mds.mu.Lock()
		mds.TokenCalls++
		mds.mu.Unlock()

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch r.FormValue("grant_type") {
		case "authorization_code":
			if r.FormValue("code") != DiscordValidCode {
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_request", ErrorDescription: "unknown code"})
				return
			}
			writeJSON(w, http.StatusOK, TokenResponse{
				AccessToken:  DiscordAccessToken,
				TokenType:    "Bearer",
				ExpiresIn:    604800,
				RefreshToken: DiscordRefreshToken,
				Scope:        "identify connections guilds role_connections.write",
			})
		case "refresh_token":
			switch r.FormValue("refresh_token") {
			case DiscordRefreshToken:
				writeJSON(w, http.StatusOK, TokenResponse{
					AccessToken:  DiscordNewAccess,
					TokenType:    "Bearer",
					ExpiresIn:    604800,
					RefreshToken: DiscordNewRefresh,
					Scope:        "identify connections guilds role_connections.write",
				})
			case DiscordRevokedGrant:
				// Discord reports revoked grants with a 400, not a 401.
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_grant", ErrorDescription: "Invalid refresh token"})
			case "discord_refresh_server_error":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			default:
				writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "invalid_request"})
			}
		default:
			writeJSON(w, http.StatusBadRequest, OAuthErrorResponse{Error: "unsupported_grant_type"})
		}
	})

	mux.HandleFunc("/api/v10/users/@me", func(w http.ResponseWriter, r *http.Request) {
		mds.mu.Lock()
		mds.UserInfoCalls++
		mds.mu.Unlock()

		if !mds.authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, DiscordUser{
			ID:         DiscordUserID,
			Username:   "whitecat",
			GlobalName: "WhiteCat",
			Avatar:     "avatar_hash_123",
		})
	})

	mux.HandleFunc("/api/v10/users/@me/guilds", func(w http.ResponseWriter, r *http.Request) {
		mds.mu.Lock()
		mds.GuildCalls++
		mds.mu.Unlock()

		if !mds.authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, mds.Guilds)
	})

	mux.HandleFunc("/api/v10/users/@me/connections", func(w http.ResponseWriter, r *http.Request) {
		mds.mu.Lock()
		mds.ConnectionCalls++
		mds.mu.Unlock()

		if !mds.authorized(w, r) {
			return
		}

		connections := []DiscordConnection{
			{Type: "steam", ID: "7656119", Name: "whitecat", Verified: true},
		}
		if mds.RedditUsername != "" {
			connections = append(connections, DiscordConnection{
				Type: "reddit", ID: "rd_1", Name: mds.RedditUsername, Verified: true,
			})
		}
		writeJSON(w, http.StatusOK, connections)
	})

	mux.HandleFunc("/api/v10/users/@me/applications/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/role-connection") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if !mds.authorized(w, r) {
			return
		}

		mds.mu.Lock()
		if mds.RoleConnectionDenials > 0 {
			mds.RoleConnectionDenials--
			mds.mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized"})
			return
		}
		body, _ := io.ReadAll(r.Body)
		mds.RoleConnectionPuts++
		mds.LastRoleConnectionBody = body
		mds.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	mux.HandleFunc("/api/v10/applications/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/role-connections/metadata") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bot ") {
			writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized", ErrorDescription: "bot token required"})
			return
		}

		body, _ := io.ReadAll(r.Body)
		mds.mu.Lock()
		mds.RegisteredSchema = body
		mds.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	mds.Server = httptest.NewServer(mux)
	return mds
}

// authorized checks the bearer header and rejects the revoked token
func (mds *MockDiscordServer) authorized(w http.ResponseWriter, r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok || token == DiscordBadToken {
		writeJSON(w, http.StatusUnauthorized, OAuthErrorResponse{Error: "unauthorized"})
		return false
	}
	return true
}

// Close shuts the mock server down
func (mds *MockDiscordServer) Close() { mds.Server.Close() }

// TokenURL returns the token endpoint URL
func (mds *MockDiscordServer) TokenURL() string { return mds.Server.URL + "/api/oauth2/token" }

// APIBaseURL returns the API base URL
func (mds *MockDiscordServer) APIBaseURL() string { return mds.Server.URL + "/api/v10" }

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Sprintf("failed to encode mock response: %v", err))
	}
}
