// Package provider holds the static OAuth descriptors for the two
// linked providers and the closed error taxonomy used by every
// provider-facing call.
package provider

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/osucord/linkedroles/internal/config"
)

// Provider ids
const (
	Osu     = "osu"
	Discord = "discord"
)

// Production endpoints. API base URLs live on the descriptor so tests
// can point a registry at mock servers.
const (
	osuAuthURL     = "https://osu.ppy.sh/oauth/authorize"
	osuTokenURL    = "https://osu.ppy.sh/oauth/token" //nolint:gosec // API endpoint URL, not a credential
	osuAPIBase     = "https://osu.ppy.sh/api/v2"
	discordAuthURL = "https://discord.com/oauth2/authorize"
	// Discord signals grant revocation on this endpoint with a 400
	// invalid_grant rather than a 401.
	discordTokenURL = "https://discord.com/api/oauth2/token" //nolint:gosec // API endpoint URL, not a credential
	discordAPIBase  = "https://discord.com/api/v10"
)

// Descriptor is the immutable endpoint and credential set for one OAuth
// provider. Built once at startup and passed by reference; never mutated
// afterwards (tests build their own registries instead of patching this
// one).
type Descriptor struct {
	ID           string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// UserInfoURL returns the provider's user-info endpoint
func (d *Descriptor) UserInfoURL() string {
	switch d.ID {
	case Osu:
		return d.APIBaseURL + "/me"
	default:
		return d.APIBaseURL + "/users/@me"
	}
}

// OAuth2Config builds the x/oauth2 config for the authorization-code flow
func (d *Descriptor) OAuth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       d.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  d.AuthURL,
			TokenURL: d.TokenURL,
		},
	}
}

// Registry is a read-only lookup of provider descriptors by id
type Registry struct {
	byID map[string]*Descriptor
}

// NewRegistry builds descriptors for osu! and Discord from configuration
func NewRegistry(cfg *config.Config) *Registry {
	osu := &Descriptor{
		ID:           Osu,
		ClientID:     cfg.Osu.ClientID,
		ClientSecret: cfg.Osu.ClientSecret,
		Scopes:       cfg.Osu.Scopes,
		AuthURL:      osuAuthURL,
		TokenURL:     osuTokenURL,
		APIBaseURL:   osuAPIBase,
	}

	discord := &Descriptor{
		ID:           Discord,
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		Scopes:       cfg.Discord.Scopes,
		AuthURL:      discordAuthURL,
		TokenURL:     discordTokenURL,
		APIBaseURL:   discordAPIBase,
	}

	return NewRegistryWith(osu, discord)
}

// NewRegistryWith builds a registry from explicit descriptors. Used by
// tests to point the clients at mock provider servers.
func NewRegistryWith(descriptors ...*Descriptor) *Registry {
	byID := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}
	return &Registry{byID: byID}
}

// Lookup returns the descriptor for a provider id
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", id)
	}
	return d, nil
}

// List returns all registered descriptors
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}
