package models

import (
	"encoding/json"
	"time"
)

// PlayStyle is an osu! input method
type PlayStyle int

// The closed set of recognized playstyles
const (
	PlayStyleKeyboard PlayStyle = iota
	PlayStyleMouse
	PlayStyleTablet
	PlayStyleTouchscreen
)

// String returns the provider-side name of the playstyle
func (p PlayStyle) String() string {
	switch p {
	case PlayStyleKeyboard:
		return "keyboard"
	case PlayStyleMouse:
		return "mouse"
	case PlayStyleTablet:
		return "tablet"
	case PlayStyleTouchscreen:
		return "touch"
	default:
		return "unknown"
	}
}

// ParsePlayStyles maps the provider's free-text playstyle strings onto
// the closed enum. Unrecognized values are dropped, order is preserved.
func ParsePlayStyles(raw []string) []PlayStyle {
	styles := make([]PlayStyle, 0, len(raw))
	for _, s := range raw {
		switch s {
		case "keyboard":
			styles = append(styles, PlayStyleKeyboard)
		case "mouse":
			styles = append(styles, PlayStyleMouse)
		case "tablet":
			styles = append(styles, PlayStyleTablet)
		case "touch":
			styles = append(styles, PlayStyleTouchscreen)
		}
	}
	return styles
}

// PlayStylesJSON encodes playstyles as a JSON array of their
// provider-side names, the form the database snapshot column stores.
func PlayStylesJSON(styles []PlayStyle) string {
	names := make([]string, len(styles))
	for i, s := range styles {
		names[i] = s.String()
	}
	encoded, _ := json.Marshal(names)
	return string(encoded)
}

// OsuInfo is the normalized snapshot of an osu! profile fetch
type OsuInfo struct {
	ID           int64
	Username     string
	Ruleset      string
	PlayStyles   []PlayStyle
	Country      string
	AvatarURL    string
	CreationDate time.Time
	GlobalRank   int64
	CountryRank  int64
	TotalPP      float64
	PlayCount    int64
}

// DiscordInfo is the normalized snapshot of a Discord lookup: whether the
// user is in the target community guild, and their Reddit handle if they
// have one connected. RedditUsername is only populated when InCommunity
// is true; the connections endpoint is not queried otherwise.
type DiscordInfo struct {
	InCommunity    bool
	RedditUsername string
}
