// Package models defines data structures for users, linked provider
// accounts and the linking session bookkeeping.
package models

import (
	"database/sql"
	"time"
)

// User is the canonical identity a session resolves to. Besides the
// display fields it carries the last-fetched provider data: a handful of
// typed osu!/Discord columns the linking flow reads back, plus the raw
// JSON snapshots of the most recent fetches.
//
// Users are created by authentication only; the linking flow merely
// updates the cached snapshots.
type User struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Email  sql.NullString `json:"email"`
	Avatar sql.NullString `json:"avatar"`

	OsuUsername     sql.NullString  `json:"osu_username"`
	OsuCreationDate sql.NullTime    `json:"osu_creation_date"`
	OsuGlobalRank   sql.NullInt64   `json:"osu_global_rank"`
	OsuCountryRank  sql.NullInt64   `json:"osu_country_rank"`
	OsuTotalPP      sql.NullFloat64 `json:"osu_total_pp"`
	OsuPlayCount    sql.NullInt64   `json:"osu_play_count"`
	OsuRuleset      sql.NullString  `json:"osu_ruleset"`
	OsuPlaystyles   sql.NullString  `json:"osu_playstyles"` // JSON-encoded playstyle list
	OsuCountry      sql.NullString  `json:"osu_country"`

	RedditUsername sql.NullString `json:"reddit_username"`
	InCommunity    sql.NullBool   `json:"in_community"`

	OsuRaw     []byte `json:"-"` // raw JSON of the last osu! info fetch
	DiscordRaw []byte `json:"-"` // raw JSON of the last Discord info fetch

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
