package models

import "time"

type MapBanAction string

const (
	MapBanActionBan  MapBanAction = "ban"
	MapBanActionPick MapBanAction = "pick"
)

// MapBan is one entry of a match's veto ledger. Order is contiguous
// starting at 1 and is derived from ledger length at append time.
// A (match_id, map_code) pair is unique for the lifetime of the match.
type MapBan struct {
	ID        int          `json:"id" db:"id"`
	MatchID   int          `json:"match_id" db:"match_id"`
	TeamID    int          `json:"team_id" db:"team_id"`
	Action    MapBanAction `json:"action" db:"action"`
	MapCode   string       `json:"map_code" db:"map_code"`
	Order     int          `json:"order" db:"ban_order"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}
