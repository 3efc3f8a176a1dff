package domain

import "time"

// QueueEntry is a player waiting for a match. At most one entry per player;
// re-joining replaces the existing entry.
type QueueEntry struct {
	PlayerID      int64     `json:"playerId"`
	SummonerName  string    `json:"summonerName"`
	Region        string    `json:"region"`
	PrimaryLane   Lane      `json:"primaryLane"`
	SecondaryLane Lane      `json:"secondaryLane"`
	MMR           int       `json:"mmr"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// PrefersLane reports whether the entry names the lane as primary or
// secondary.
func (e *QueueEntry) PrefersLane(lane Lane) bool {
	return e.PrimaryLane == lane || e.SecondaryLane == lane || e.PrimaryLane == LaneFill
}
