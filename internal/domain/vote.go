package domain

import "time"

// MatchVote is a player's claim that a game from their client's local history
// corresponds to one of our matches. One vote per (match, player); changing a
// vote replaces in place.
type MatchVote struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	MatchID        int64     `json:"matchId" gorm:"not null;uniqueIndex:idx_match_votes_match_player"`
	PlayerID       int64     `json:"playerId" gorm:"not null;uniqueIndex:idx_match_votes_match_player"`
	ExternalGameID string    `json:"externalGameId" gorm:"not null"`
	VotedAt        time.Time `json:"votedAt" gorm:"autoUpdateTime"`
}

func (MatchVote) TableName() string {
	return "match_votes"
}

// VoteTally aggregates votes for broadcast: count per external game id plus
// the names of everyone who has voted.
type VoteTally struct {
	Counts map[string]int `json:"votes"`
	Voters []string       `json:"voters"`
}
