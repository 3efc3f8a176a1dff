package domain

import (
	"strings"
	"time"
)

// Player is the persistent identity behind a summoner name. Rows are created
// lazily on the first identified connection and never deleted.
type Player struct {
	ID                int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SummonerName      string    `json:"summonerName" gorm:"uniqueIndex;not null"`
	PUUID             string    `json:"puuid" gorm:"column:puuid;uniqueIndex;not null"`
	Region            string    `json:"region" gorm:"not null;default:''"`
	CurrentMMR        int       `json:"currentMmr" gorm:"not null;default:1000"`
	CustomLP          int       `json:"customLp" gorm:"not null;default:0"`
	CustomMMR         int       `json:"customMmr" gorm:"not null;default:1000"`
	CustomGamesPlayed int       `json:"customGamesPlayed" gorm:"not null;default:0"`
	CustomWins        int       `json:"customWins" gorm:"not null;default:0"`
	CustomLosses      int       `json:"customLosses" gorm:"not null;default:0"`
	CustomPeakMMR     int       `json:"customPeakMmr" gorm:"not null;default:0"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func (Player) TableName() string {
	return "players"
}

// NormalizeSummonerName is the single normalization rule for summoner names.
// Every map key, lock key and comparison in the system goes through it.
func NormalizeSummonerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CustomSessionID derives the stable per-player session id from a summoner
// name. It survives reconnects, unlike the transport-level random session id.
func CustomSessionID(summonerName string) string {
	return "player_" + NormalizeSummonerName(summonerName)
}
