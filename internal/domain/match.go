package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type MatchStatus string

const (
	MatchStatusPendingAccept MatchStatus = "pending_accept"
	MatchStatusDraft         MatchStatus = "draft"
	MatchStatusInProgress    MatchStatus = "in_progress"
	MatchStatusCompleted     MatchStatus = "completed"
	MatchStatusCancelled     MatchStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

type Lane string

const (
	LaneTop     Lane = "top"
	LaneJungle  Lane = "jungle"
	LaneMid     Lane = "mid"
	LaneBot     Lane = "bot"
	LaneSupport Lane = "support"
	LaneFill    Lane = "fill"
)

// Lanes lists the five lanes in canonical order. Team player lists are always
// ordered this way.
var Lanes = []Lane{LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport}

// TeamPlayer is one entry of a match's team JSON, ordered by lane.
type TeamPlayer struct {
	SummonerName string `json:"summonerName"`
	PlayerID     int64  `json:"playerId"`
	MMR          int    `json:"mmr"`
	AssignedLane Lane   `json:"assignedLane"`
	TeamIndex    int    `json:"teamIndex"`
}

type Match struct {
	ID                   int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Status               MatchStatus    `json:"status" gorm:"not null;index"`
	Team1PlayersJSON     datatypes.JSON `json:"team1Players" gorm:"type:jsonb"`
	Team2PlayersJSON     datatypes.JSON `json:"team2Players" gorm:"type:jsonb"`
	PickBanDataJSON      datatypes.JSON `json:"pickBanData" gorm:"type:jsonb"`
	WinnerTeam           *int           `json:"winnerTeam"`
	LinkedExternalGameID *string        `json:"linkedExternalGameId"`
	ExternalMatchData    datatypes.JSON `json:"externalMatchData" gorm:"type:jsonb"`
	LPChangesJSON        datatypes.JSON `json:"lpChanges" gorm:"column:lp_changes_json;type:jsonb"`
	CustomLP             int            `json:"customLp" gorm:"not null;default:0"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

func (Match) TableName() string {
	return "matches"
}

// Team1Players decodes the team 1 player list.
func (m *Match) Team1Players() ([]TeamPlayer, error) {
	return decodeTeam(m.Team1PlayersJSON)
}

// Team2Players decodes the team 2 player list.
func (m *Match) Team2Players() ([]TeamPlayer, error) {
	return decodeTeam(m.Team2PlayersJSON)
}

// Participants returns the normalized summoner names of all ten players.
func (m *Match) Participants() []string {
	var names []string
	t1, _ := m.Team1Players()
	t2, _ := m.Team2Players()
	for _, p := range append(t1, t2...) {
		names = append(names, NormalizeSummonerName(p.SummonerName))
	}
	return names
}

// HasParticipant reports whether the given summoner plays in this match.
func (m *Match) HasParticipant(summonerName string) bool {
	name := NormalizeSummonerName(summonerName)
	for _, n := range m.Participants() {
		if n == name {
			return true
		}
	}
	return false
}

func decodeTeam(raw datatypes.JSON) ([]TeamPlayer, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var players []TeamPlayer
	if err := json.Unmarshal(raw, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// EncodeTeam serializes a team player list for storage.
func EncodeTeam(players []TeamPlayer) (datatypes.JSON, error) {
	raw, err := json.Marshal(players)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// AverageMMR returns the rounded mean MMR of a team.
func AverageMMR(players []TeamPlayer) int {
	if len(players) == 0 {
		return 0
	}
	sum := 0
	for _, p := range players {
		sum += p.MMR
	}
	return sum / len(players)
}
