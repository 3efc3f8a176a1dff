package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

type ActionType string

const (
	ActionTypeBan  ActionType = "ban"
	ActionTypePick ActionType = "pick"
)

type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusCompleted ActionStatus = "completed"
)

// Draft phases in broadcast payloads.
const (
	PhaseBan1  = "ban1"
	PhasePick1 = "pick1"
	PhaseBan2  = "ban2"
	PhasePick2 = "pick2"
)

// DraftTurn is one step of the tournament draft. Slot is the acting player's
// index within the team's lane-ordered player list.
type DraftTurn struct {
	Index int
	Team  int // 1 = blue, 2 = red
	Type  ActionType
	Phase string
	Slot  int
}

// DraftOrder is the fixed 20-step tournament order. It is a constant table:
// never re-derive it.
var DraftOrder = [20]DraftTurn{
	// Ban phase 1
	{0, 1, ActionTypeBan, PhaseBan1, 0},
	{1, 2, ActionTypeBan, PhaseBan1, 0},
	{2, 1, ActionTypeBan, PhaseBan1, 1},
	{3, 2, ActionTypeBan, PhaseBan1, 1},
	{4, 1, ActionTypeBan, PhaseBan1, 2},
	{5, 2, ActionTypeBan, PhaseBan1, 2},
	// Pick phase 1
	{6, 1, ActionTypePick, PhasePick1, 0},
	{7, 2, ActionTypePick, PhasePick1, 0},
	{8, 2, ActionTypePick, PhasePick1, 1},
	{9, 1, ActionTypePick, PhasePick1, 1},
	{10, 1, ActionTypePick, PhasePick1, 2},
	{11, 2, ActionTypePick, PhasePick1, 2},
	// Ban phase 2
	{12, 1, ActionTypeBan, PhaseBan2, 3},
	{13, 2, ActionTypeBan, PhaseBan2, 3},
	{14, 1, ActionTypeBan, PhaseBan2, 4},
	{15, 2, ActionTypeBan, PhaseBan2, 4},
	// Pick phase 2
	{16, 2, ActionTypePick, PhasePick2, 3},
	{17, 1, ActionTypePick, PhasePick2, 3},
	{18, 2, ActionTypePick, PhasePick2, 4},
	{19, 1, ActionTypePick, PhasePick2, 4},
}

// TotalDraftSteps returns the number of steps in a full draft.
func TotalDraftSteps() int {
	return len(DraftOrder)
}

// GetDraftTurn returns the turn at the given index, or nil when out of range.
func GetDraftTurn(index int) *DraftTurn {
	if index < 0 || index >= len(DraftOrder) {
		return nil
	}
	return &DraftOrder[index]
}

// SnapshotAction is one draft step as seen by its acting player.
type SnapshotAction struct {
	Index        int          `json:"index"`
	Type         ActionType   `json:"type"`
	ChampionID   *string      `json:"championId"`
	ChampionName string       `json:"championName"`
	Phase        string       `json:"phase"`
	Status       ActionStatus `json:"status"`
}

// SnapshotPlayer is one player inside the persisted draft snapshot.
type SnapshotPlayer struct {
	SummonerName string           `json:"summonerName"`
	PlayerID     int64            `json:"playerId"`
	MMR          int              `json:"mmr"`
	AssignedLane Lane             `json:"assignedLane"`
	TeamIndex    int              `json:"teamIndex"`
	Actions      []SnapshotAction `json:"actions"`
}

type SnapshotTeam struct {
	Name       string           `json:"name"`
	TeamNumber int              `json:"teamNumber"`
	AverageMMR int              `json:"averageMmr"`
	Players    []SnapshotPlayer `json:"players"`
}

type SnapshotTeams struct {
	Blue SnapshotTeam `json:"blue"`
	Red  SnapshotTeam `json:"red"`
}

// DraftSnapshot is the single persisted source of truth for a draft. The
// broadcast payload and the stored pick/ban document share this exact shape.
type DraftSnapshot struct {
	Teams             SnapshotTeams `json:"teams"`
	CurrentIndex      int           `json:"currentIndex"`
	CurrentPhase      string        `json:"currentPhase"`
	CurrentPlayer     string        `json:"currentPlayer"`
	CurrentTeam       string        `json:"currentTeam"`
	CurrentActionType ActionType    `json:"currentActionType"`
}

// NewDraftSnapshot builds the initial snapshot for a fresh draft. Each player
// carries exactly the actions the draft order assigns to their team slot.
func NewDraftSnapshot(team1, team2 []TeamPlayer) *DraftSnapshot {
	snap := &DraftSnapshot{
		Teams: SnapshotTeams{
			Blue: SnapshotTeam{Name: "Blue", TeamNumber: 1, AverageMMR: AverageMMR(team1), Players: snapshotPlayers(team1, 1)},
			Red:  SnapshotTeam{Name: "Red", TeamNumber: 2, AverageMMR: AverageMMR(team2), Players: snapshotPlayers(team2, 2)},
		},
	}
	snap.SetCurrentIndex(0)
	return snap
}

func snapshotPlayers(team []TeamPlayer, teamNumber int) []SnapshotPlayer {
	players := make([]SnapshotPlayer, len(team))
	for i, p := range team {
		sp := SnapshotPlayer{
			SummonerName: p.SummonerName,
			PlayerID:     p.PlayerID,
			MMR:          p.MMR,
			AssignedLane: p.AssignedLane,
			TeamIndex:    i,
		}
		for _, turn := range DraftOrder {
			if turn.Team == teamNumber && turn.Slot == i {
				sp.Actions = append(sp.Actions, SnapshotAction{
					Index:  turn.Index,
					Type:   turn.Type,
					Phase:  turn.Phase,
					Status: ActionStatusPending,
				})
			}
		}
		players[i] = sp
	}
	return players
}

// SetCurrentIndex positions the snapshot at the given step and refreshes the
// derived current-turn fields.
func (s *DraftSnapshot) SetCurrentIndex(index int) {
	s.CurrentIndex = index
	turn := GetDraftTurn(index)
	if turn == nil {
		s.CurrentPhase = ""
		s.CurrentPlayer = ""
		s.CurrentTeam = ""
		s.CurrentActionType = ""
		return
	}
	s.CurrentPhase = turn.Phase
	s.CurrentActionType = turn.Type
	team := &s.Teams.Blue
	s.CurrentTeam = "blue"
	if turn.Team == 2 {
		team = &s.Teams.Red
		s.CurrentTeam = "red"
	}
	if turn.Slot < len(team.Players) {
		s.CurrentPlayer = team.Players[turn.Slot].SummonerName
	}
}

// ExpectedActor returns the normalized summoner name whose turn the given
// index is, or "" when the index is out of range.
func (s *DraftSnapshot) ExpectedActor(index int) string {
	turn := GetDraftTurn(index)
	if turn == nil {
		return ""
	}
	team := s.Teams.Blue
	if turn.Team == 2 {
		team = s.Teams.Red
	}
	if turn.Slot >= len(team.Players) {
		return ""
	}
	return NormalizeSummonerName(team.Players[turn.Slot].SummonerName)
}

// FindAction returns the action at the given draft index.
func (s *DraftSnapshot) FindAction(index int) *SnapshotAction {
	for _, team := range []*SnapshotTeam{&s.Teams.Blue, &s.Teams.Red} {
		for pi := range team.Players {
			for ai := range team.Players[pi].Actions {
				if team.Players[pi].Actions[ai].Index == index {
					return &team.Players[pi].Actions[ai]
				}
			}
		}
	}
	return nil
}

// ChampionUsed reports whether the champion id already appears in any
// completed action.
func (s *DraftSnapshot) ChampionUsed(championID string) bool {
	if championID == "" || championID == SkippedBanChampion {
		return false
	}
	used := false
	s.eachAction(func(a *SnapshotAction) {
		if a.Status == ActionStatusCompleted && a.ChampionID != nil && *a.ChampionID == championID {
			used = true
		}
	})
	return used
}

func (s *DraftSnapshot) eachAction(fn func(a *SnapshotAction)) {
	for _, team := range []*SnapshotTeam{&s.Teams.Blue, &s.Teams.Red} {
		for pi := range team.Players {
			for ai := range team.Players[pi].Actions {
				fn(&team.Players[pi].Actions[ai])
			}
		}
	}
}

// IsComplete reports whether every step has been taken.
func (s *DraftSnapshot) IsComplete() bool {
	return s.CurrentIndex >= TotalDraftSteps()
}

// SkippedBanChampion marks a ban that timed out without a selection.
const SkippedBanChampion = "none"

// Encode serializes the snapshot for the pick_ban_data_json column.
func (s *DraftSnapshot) Encode() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeDraftSnapshot parses a stored snapshot.
func DecodeDraftSnapshot(raw datatypes.JSON) (*DraftSnapshot, error) {
	var snap DraftSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
