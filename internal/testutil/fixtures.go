package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/riftbridge/custom-match-core/internal/domain"
	"gorm.io/gorm"
)

// PlayerBuilder creates test players with a builder pattern
type PlayerBuilder struct {
	summonerName string
	puuid        string
	mmr          int
}

// NewPlayerBuilder creates a new PlayerBuilder with default values
func NewPlayerBuilder() *PlayerBuilder {
	name := fmt.Sprintf("testplayer_%s", uuid.New().String()[:8])
	return &PlayerBuilder{
		summonerName: name,
		puuid:        "puuid-" + name,
		mmr:          1000,
	}
}

func (b *PlayerBuilder) WithSummonerName(name string) *PlayerBuilder {
	b.summonerName = name
	return b
}

func (b *PlayerBuilder) WithPUUID(puuid string) *PlayerBuilder {
	b.puuid = puuid
	return b
}

func (b *PlayerBuilder) WithMMR(mmr int) *PlayerBuilder {
	b.mmr = mmr
	return b
}

// Build creates the player in the database
func (b *PlayerBuilder) Build(t *testing.T, db *gorm.DB) *domain.Player {
	t.Helper()

	player := &domain.Player{
		SummonerName: domain.NormalizeSummonerName(b.summonerName),
		PUUID:        b.puuid,
		CurrentMMR:   b.mmr,
		CustomMMR:    b.mmr,
	}
	if err := db.Create(player).Error; err != nil {
		t.Fatalf("failed to create player: %v", err)
	}
	return player
}

// MakeTeam builds a lane-ordered five-player team from names and MMRs.
func MakeTeam(t *testing.T, names []string, mmrs []int) []domain.TeamPlayer {
	t.Helper()

	if len(names) != len(domain.Lanes) || len(mmrs) != len(domain.Lanes) {
		t.Fatalf("MakeTeam needs exactly %d names and mmrs", len(domain.Lanes))
	}
	team := make([]domain.TeamPlayer, len(domain.Lanes))
	for i, lane := range domain.Lanes {
		team[i] = domain.TeamPlayer{
			SummonerName: domain.NormalizeSummonerName(names[i]),
			PlayerID:     int64(i + 1),
			MMR:          mmrs[i],
			AssignedLane: lane,
			TeamIndex:    i,
		}
	}
	return team
}

// MakeMatch creates a ten-player match in the given status. Team 1 is
// alice0..alice4, team 2 is bob0..bob4, all at the given MMR.
func MakeMatch(t *testing.T, db *gorm.DB, status domain.MatchStatus, mmr int) (*domain.Match, []domain.TeamPlayer, []domain.TeamPlayer) {
	t.Helper()

	var names1, names2 []string
	mmrs := make([]int, len(domain.Lanes))
	for i := range domain.Lanes {
		names1 = append(names1, fmt.Sprintf("alice%d", i))
		names2 = append(names2, fmt.Sprintf("bob%d", i))
		mmrs[i] = mmr
	}
	team1 := MakeTeam(t, names1, mmrs)
	team2 := MakeTeam(t, names2, mmrs)

	t1JSON, err := domain.EncodeTeam(team1)
	if err != nil {
		t.Fatalf("failed to encode team 1: %v", err)
	}
	t2JSON, err := domain.EncodeTeam(team2)
	if err != nil {
		t.Fatalf("failed to encode team 2: %v", err)
	}

	match := &domain.Match{
		Status:           status,
		Team1PlayersJSON: t1JSON,
		Team2PlayersJSON: t2JSON,
	}
	if err := db.Create(match).Error; err != nil {
		t.Fatalf("failed to create match: %v", err)
	}
	return match, team1, team2
}

// MakeCohort builds queue entries covering every lane twice, so a match can
// always be formed from them.
func MakeCohort(prefix string, mmr int) []domain.QueueEntry {
	var entries []domain.QueueEntry
	for i, lane := range domain.Lanes {
		for j := 0; j < 2; j++ {
			entries = append(entries, domain.QueueEntry{
				SummonerName: fmt.Sprintf("%s_%d_%d", prefix, i, j),
				Region:       "euw",
				PrimaryLane:  lane,
				MMR:          mmr,
			})
		}
	}
	return entries
}
