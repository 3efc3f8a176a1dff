package domain_test

import (
	"testing"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTeams(t *testing.T) (team1, team2 []domain.TeamPlayer) {
	t.Helper()
	team1 = testutil.MakeTeam(t,
		[]string{"alice", "amber", "anna", "ada", "april"},
		[]int{1000, 1100, 1200, 1300, 1400})
	team2 = testutil.MakeTeam(t,
		[]string{"ben", "bruno", "bart", "bill", "boris"},
		[]int{1050, 1150, 1250, 1350, 1450})
	return team1, team2
}

func TestDraftOrderShape(t *testing.T) {
	require.Equal(t, 20, domain.TotalDraftSteps())

	var bans, picks int
	perTeam := map[int]int{}
	perSlot := map[[2]int]int{}
	for i, turn := range domain.DraftOrder {
		assert.Equal(t, i, turn.Index, "indexes must be sequential")
		switch turn.Type {
		case domain.ActionTypeBan:
			bans++
		case domain.ActionTypePick:
			picks++
		}
		perTeam[turn.Team]++
		perSlot[[2]int{turn.Team, turn.Slot}]++
	}

	assert.Equal(t, 10, bans)
	assert.Equal(t, 10, picks)
	assert.Equal(t, 10, perTeam[1])
	assert.Equal(t, 10, perTeam[2])
	// Every player slot acts exactly twice: one ban, one pick.
	for team := 1; team <= 2; team++ {
		for slot := 0; slot < 5; slot++ {
			assert.Equal(t, 2, perSlot[[2]int{team, slot}], "team %d slot %d", team, slot)
		}
	}
}

func TestDraftOrderPhaseBoundaries(t *testing.T) {
	for i, turn := range domain.DraftOrder {
		switch {
		case i < 6:
			assert.Equal(t, domain.PhaseBan1, turn.Phase)
			assert.Equal(t, domain.ActionTypeBan, turn.Type)
		case i < 12:
			assert.Equal(t, domain.PhasePick1, turn.Phase)
			assert.Equal(t, domain.ActionTypePick, turn.Type)
		case i < 16:
			assert.Equal(t, domain.PhaseBan2, turn.Phase)
			assert.Equal(t, domain.ActionTypeBan, turn.Type)
		default:
			assert.Equal(t, domain.PhasePick2, turn.Phase)
			assert.Equal(t, domain.ActionTypePick, turn.Type)
		}
	}
	// Pick phase 2 starts on red side.
	assert.Equal(t, 2, domain.DraftOrder[16].Team)
}

func TestNewDraftSnapshot(t *testing.T) {
	team1, team2 := makeTeams(t)
	snap := domain.NewDraftSnapshot(team1, team2)

	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, domain.PhaseBan1, snap.CurrentPhase)
	assert.Equal(t, "blue", snap.CurrentTeam)
	assert.Equal(t, "alice", snap.CurrentPlayer)
	assert.Equal(t, domain.ActionTypeBan, snap.CurrentActionType)

	total := 0
	for _, p := range append(snap.Teams.Blue.Players, snap.Teams.Red.Players...) {
		total += len(p.Actions)
		assert.Len(t, p.Actions, 2, "player %s", p.SummonerName)
		for _, a := range p.Actions {
			assert.Equal(t, domain.ActionStatusPending, a.Status)
		}
	}
	assert.Equal(t, domain.TotalDraftSteps(), total)
}

func TestExpectedActorFollowsOrder(t *testing.T) {
	team1, team2 := makeTeams(t)
	snap := domain.NewDraftSnapshot(team1, team2)

	assert.Equal(t, "alice", snap.ExpectedActor(0))
	assert.Equal(t, "ben", snap.ExpectedActor(1))
	assert.Equal(t, "bruno", snap.ExpectedActor(8))
	assert.Equal(t, "bill", snap.ExpectedActor(16))
	assert.Equal(t, "boris", snap.ExpectedActor(18))
	assert.Equal(t, "april", snap.ExpectedActor(19))
	assert.Equal(t, "", snap.ExpectedActor(20))
}

func TestChampionUsed(t *testing.T) {
	team1, team2 := makeTeams(t)
	snap := domain.NewDraftSnapshot(team1, team2)

	assert.False(t, snap.ChampionUsed("aatrox"))

	action := snap.FindAction(0)
	require.NotNil(t, action)
	id := "aatrox"
	action.ChampionID = &id
	action.Status = domain.ActionStatusCompleted

	assert.True(t, snap.ChampionUsed("aatrox"))
	assert.False(t, snap.ChampionUsed("ahri"))
	// A skipped ban never blocks anyone.
	assert.False(t, snap.ChampionUsed(domain.SkippedBanChampion))
}

func TestSnapshotCompletion(t *testing.T) {
	team1, team2 := makeTeams(t)
	snap := domain.NewDraftSnapshot(team1, team2)

	snap.SetCurrentIndex(domain.TotalDraftSteps())
	assert.True(t, snap.IsComplete())
	assert.Empty(t, snap.CurrentPlayer)
	assert.Empty(t, snap.CurrentPhase)
}

func TestSnapshotEncodeDecode(t *testing.T) {
	team1, team2 := makeTeams(t)
	snap := domain.NewDraftSnapshot(team1, team2)
	snap.SetCurrentIndex(7)

	raw, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := domain.DecodeDraftSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, decoded.CurrentIndex)
	assert.Equal(t, "ben", decoded.CurrentPlayer)
	assert.Len(t, decoded.Teams.Blue.Players, 5)
}
