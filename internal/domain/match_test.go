package domain_test

import (
	"testing"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchParticipants(t *testing.T) {
	team1 := testutil.MakeTeam(t,
		[]string{"Alice", "amber", "anna", "ada", "april"},
		[]int{1000, 1000, 1000, 1000, 1000})
	team2 := testutil.MakeTeam(t,
		[]string{"ben", "bruno", "bart", "bill", "boris"},
		[]int{1000, 1000, 1000, 1000, 1000})

	t1, err := domain.EncodeTeam(team1)
	require.NoError(t, err)
	t2, err := domain.EncodeTeam(team2)
	require.NoError(t, err)
	match := &domain.Match{Team1PlayersJSON: t1, Team2PlayersJSON: t2}

	assert.Len(t, match.Participants(), 10)
	assert.True(t, match.HasParticipant("ALICE "))
	assert.True(t, match.HasParticipant("boris"))
	assert.False(t, match.HasParticipant("mallory"))
}

func TestMatchStatusIsTerminal(t *testing.T) {
	assert.True(t, domain.MatchStatusCompleted.IsTerminal())
	assert.True(t, domain.MatchStatusCancelled.IsTerminal())
	assert.False(t, domain.MatchStatusPendingAccept.IsTerminal())
	assert.False(t, domain.MatchStatusDraft.IsTerminal())
	assert.False(t, domain.MatchStatusInProgress.IsTerminal())
}

func TestAverageMMR(t *testing.T) {
	team := testutil.MakeTeam(t,
		[]string{"a", "b", "c", "d", "e"},
		[]int{1000, 1100, 1200, 1300, 1400})
	assert.Equal(t, 1200, domain.AverageMMR(team))
	assert.Equal(t, 0, domain.AverageMMR(nil))
}

func TestNormalizeSummonerName(t *testing.T) {
	assert.Equal(t, "alice", domain.NormalizeSummonerName("  Alice "))
	assert.Equal(t, "player_alice", domain.CustomSessionID("ALICE"))
}
