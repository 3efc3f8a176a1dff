package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/service"
	"github.com/riftbridge/custom-match-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGameClient serves a canned external-game payload, as a player's local
// client would.
type fakeGameClient struct {
	status int
	body   string
	calls  int
}

func (f *fakeGameClient) CallGameClient(_ context.Context, _, _, _ string, _ json.RawMessage, _ time.Duration) (*gateway.RPCResult, error) {
	f.calls++
	status := f.status
	if status == 0 {
		status = 200
	}
	return &gateway.RPCResult{Status: status, Body: json.RawMessage(f.body)}, nil
}

func team1WinsPayload() string {
	return `{"gameId":991234,"teams":[{"teamId":100,"win":"Win"},{"teamId":200,"win":"Fail"}]}`
}

func newVotingEnv(t *testing.T, client *fakeGameClient) (*testEnv, *service.VotingService, *domain.Match) {
	t.Helper()
	env := newTestEnv(t)
	cfg := testutil.TestConfig()

	match, team1, team2 := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusInProgress, 1200)
	for _, tp := range append(team1, team2...) {
		testutil.NewPlayerBuilder().WithSummonerName(tp.SummonerName).WithMMR(tp.MMR).Build(t, env.DB.DB)
	}
	testutil.NewPlayerBuilder().WithSummonerName("the referee").Build(t, env.DB.DB)

	supervisor := service.NewSupervisorService(env.Store, env.Repos.Match, env.Repos.EventInbox, env.Broadcaster, cfg.BackendID, cfg.OwnershipTTL)
	voting := service.NewVotingService(env.Repos, env.Broadcaster, client, supervisor, cfg)
	return env, voting, match
}

func TestFiveAgreeingVotesLinkTheMatch(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	participants := match.Participants()
	for _, name := range participants[:4] {
		require.NoError(t, voting.CastVote(ctx, match.ID, name, "991234"))
	}

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusInProgress, stored.Status, "four votes are not enough")
	assert.Zero(t, client.calls)

	require.NoError(t, voting.CastVote(ctx, match.ID, participants[4], "991234"))

	stored, err = env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusCompleted, stored.Status)
	require.NotNil(t, stored.LinkedExternalGameID)
	assert.Equal(t, "991234", *stored.LinkedExternalGameID)
	require.NotNil(t, stored.WinnerTeam)
	assert.Equal(t, 1, *stored.WinnerTeam)
	assert.Equal(t, 1, client.calls)

	// Winners gained, losers lost.
	var changes map[string]int
	require.NoError(t, json.Unmarshal(stored.LPChangesJSON, &changes))
	require.Len(t, changes, 10)
	winner, err := env.Repos.Player.GetBySummonerName(ctx, "alice0")
	require.NoError(t, err)
	assert.Greater(t, winner.CustomLP, 0)
	assert.Equal(t, 1, winner.CustomWins)
	loser, err := env.Repos.Player.GetBySummonerName(ctx, "bob0")
	require.NoError(t, err)
	assert.Less(t, loser.CustomLP, 0)
	assert.Equal(t, 1, loser.CustomLosses)

	// Votes are cleared once settled.
	votes, err := env.Repos.Vote.GetByMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestSplitVotesDoNotLink(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	participants := match.Participants()
	for i, name := range participants[:6] {
		gid := "991234"
		if i%2 == 1 {
			gid = "995678"
		}
		require.NoError(t, voting.CastVote(ctx, match.ID, name, gid))
	}

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusInProgress, stored.Status, "3-3 split must not link")
	assert.Zero(t, client.calls)
}

func TestChangedVoteReplacesOldOne(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	participants := match.Participants()
	require.NoError(t, voting.CastVote(ctx, match.ID, participants[0], "111111"))
	require.NoError(t, voting.CastVote(ctx, match.ID, participants[0], "991234"))

	votes, err := env.Repos.Vote.GetByMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1, "revoting replaces, never duplicates")
	assert.Equal(t, "991234", votes[0].ExternalGameID)
}

func TestPrivilegedVoterLinksImmediately(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	require.NoError(t, voting.CastVote(ctx, match.ID, "The Referee", "991234"))

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusCompleted, stored.Status)
	assert.Equal(t, 1, client.calls)
}

func TestVoteOnLinkedMatchRejected(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	_, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	require.NoError(t, voting.CastVote(ctx, match.ID, "The Referee", "991234"))

	err := voting.CastVote(ctx, match.ID, "alice0", "991234")
	assert.ErrorIs(t, err, domain.ErrAlreadyLinked)
}

func TestFailedFetchLeavesMatchVotable(t *testing.T) {
	client := &fakeGameClient{status: 404, body: `{}`}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	err := voting.CastVote(ctx, match.ID, "The Referee", "991234")
	require.Error(t, err)

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusInProgress, stored.Status)
	assert.Nil(t, stored.LinkedExternalGameID)

	// The vote itself survived for the next attempt.
	votes, verr := env.Repos.Vote.GetByMatch(ctx, match.ID)
	require.NoError(t, verr)
	assert.Len(t, votes, 1)
}

func TestVoteProgressReachesPlayers(t *testing.T) {
	client := &fakeGameClient{body: team1WinsPayload()}
	env, voting, match := newVotingEnv(t, client)
	ctx := context.Background()

	require.NoError(t, voting.CastVote(ctx, match.ID, "alice0", "991234"))

	events, err := env.Outbox.GetPendingEvents(ctx, "player_bob3")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	found := false
	for _, e := range events {
		if e.Type == gateway.TypeMatchVoteProgress {
			found = true
			var frame struct {
				Data struct {
					Votes  map[string]int `json:"votes"`
					Voters []string       `json:"voters"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(e.Payload, &frame))
			assert.Equal(t, 1, frame.Data.Votes["991234"])
			assert.Equal(t, []string{"alice0"}, frame.Data.Voters)
		}
	}
	assert.True(t, found, fmt.Sprintf("expected a %s event", gateway.TypeMatchVoteProgress))
}
