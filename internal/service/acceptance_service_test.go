package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/service"
	"github.com/riftbridge/custom-match-core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acceptanceRecorder struct {
	mu       sync.Mutex
	requeued []domain.QueueEntry
	started  []*domain.Match
}

func (r *acceptanceRecorder) requeue(_ context.Context, entry domain.QueueEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requeued = append(r.requeued, entry)
}

func (r *acceptanceRecorder) startDraft(_ context.Context, match *domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, match)
	return nil
}

func (r *acceptanceRecorder) snapshot() ([]domain.QueueEntry, []*domain.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.QueueEntry(nil), r.requeued...), append([]*domain.Match(nil), r.started...)
}

func cohortFor(match *domain.Match, t *testing.T) []domain.QueueEntry {
	t.Helper()
	var cohort []domain.QueueEntry
	joined := time.Now().UTC().Add(-time.Minute)
	for _, name := range match.Participants() {
		cohort = append(cohort, domain.QueueEntry{
			SummonerName: name,
			Region:       "euw",
			PrimaryLane:  domain.LaneFill,
			JoinedAt:     joined,
		})
	}
	return cohort
}

func TestAcceptanceAllAcceptStartsDraft(t *testing.T) {
	env := newTestEnv(t)
	rec := &acceptanceRecorder{}
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	svc.SetCallbacks(rec.requeue, rec.startDraft)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusPendingAccept, 1200)
	svc.StartAcceptance(ctx, match, cohortFor(match, t))

	for _, name := range match.Participants() {
		require.NoError(t, svc.AcceptMatch(ctx, match.ID, name))
	}

	requeued, started := rec.snapshot()
	assert.Empty(t, requeued)
	require.Len(t, started, 1)

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusDraft, stored.Status)
}

func TestAcceptanceDeclineCancelsAndRequeuesOthers(t *testing.T) {
	env := newTestEnv(t)
	rec := &acceptanceRecorder{}
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	svc.SetCallbacks(rec.requeue, rec.startDraft)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusPendingAccept, 1200)
	cohort := cohortFor(match, t)
	svc.StartAcceptance(ctx, match, cohort)

	require.NoError(t, svc.DeclineMatch(ctx, match.ID, "alice0"))

	stored, err := env.Repos.Match.GetByID(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchStatusCancelled, stored.Status)

	requeued, started := rec.snapshot()
	assert.Empty(t, started)
	require.Len(t, requeued, 9, "everyone but the decliner requeues")
	for _, entry := range requeued {
		assert.NotEqual(t, "alice0", entry.SummonerName)
		// Queue position is preserved: the original JoinedAt survives.
		assert.Equal(t, cohort[0].JoinedAt.Unix(), entry.JoinedAt.Unix())
	}

	// The decliner picks up a strike.
	count, err := env.Store.Get(ctx, kv.DeclineCountKey("alice0"))
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestAcceptanceTimeoutBlamesPending(t *testing.T) {
	env := newTestEnv(t)
	rec := &acceptanceRecorder{}
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, 100*time.Millisecond)
	svc.SetCallbacks(rec.requeue, rec.startDraft)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusPendingAccept, 1200)
	svc.StartAcceptance(ctx, match, cohortFor(match, t))

	// Nine accept, one goes silent.
	participants := match.Participants()
	for _, name := range participants[:9] {
		require.NoError(t, svc.AcceptMatch(ctx, match.ID, name))
	}

	require.Eventually(t, func() bool {
		stored, err := env.Repos.Match.GetByID(ctx, match.ID)
		return err == nil && stored.Status == domain.MatchStatusCancelled
	}, 2*time.Second, 20*time.Millisecond)

	requeued, started := rec.snapshot()
	assert.Empty(t, started)
	assert.Len(t, requeued, 9, "the accepters requeue, the silent player does not")
	for _, entry := range requeued {
		assert.NotEqual(t, participants[9], entry.SummonerName)
	}
}

func TestMatchFoundCarriesTeamsAndDeadline(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusPendingAccept, 1200)
	before := time.Now()
	svc.StartAcceptance(ctx, match, cohortFor(match, t))

	events, err := env.Outbox.GetPendingEvents(ctx, "player_alice0")
	require.NoError(t, err)

	var found *struct {
		Data struct {
			MatchID       int64               `json:"matchId"`
			Team1         []domain.TeamPlayer `json:"team1"`
			Team2         []domain.TeamPlayer `json:"team2"`
			AvgMmrPerTeam map[string]int      `json:"avgMmrPerTeam"`
			Deadline      int64               `json:"deadline"`
		} `json:"data"`
	}
	for _, e := range events {
		if e.Type == gateway.TypeMatchFound {
			require.NoError(t, json.Unmarshal(e.Payload, &found))
		}
	}
	require.NotNil(t, found, "expected a match_found event")
	assert.Equal(t, match.ID, found.Data.MatchID)
	assert.Len(t, found.Data.Team1, 5)
	assert.Len(t, found.Data.Team2, 5)
	assert.Equal(t, 1200, found.Data.AvgMmrPerTeam["team1"])
	assert.Equal(t, 1200, found.Data.AvgMmrPerTeam["team2"])

	// The accept deadline is an absolute instant one window out.
	assert.GreaterOrEqual(t, found.Data.Deadline, before.Add(59*time.Second).UnixMilli())
	assert.LessOrEqual(t, found.Data.Deadline, time.Now().Add(time.Minute).UnixMilli())
}

func TestAcceptanceProgressReportsFraction(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusPendingAccept, 1200)
	svc.StartAcceptance(ctx, match, cohortFor(match, t))

	participants := match.Participants()
	for _, name := range participants[:4] {
		require.NoError(t, svc.AcceptMatch(ctx, match.ID, name))
	}

	events, err := env.Outbox.GetPendingEvents(ctx, "player_"+participants[9])
	require.NoError(t, err)

	var progress *struct {
		Data struct {
			MatchID  int64   `json:"matchId"`
			Accepted int     `json:"accepted"`
			Total    int     `json:"total"`
			Progress float64 `json:"progress"`
		} `json:"data"`
	}
	for _, e := range events {
		if e.Type == gateway.TypeMatchAcceptProgress {
			require.NoError(t, json.Unmarshal(e.Payload, &progress))
		}
	}
	require.NotNil(t, progress, "expected a match_acceptance_progress event")
	assert.Equal(t, match.ID, progress.Data.MatchID)
	assert.Equal(t, 4, progress.Data.Accepted)
	assert.Equal(t, 10, progress.Data.Total)
	assert.InDelta(t, 0.4, progress.Data.Progress, 1e-9)
}

func TestAcceptMatchRejectsWrongStatus(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	ctx := context.Background()

	match, _, _ := testutil.MakeMatch(t, env.DB.DB, domain.MatchStatusDraft, 1200)
	err := svc.AcceptMatch(ctx, match.ID, "alice0")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestBotsAutoAccept(t *testing.T) {
	env := newTestEnv(t)
	rec := &acceptanceRecorder{}
	svc := service.NewAcceptanceService(env.Store, env.Repos.Match, env.Broadcaster, time.Minute)
	svc.SetCallbacks(rec.requeue, rec.startDraft)
	ctx := context.Background()

	// Five humans, five bots on the other team.
	var names1, names2 []string
	mmrs := make([]int, 5)
	for i := 0; i < 5; i++ {
		names1 = append(names1, "human"+string(rune('a'+i)))
		names2 = append(names2, "bot_"+string(rune('a'+i)))
		mmrs[i] = 1200
	}
	team1 := testutil.MakeTeam(t, names1, mmrs)
	team2 := testutil.MakeTeam(t, names2, mmrs)
	t1JSON, err := domain.EncodeTeam(team1)
	require.NoError(t, err)
	t2JSON, err := domain.EncodeTeam(team2)
	require.NoError(t, err)
	match := &domain.Match{Status: domain.MatchStatusPendingAccept, Team1PlayersJSON: t1JSON, Team2PlayersJSON: t2JSON}
	require.NoError(t, env.Repos.Match.Create(ctx, match))

	svc.StartAcceptance(ctx, match, cohortFor(match, t))

	// Only the humans act.
	for _, name := range names1 {
		require.NoError(t, svc.AcceptMatch(ctx, match.ID, name))
	}

	_, started := rec.snapshot()
	require.Len(t, started, 1, "bot team must have auto-accepted")
}
