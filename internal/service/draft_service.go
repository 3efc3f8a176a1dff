package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/repository"
)

// Rejection is a draft action refused for a protocol reason. The reason code
// travels back to the client verbatim.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Rejection reasons.
const (
	ReasonNotExpectedPlayer      = "not_expected_player"
	ReasonWrongActionIndex       = "wrong_action_index"
	ReasonActionAlreadyCompleted = "action_already_completed"
	ReasonChampionAlreadyUsed    = "champion_already_used"
	ReasonInvalidChampion        = "invalid_champion"
	ReasonInvalidMatchState      = "invalid_match_state"
)

// fillerChampions resolves picks that time out. Deterministic order so every
// backend replays an abandoned draft identically.
var fillerChampions = []string{
	"garen", "annie", "ashe", "ryze", "soraka",
	"warwick", "nunu", "masteryi", "sivir", "sona",
}

// OwnershipClaimer takes the exclusive processing lease on a match before
// this backend runs its timers.
type OwnershipClaimer interface {
	ClaimMatchOwnership(ctx context.Context, matchID int64) error
}

type draftRun struct {
	mu       sync.Mutex
	match    *domain.Match
	snapshot *domain.DraftSnapshot
	timer    *time.Timer
	deadline time.Time
	confirms map[string]bool
}

// DraftService drives the twenty-step tournament draft. The persisted
// snapshot is the source of truth; the in-memory run only adds the step
// timer and the confirm tally.
type DraftService struct {
	matches     repository.MatchRepository
	broadcaster *gateway.Broadcaster
	ownership   OwnershipClaimer
	stepTimeout time.Duration

	mu   sync.Mutex
	runs map[int64]*draftRun
}

func NewDraftService(matches repository.MatchRepository, broadcaster *gateway.Broadcaster, ownership OwnershipClaimer, stepTimeout time.Duration) *DraftService {
	return &DraftService{
		matches:     matches,
		broadcaster: broadcaster,
		ownership:   ownership,
		stepTimeout: stepTimeout,
		runs:        make(map[int64]*draftRun),
	}
}

// StartDraft builds the initial snapshot for a freshly accepted match and
// opens step one.
func (s *DraftService) StartDraft(ctx context.Context, match *domain.Match) error {
	if err := s.ownership.ClaimMatchOwnership(ctx, match.ID); err != nil {
		return err
	}

	team1, err := match.Team1Players()
	if err != nil {
		return err
	}
	team2, err := match.Team2Players()
	if err != nil {
		return err
	}
	snapshot := domain.NewDraftSnapshot(team1, team2)
	if err := s.persist(ctx, match, snapshot); err != nil {
		return err
	}

	log.Printf("[draft] starting draft for match %d", match.ID)
	s.openRun(ctx, match, snapshot)
	return nil
}

// ResumeDraft rebuilds the run from the persisted snapshot after this
// backend took over an abandoned match.
func (s *DraftService) ResumeDraft(ctx context.Context, match *domain.Match) error {
	if match.Status != domain.MatchStatusDraft {
		return domain.ErrInvalidStatus
	}
	var snapshot *domain.DraftSnapshot
	if len(match.PickBanDataJSON) > 0 {
		var err error
		if snapshot, err = domain.DecodeDraftSnapshot(match.PickBanDataJSON); err != nil {
			return err
		}
	} else {
		team1, err := match.Team1Players()
		if err != nil {
			return err
		}
		team2, err := match.Team2Players()
		if err != nil {
			return err
		}
		snapshot = domain.NewDraftSnapshot(team1, team2)
		if err := s.persist(ctx, match, snapshot); err != nil {
			return err
		}
	}

	log.Printf("[draft] resuming match %d at step %d", match.ID, snapshot.CurrentIndex)
	s.openRun(ctx, match, snapshot)
	return nil
}

func (s *DraftService) openRun(ctx context.Context, match *domain.Match, snapshot *domain.DraftSnapshot) {
	run := &draftRun{
		match:    match,
		snapshot: snapshot,
		confirms: make(map[string]bool),
	}
	s.mu.Lock()
	prev := s.runs[match.ID]
	s.runs[match.ID] = run
	s.mu.Unlock()

	// A replaced run's armed timer must not fire into the new run.
	if prev != nil {
		prev.mu.Lock()
		s.stopTimerLocked(prev)
		prev.mu.Unlock()
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if snapshot.IsComplete() {
		s.enterConfirmStageLocked(ctx, run)
		return
	}
	s.armTimerLocked(run)
	s.broadcastLocked(ctx, run)
}

// ProcessAction validates and applies one ban or pick.
func (s *DraftService) ProcessAction(ctx context.Context, matchID int64, actionIndex int, championID, championName, byPlayer string) error {
	run := s.getRun(matchID)
	if run == nil {
		return &Rejection{Reason: ReasonInvalidMatchState}
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	snap := run.snapshot
	if run.match.Status != domain.MatchStatusDraft || snap.IsComplete() {
		return &Rejection{Reason: ReasonInvalidMatchState}
	}
	if actionIndex != snap.CurrentIndex {
		return &Rejection{Reason: ReasonWrongActionIndex}
	}
	if domain.NormalizeSummonerName(byPlayer) != snap.ExpectedActor(actionIndex) {
		return &Rejection{Reason: ReasonNotExpectedPlayer}
	}
	action := snap.FindAction(actionIndex)
	if action == nil || action.Status == domain.ActionStatusCompleted {
		return &Rejection{Reason: ReasonActionAlreadyCompleted}
	}
	if championID == "" {
		return &Rejection{Reason: ReasonInvalidChampion}
	}
	if snap.ChampionUsed(championID) {
		return &Rejection{Reason: ReasonChampionAlreadyUsed}
	}

	return s.applyActionLocked(ctx, run, action, championID, championName)
}

// applyActionLocked commits the action, persists the snapshot, advances the
// turn and rebroadcasts. Caller holds run.mu.
func (s *DraftService) applyActionLocked(ctx context.Context, run *draftRun, action *domain.SnapshotAction, championID, championName string) error {
	id := championID
	action.ChampionID = &id
	action.ChampionName = championName
	action.Status = domain.ActionStatusCompleted
	run.snapshot.SetCurrentIndex(run.snapshot.CurrentIndex + 1)

	if err := s.persist(ctx, run.match, run.snapshot); err != nil {
		return err
	}

	if run.snapshot.IsComplete() {
		s.enterConfirmStageLocked(ctx, run)
		return nil
	}
	s.armTimerLocked(run)
	s.broadcastLocked(ctx, run)
	return nil
}

// onStepTimeout auto-resolves the current step: bans are skipped, picks get
// the first unused filler champion. The timer is bound to the run it was
// armed on, so a callback from a replaced or aborted run is ignored.
func (s *DraftService) onStepTimeout(run *draftRun, expectedIndex int) {
	matchID := run.match.ID
	if s.getRun(matchID) != run {
		return
	}
	ctx := context.Background()

	run.mu.Lock()
	defer run.mu.Unlock()

	// Re-check under the lock: an abort or takeover may have raced the
	// firing timer.
	if s.getRun(matchID) != run {
		return
	}
	snap := run.snapshot
	if snap.IsComplete() || snap.CurrentIndex != expectedIndex {
		return
	}
	action := snap.FindAction(snap.CurrentIndex)
	if action == nil || action.Status == domain.ActionStatusCompleted {
		return
	}

	championID := domain.SkippedBanChampion
	championName := "Skipped"
	if action.Type == domain.ActionTypePick {
		championID = s.pickFillerLocked(snap)
		championName = championID
	}
	log.Printf("[draft] match %d step %d timed out, auto-resolving %s with %q",
		matchID, snap.CurrentIndex, action.Type, championID)
	if err := s.applyActionLocked(ctx, run, action, championID, championName); err != nil {
		log.Printf("[draft] auto-resolve failed for match %d: %v", matchID, err)
	}
}

func (s *DraftService) pickFillerLocked(snap *domain.DraftSnapshot) string {
	for _, champ := range fillerChampions {
		if !snap.ChampionUsed(champ) {
			return champ
		}
	}
	return fillerChampions[0]
}

// enterConfirmStageLocked announces game_ready and waits for all ten
// confirmations. Bots confirm on the spot. Caller holds run.mu.
func (s *DraftService) enterConfirmStageLocked(ctx context.Context, run *draftRun) {
	s.stopTimerLocked(run)

	participants := run.match.Participants()
	for _, name := range participants {
		if domain.IsBot(name) {
			run.confirms[name] = true
		}
	}

	event := gateway.NewEvent(gateway.TypeGameReady, map[string]any{
		"matchId":  run.match.ID,
		"pickBans": run.snapshot,
	})
	if err := s.broadcaster.Broadcast(ctx, participants, event); err != nil {
		log.Printf("[draft] game_ready broadcast failed for match %d: %v", run.match.ID, err)
	}
}

// ConfirmDraft records one player's lobby confirmation; the last one starts
// the game.
func (s *DraftService) ConfirmDraft(ctx context.Context, matchID int64, summonerName string) error {
	run := s.getRun(matchID)
	if run == nil {
		return domain.ErrMatchNotFound
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if !run.snapshot.IsComplete() {
		return &Rejection{Reason: ReasonInvalidMatchState}
	}
	run.confirms[domain.NormalizeSummonerName(summonerName)] = true

	participants := run.match.Participants()
	for _, name := range participants {
		if !run.confirms[name] {
			return nil
		}
	}

	run.match.Status = domain.MatchStatusInProgress
	if err := s.matches.Update(ctx, run.match); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.runs, matchID)
	s.mu.Unlock()

	log.Printf("[draft] match %d fully confirmed, game starting", matchID)
	event := gateway.NewEvent(gateway.TypeGameStarted, map[string]any{"matchId": matchID})
	if err := s.broadcaster.Broadcast(ctx, participants, event); err != nil {
		log.Printf("[draft] game_started broadcast failed for match %d: %v", matchID, err)
	}
	return nil
}

// Snapshot returns the live snapshot and the seconds left on the current
// step.
func (s *DraftService) Snapshot(ctx context.Context, matchID int64) (*domain.DraftSnapshot, int, error) {
	run := s.getRun(matchID)
	if run != nil {
		run.mu.Lock()
		defer run.mu.Unlock()
		return run.snapshot, run.remainingLocked(), nil
	}

	// Not running here; serve the persisted snapshot read-only.
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, 0, domain.ErrMatchNotFound
	}
	if len(match.PickBanDataJSON) == 0 {
		return nil, 0, domain.ErrInvalidStatus
	}
	snap, err := domain.DecodeDraftSnapshot(match.PickBanDataJSON)
	if err != nil {
		return nil, 0, err
	}
	return snap, 0, nil
}

// Stop cancels every live step timer. Used on orderly shutdown; the
// persisted snapshots let another backend resume.
func (s *DraftService) Stop() {
	s.mu.Lock()
	runs := make([]*draftRun, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.runs = make(map[int64]*draftRun)
	s.mu.Unlock()

	for _, run := range runs {
		run.mu.Lock()
		s.stopTimerLocked(run)
		run.mu.Unlock()
	}
}

// AbortRun tears down the in-memory run for a match without touching the
// persisted snapshot. Called when the processing lease is lost; whichever
// backend holds the lease resumes from the snapshot.
func (s *DraftService) AbortRun(matchID int64) {
	s.mu.Lock()
	run := s.runs[matchID]
	delete(s.runs, matchID)
	s.mu.Unlock()
	if run == nil {
		return
	}
	run.mu.Lock()
	s.stopTimerLocked(run)
	run.mu.Unlock()
	log.Printf("[draft] aborted run for match %d", matchID)
}

func (s *DraftService) getRun(matchID int64) *draftRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[matchID]
}

func (s *DraftService) persist(ctx context.Context, match *domain.Match, snapshot *domain.DraftSnapshot) error {
	raw, err := snapshot.Encode()
	if err != nil {
		return err
	}
	match.PickBanDataJSON = raw
	return s.matches.Update(ctx, match)
}

func (s *DraftService) armTimerLocked(run *draftRun) {
	s.stopTimerLocked(run)
	index := run.snapshot.CurrentIndex
	run.deadline = time.Now().Add(s.stepTimeout)
	run.timer = time.AfterFunc(s.stepTimeout, func() {
		s.onStepTimeout(run, index)
	})
}

func (s *DraftService) stopTimerLocked(run *draftRun) {
	if run.timer != nil {
		run.timer.Stop()
		run.timer = nil
	}
}

func (run *draftRun) remainingLocked() int {
	if run.timer == nil {
		return 0
	}
	left := time.Until(run.deadline)
	if left < 0 {
		return 0
	}
	return int(left.Seconds())
}

func (s *DraftService) broadcastLocked(ctx context.Context, run *draftRun) {
	remaining := run.remainingLocked()
	event := gateway.NewEvent(gateway.TypeDraftUpdated, run.snapshot)
	event.TimeRemaining = &remaining
	if err := s.broadcaster.Broadcast(ctx, run.match.Participants(), event); err != nil {
		log.Printf("[draft] draft_updated broadcast failed for match %d: %v", run.match.ID, err)
	}
}
