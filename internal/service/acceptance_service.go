package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository"
)

const declineCountTTL = time.Hour

// RequeueFunc puts a queue entry back in the pool, keeping its JoinedAt so
// the player does not lose their place.
type RequeueFunc func(ctx context.Context, entry domain.QueueEntry)

// DraftStarterFunc transitions a fully accepted match into the draft stage.
type DraftStarterFunc func(ctx context.Context, match *domain.Match) error

// AcceptanceService runs the ready-check window between match formation and
// draft: every human must accept before the deadline; bots accept
// immediately. Accept state lives in the KV store so any backend can answer.
type AcceptanceService struct {
	store       kv.Store
	matches     repository.MatchRepository
	broadcaster *gateway.Broadcaster
	timeout     time.Duration

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	entries map[int64]map[string]domain.QueueEntry

	requeue    RequeueFunc
	startDraft DraftStarterFunc
}

func NewAcceptanceService(store kv.Store, matches repository.MatchRepository, broadcaster *gateway.Broadcaster, timeout time.Duration) *AcceptanceService {
	return &AcceptanceService{
		store:       store,
		matches:     matches,
		broadcaster: broadcaster,
		timeout:     timeout,
		timers:      make(map[int64]*time.Timer),
		entries:     make(map[int64]map[string]domain.QueueEntry),
	}
}

// SetCallbacks wires the queue requeue path and the draft starter in after
// construction.
func (s *AcceptanceService) SetCallbacks(requeue RequeueFunc, startDraft DraftStarterFunc) {
	s.requeue = requeue
	s.startDraft = startDraft
}

// StartAcceptance opens the accept window for a freshly formed match.
func (s *AcceptanceService) StartAcceptance(ctx context.Context, match *domain.Match, cohort []domain.QueueEntry) {
	stateKey := kv.AcceptStateKey(match.ID)
	byName := make(map[string]domain.QueueEntry, len(cohort))
	for _, e := range cohort {
		byName[e.SummonerName] = e
		if err := s.store.HSet(ctx, stateKey, e.SummonerName, "pending"); err != nil {
			log.Printf("[accept] failed to init accept state for match %d: %v", match.ID, err)
		}
	}
	s.store.Expire(ctx, stateKey, s.timeout+time.Minute)

	s.mu.Lock()
	s.entries[match.ID] = byName
	s.timers[match.ID] = time.AfterFunc(s.timeout, func() {
		s.expire(match.ID)
	})
	s.mu.Unlock()

	team1, _ := match.Team1Players()
	team2, _ := match.Team2Players()
	secs := int(s.timeout.Seconds())
	event := gateway.NewEvent(gateway.TypeMatchFound, map[string]any{
		"matchId": match.ID,
		"team1":   json.RawMessage(match.Team1PlayersJSON),
		"team2":   json.RawMessage(match.Team2PlayersJSON),
		"avgMmrPerTeam": map[string]int{
			"team1": domain.AverageMMR(team1),
			"team2": domain.AverageMMR(team2),
		},
		"deadline": time.Now().Add(s.timeout).UnixMilli(),
	})
	event.TimeRemaining = &secs
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[accept] match_found broadcast failed for match %d: %v", match.ID, err)
	}

	// Bots never hesitate.
	for name := range byName {
		if domain.IsBot(name) {
			if err := s.AcceptMatch(ctx, match.ID, name); err != nil {
				log.Printf("[accept] bot %q auto-accept failed: %v", name, err)
			}
		}
	}
}

// AcceptMatch records one acceptance and starts the draft once all ten are
// in.
func (s *AcceptanceService) AcceptMatch(ctx context.Context, matchID int64, summonerName string) error {
	name := domain.NormalizeSummonerName(summonerName)
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.ErrMatchNotFound
	}
	if match.Status != domain.MatchStatusPendingAccept {
		return domain.ErrInvalidStatus
	}

	stateKey := kv.AcceptStateKey(matchID)
	if err := s.store.HSet(ctx, stateKey, name, "accepted"); err != nil {
		return err
	}

	state, err := s.store.HGetAll(ctx, stateKey)
	if err != nil {
		return err
	}
	accepted := acceptedNames(state)
	log.Printf("[accept] %q accepted match %d (%d/%d)", name, matchID, len(accepted), len(state))

	progress := 0.0
	if len(state) > 0 {
		progress = float64(len(accepted)) / float64(len(state))
	}
	event := gateway.NewEvent(gateway.TypeMatchAcceptProgress, map[string]any{
		"matchId":         matchID,
		"accepted":        len(accepted),
		"total":           len(state),
		"progress":        progress,
		"acceptedPlayers": accepted,
	})
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[accept] progress broadcast failed for match %d: %v", matchID, err)
	}

	if len(accepted) == len(state) && len(state) > 0 {
		s.complete(ctx, match)
	}
	return nil
}

// DeclineMatch cancels the match, penalizes the decliner and requeues
// everyone else with their original queue position.
func (s *AcceptanceService) DeclineMatch(ctx context.Context, matchID int64, summonerName string) error {
	name := domain.NormalizeSummonerName(summonerName)
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.ErrMatchNotFound
	}
	if match.Status != domain.MatchStatusPendingAccept {
		return domain.ErrInvalidStatus
	}

	count, err := s.store.Incr(ctx, kv.DeclineCountKey(name))
	if err == nil {
		s.store.Expire(ctx, kv.DeclineCountKey(name), declineCountTTL)
		log.Printf("[accept] %q declined match %d (decline #%d)", name, matchID, count)
	}

	s.cancel(ctx, match, []string{name}, "declined")
	return nil
}

// expire fires when the window closes with players still pending. They are
// treated as decliners.
func (s *AcceptanceService) expire(matchID int64) {
	ctx := context.Background()
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil || match.Status != domain.MatchStatusPendingAccept {
		return
	}

	state, err := s.store.HGetAll(ctx, kv.AcceptStateKey(matchID))
	if err != nil {
		log.Printf("[accept] failed to read accept state for expired match %d: %v", matchID, err)
		return
	}
	var pending []string
	for player, status := range state {
		if status != "accepted" {
			pending = append(pending, player)
			if _, err := s.store.Incr(ctx, kv.DeclineCountKey(player)); err == nil {
				s.store.Expire(ctx, kv.DeclineCountKey(player), declineCountTTL)
			}
		}
	}
	if len(pending) == 0 {
		return
	}
	sort.Strings(pending)
	log.Printf("[accept] match %d expired with %d unresponsive players", matchID, len(pending))
	s.cancel(ctx, match, pending, "accept_timeout")
}

// complete moves the match to draft once everyone accepted.
func (s *AcceptanceService) complete(ctx context.Context, match *domain.Match) {
	s.stopTimer(match.ID)

	match.Status = domain.MatchStatusDraft
	if err := s.matches.Update(ctx, match); err != nil {
		log.Printf("[accept] failed to transition match %d to draft: %v", match.ID, err)
		return
	}
	s.store.Del(ctx, kv.AcceptStateKey(match.ID))
	s.forget(match.ID)

	event := gateway.NewEvent(gateway.TypeMatchAccepted, map[string]any{"matchId": match.ID})
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[accept] match_accepted broadcast failed for match %d: %v", match.ID, err)
	}

	if s.startDraft != nil {
		if err := s.startDraft(ctx, match); err != nil {
			log.Printf("[accept] draft start failed for match %d: %v", match.ID, err)
		}
	}
}

// cancel tears the match down and requeues the innocent players ahead of
// newcomers.
func (s *AcceptanceService) cancel(ctx context.Context, match *domain.Match, culprits []string, reason string) {
	s.stopTimer(match.ID)

	match.Status = domain.MatchStatusCancelled
	if err := s.matches.Update(ctx, match); err != nil {
		log.Printf("[accept] failed to cancel match %d: %v", match.ID, err)
	}
	s.store.Del(ctx, kv.AcceptStateKey(match.ID))

	blamed := make(map[string]bool, len(culprits))
	for _, c := range culprits {
		blamed[c] = true
	}

	event := gateway.NewEvent(gateway.TypeMatchCancelled, map[string]any{
		"matchId": match.ID,
		"reason":  reason,
	})
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[accept] cancel broadcast failed for match %d: %v", match.ID, err)
	}

	s.mu.Lock()
	byName := s.entries[match.ID]
	delete(s.entries, match.ID)
	s.mu.Unlock()

	if s.requeue != nil {
		for name, entry := range byName {
			if blamed[name] {
				continue
			}
			s.requeue(ctx, entry)
		}
	}
}

func acceptedNames(state map[string]string) []string {
	var names []string
	for player, status := range state {
		if status == "accepted" {
			names = append(names, player)
		}
	}
	sort.Strings(names)
	return names
}

func (s *AcceptanceService) stopTimer(matchID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[matchID]; ok {
		t.Stop()
		delete(s.timers, matchID)
	}
}

func (s *AcceptanceService) forget(matchID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, matchID)
}
