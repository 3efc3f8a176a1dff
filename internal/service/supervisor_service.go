package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository"
	"gorm.io/datatypes"
)

const inboxBatchSize = 50

// DraftResumerFunc restarts the draft engine for a match this backend just
// took over.
type DraftResumerFunc func(ctx context.Context, match *domain.Match) error

// DraftAborterFunc tears down the local draft run for a match whose lease
// this backend no longer holds.
type DraftAborterFunc func(matchID int64)

// inboxEnvelope is the payload shape of an event_inbox row: the event plus
// the players it was addressed to.
type inboxEnvelope struct {
	Targets []string        `json:"targets"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// SupervisorService owns the backend liveness beacon, the per-match
// processing lease and recovery of matches abandoned by crashed backends.
// Ownership is fail-stop: when the lease cannot be confirmed the backend
// stops acting instead of fencing.
type SupervisorService struct {
	store       kv.Store
	matches     repository.MatchRepository
	inbox       repository.EventInboxRepository
	broadcaster *gateway.Broadcaster
	backendID   string
	ttl         time.Duration

	mu     sync.Mutex
	owned  map[int64]bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	resume DraftResumerFunc
	abort  DraftAborterFunc
}

func NewSupervisorService(store kv.Store, matches repository.MatchRepository, inbox repository.EventInboxRepository, broadcaster *gateway.Broadcaster, backendID string, ownershipTTL time.Duration) *SupervisorService {
	return &SupervisorService{
		store:       store,
		matches:     matches,
		inbox:       inbox,
		broadcaster: broadcaster,
		backendID:   backendID,
		ttl:         ownershipTTL,
		owned:       make(map[int64]bool),
		stopCh:      make(chan struct{}),
	}
}

// SetResumer wires the draft engine's recovery entry point in after
// construction.
func (s *SupervisorService) SetResumer(fn DraftResumerFunc) {
	s.resume = fn
}

// SetAborter wires the draft engine's teardown entry point in after
// construction.
func (s *SupervisorService) SetAborter(fn DraftAborterFunc) {
	s.abort = fn
}

// Start launches the heartbeat/recovery loop. Half the TTL keeps leases from
// lapsing between beats.
func (s *SupervisorService) Start(ctx context.Context) {
	s.beat(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.beat(ctx)
				s.recoverAbandoned(ctx)
				s.pollInbox(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and releases everything this backend holds.
func (s *SupervisorService) Stop(ctx context.Context) {
	close(s.stopCh)
	s.wg.Wait()
	s.ReleaseAll(ctx)
}

// beat refreshes the liveness beacon and every owned lease. A lease found in
// another backend's hands is dropped locally.
func (s *SupervisorService) beat(ctx context.Context) {
	if err := s.store.Set(ctx, kv.BackendAliveKey(s.backendID), "1", s.ttl); err != nil {
		log.Printf("[supervisor] failed to refresh liveness beacon: %v", err)
	}

	for _, matchID := range s.ownedMatches() {
		holder, err := s.store.Get(ctx, kv.MatchOwnerKey(matchID))
		if err != nil || holder != s.backendID {
			log.Printf("[supervisor] lost ownership of match %d (holder %q)", matchID, holder)
			s.setOwned(matchID, false)
			if s.abort != nil {
				s.abort(matchID)
			}
			continue
		}
		if err := s.store.Expire(ctx, kv.MatchOwnerKey(matchID), s.ttl); err != nil {
			log.Printf("[supervisor] failed to refresh lease on match %d: %v", matchID, err)
		}
	}
}

// ClaimMatchOwnership takes the processing lease for a match. A lease held
// by a backend whose liveness beacon has lapsed is broken and re-claimed.
func (s *SupervisorService) ClaimMatchOwnership(ctx context.Context, matchID int64) error {
	key := kv.MatchOwnerKey(matchID)
	won, err := s.store.SetNX(ctx, key, s.backendID, s.ttl)
	if err != nil {
		return err
	}
	if !won {
		holder, err := s.store.Get(ctx, key)
		if err != nil && err != kv.ErrNotFound {
			return err
		}
		switch {
		case holder == s.backendID:
			if err := s.store.Expire(ctx, key, s.ttl); err != nil {
				return err
			}
		case s.backendAlive(ctx, holder):
			return domain.ErrOwnershipLost
		default:
			log.Printf("[supervisor] breaking stale lease on match %d (dead backend %q)", matchID, holder)
			if err := s.store.Del(ctx, key); err != nil {
				return err
			}
			if won, err = s.store.SetNX(ctx, key, s.backendID, s.ttl); err != nil {
				return err
			}
			if !won {
				return domain.ErrOwnershipLost
			}
		}
	}
	s.setOwned(matchID, true)
	return nil
}

// ReleaseMatch drops the lease if this backend still holds it.
func (s *SupervisorService) ReleaseMatch(ctx context.Context, matchID int64) error {
	key := kv.MatchOwnerKey(matchID)
	if holder, err := s.store.Get(ctx, key); err == nil && holder == s.backendID {
		if err := s.store.Del(ctx, key); err != nil {
			return err
		}
	}
	s.setOwned(matchID, false)
	return nil
}

// ReleaseAll drops every lease and the liveness beacon. Shutdown path.
func (s *SupervisorService) ReleaseAll(ctx context.Context) {
	for _, matchID := range s.ownedMatches() {
		if err := s.ReleaseMatch(ctx, matchID); err != nil {
			log.Printf("[supervisor] failed to release match %d: %v", matchID, err)
		}
	}
	if err := s.store.Del(ctx, kv.BackendAliveKey(s.backendID)); err != nil {
		log.Printf("[supervisor] failed to drop liveness beacon: %v", err)
	}
}

// ValidateOwnership checks that the summoner plays in the given non-terminal
// match.
func (s *SupervisorService) ValidateOwnership(ctx context.Context, summonerName string, matchID int64) error {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.ErrMatchNotFound
	}
	if !match.HasParticipant(summonerName) {
		return domain.ErrNotInMatch
	}
	return nil
}

// RestoreActiveMatch pushes the player's current match state after a
// reconnect, if they have one.
func (s *SupervisorService) RestoreActiveMatch(ctx context.Context, summonerName string) {
	name := domain.NormalizeSummonerName(summonerName)
	active, err := s.matches.GetByStatuses(ctx, []domain.MatchStatus{
		domain.MatchStatusPendingAccept,
		domain.MatchStatusDraft,
		domain.MatchStatusInProgress,
	})
	if err != nil {
		log.Printf("[supervisor] failed to scan active matches for %q: %v", name, err)
		return
	}

	for _, match := range active {
		if !match.HasParticipant(name) {
			continue
		}
		payload := map[string]any{
			"matchId":      match.ID,
			"status":       match.Status,
			"team1Players": json.RawMessage(match.Team1PlayersJSON),
			"team2Players": json.RawMessage(match.Team2PlayersJSON),
		}
		if len(match.PickBanDataJSON) > 0 {
			payload["pickBans"] = json.RawMessage(match.PickBanDataJSON)
		}
		event := gateway.NewEvent(gateway.TypeRestoreActiveMatch, payload)
		if err := s.broadcaster.SendToPlayer(ctx, name, event); err != nil {
			log.Printf("[supervisor] restore push failed for %q: %v", name, err)
		}
		log.Printf("[supervisor] restored %q into match %d (%s)", name, match.ID, match.Status)
		return
	}
}

// recoverAbandoned adopts drafts whose owning backend went dark and resumes
// their step timers here.
func (s *SupervisorService) recoverAbandoned(ctx context.Context) {
	if s.resume == nil {
		return
	}
	drafting, err := s.matches.GetByStatuses(ctx, []domain.MatchStatus{domain.MatchStatusDraft})
	if err != nil {
		log.Printf("[supervisor] abandoned-match scan failed: %v", err)
		return
	}

	for _, match := range drafting {
		if s.isOwned(match.ID) {
			continue
		}
		holder, err := s.store.Get(ctx, kv.MatchOwnerKey(match.ID))
		if err == nil && s.backendAlive(ctx, holder) {
			continue
		}
		if err := s.ClaimMatchOwnership(ctx, match.ID); err != nil {
			continue
		}
		log.Printf("[supervisor] adopted abandoned match %d", match.ID)
		if err := s.resume(ctx, match); err != nil {
			log.Printf("[supervisor] failed to resume match %d: %v", match.ID, err)
			s.ReleaseMatch(ctx, match.ID)
		}
	}
}

// PublishCrossBackend records an event for other backends to re-emit to
// players connected to them. Best effort.
func (s *SupervisorService) PublishCrossBackend(ctx context.Context, matchID int64, targets []string, event *gateway.Event) {
	rawData, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	envelope, err := json.Marshal(inboxEnvelope{Targets: targets, Type: event.Type, Data: rawData})
	if err != nil {
		return
	}
	row := &domain.EventInbox{
		EventType: event.Type,
		Data:      datatypes.JSON(envelope),
		MatchID:   matchID,
		BackendID: s.backendID,
	}
	if err := s.inbox.Create(ctx, row); err != nil {
		log.Printf("[supervisor] failed to publish %s to inbox: %v", event.Type, err)
	}
}

// pollInbox re-emits events written by other backends to players whose
// sessions live here.
func (s *SupervisorService) pollInbox(ctx context.Context) {
	rows, err := s.inbox.GetUnprocessed(ctx, s.backendID, inboxBatchSize)
	if err != nil {
		log.Printf("[supervisor] inbox poll failed: %v", err)
		return
	}
	for _, row := range rows {
		var envelope inboxEnvelope
		if err := json.Unmarshal(row.Data, &envelope); err == nil && len(envelope.Targets) > 0 {
			event := gateway.NewEvent(envelope.Type, json.RawMessage(envelope.Data))
			if err := s.broadcaster.Broadcast(ctx, envelope.Targets, event); err != nil {
				log.Printf("[supervisor] inbox re-emit of %s failed: %v", envelope.Type, err)
			}
		}
		if err := s.inbox.MarkProcessed(ctx, row.ID); err != nil {
			log.Printf("[supervisor] failed to mark inbox row %d: %v", row.ID, err)
		}
	}
}

func (s *SupervisorService) backendAlive(ctx context.Context, backendID string) bool {
	if backendID == "" {
		return false
	}
	_, err := s.store.Get(ctx, kv.BackendAliveKey(backendID))
	return err == nil
}

func (s *SupervisorService) ownedMatches() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.owned))
	for id := range s.owned {
		ids = append(ids, id)
	}
	return ids
}

func (s *SupervisorService) isOwned(matchID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned[matchID]
}

func (s *SupervisorService) setOwned(matchID int64, owned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owned {
		s.owned[matchID] = true
	} else {
		delete(s.owned, matchID)
	}
}
