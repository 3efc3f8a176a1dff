package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository"
)

const matchSize = 10

// MatchFormedFunc hands a freshly created match and its queue entries to the
// acceptance stage.
type MatchFormedFunc func(ctx context.Context, match *domain.Match, entries []domain.QueueEntry)

// QueueService keeps the per-region waiting pool in the KV store and forms
// ten-player matches with balanced teams and full lane coverage.
type QueueService struct {
	store       kv.Store
	players     *PlayerService
	matches     repository.MatchRepository
	broadcaster *gateway.Broadcaster

	mu            sync.Mutex
	onMatchFormed MatchFormedFunc
}

func NewQueueService(store kv.Store, players *PlayerService, matches repository.MatchRepository, broadcaster *gateway.Broadcaster) *QueueService {
	return &QueueService{
		store:       store,
		players:     players,
		matches:     matches,
		broadcaster: broadcaster,
	}
}

// SetMatchFormedCallback wires the acceptance stage in after construction.
func (s *QueueService) SetMatchFormedCallback(fn MatchFormedFunc) {
	s.onMatchFormed = fn
}

// JoinQueue adds (or replaces) the player's entry in the region pool, then
// attempts match formation. A zero JoinedAt is stamped now; requeues keep
// their original instant so cancelled players keep their place.
func (s *QueueService) JoinQueue(ctx context.Context, entry domain.QueueEntry) error {
	entry.SummonerName = domain.NormalizeSummonerName(entry.SummonerName)
	if entry.Region == "" {
		entry.Region = "default"
	}
	if entry.PrimaryLane == "" {
		entry.PrimaryLane = domain.LaneFill
	}

	puuid := ""
	if domain.IsBot(entry.SummonerName) {
		puuid = "bot:" + entry.SummonerName
	}
	player, err := s.players.EnsurePlayer(ctx, entry.SummonerName, puuid, entry.Region)
	if err != nil {
		return fmt.Errorf("resolve player: %w", err)
	}
	entry.PlayerID = player.ID
	entry.MMR = player.CustomMMR
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.store.HSet(ctx, kv.QueuePoolKey(entry.Region), entry.SummonerName, string(raw)); err != nil {
		return err
	}
	log.Printf("[queue] %q joined %s queue (%s/%s, mmr %d)",
		entry.SummonerName, entry.Region, entry.PrimaryLane, entry.SecondaryLane, entry.MMR)

	s.broadcastStatus(ctx, entry.Region)
	return s.tryFormMatch(ctx, entry.Region)
}

// LeaveQueue removes the player from the region pool.
func (s *QueueService) LeaveQueue(ctx context.Context, summonerName, region string) error {
	name := domain.NormalizeSummonerName(summonerName)
	if region == "" {
		region = "default"
	}
	if err := s.store.HDel(ctx, kv.QueuePoolKey(region), name); err != nil {
		return err
	}
	log.Printf("[queue] %q left %s queue", name, region)
	s.broadcastStatus(ctx, region)
	return nil
}

// RemoveFromQueue drops players without a status broadcast, used when a match
// consumes them.
func (s *QueueService) RemoveFromQueue(ctx context.Context, region string, summonerNames ...string) error {
	return s.store.HDel(ctx, kv.QueuePoolKey(region), summonerNames...)
}

// Pool returns the current waiting entries for a region.
func (s *QueueService) Pool(ctx context.Context, region string) ([]domain.QueueEntry, error) {
	raw, err := s.store.HGetAll(ctx, kv.QueuePoolKey(region))
	if err != nil {
		return nil, err
	}
	entries := make([]domain.QueueEntry, 0, len(raw))
	for _, v := range raw {
		var entry domain.QueueEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].JoinedAt.Before(entries[j].JoinedAt) })
	return entries, nil
}

func (s *QueueService) broadcastStatus(ctx context.Context, region string) {
	entries, err := s.Pool(ctx, region)
	if err != nil {
		log.Printf("[queue] failed to read %s pool: %v", region, err)
		return
	}

	laneCounts := make(map[string]int)
	targets := make([]string, 0, len(entries))
	for _, e := range entries {
		laneCounts[string(e.PrimaryLane)]++
		targets = append(targets, e.SummonerName)
	}
	event := gateway.NewEvent(gateway.TypeQueueStatus, entries)
	event.Meta = map[string]any{
		"region":     region,
		"count":      len(entries),
		"laneCounts": laneCounts,
	}
	if err := s.broadcaster.Broadcast(ctx, targets, event); err != nil {
		log.Printf("[queue] status broadcast failed: %v", err)
	}
}

// tryFormMatch forms one match when ten players wait and a full lane
// assignment exists. Formation is serialized per process.
func (s *QueueService) tryFormMatch(ctx context.Context, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.Pool(ctx, region)
	if err != nil {
		return err
	}
	if len(entries) < matchSize {
		return nil
	}

	cohort := entries[:matchSize]
	byLane, ok := assignLanes(cohort)
	if !ok {
		log.Printf("[queue] %s has %d waiting but no full lane cover yet", region, len(entries))
		return nil
	}
	team1, team2 := partitionTeams(byLane)

	t1JSON, err := domain.EncodeTeam(team1)
	if err != nil {
		return err
	}
	t2JSON, err := domain.EncodeTeam(team2)
	if err != nil {
		return err
	}
	match := &domain.Match{
		Status:           domain.MatchStatusPendingAccept,
		Team1PlayersJSON: t1JSON,
		Team2PlayersJSON: t2JSON,
	}
	if err := s.matches.Create(ctx, match); err != nil {
		return fmt.Errorf("create match: %w", err)
	}

	names := make([]string, 0, matchSize)
	for _, e := range cohort {
		names = append(names, e.SummonerName)
	}
	if err := s.RemoveFromQueue(ctx, region, names...); err != nil {
		log.Printf("[queue] failed to remove formed cohort from pool: %v", err)
	}
	log.Printf("[queue] formed match %d in %s (team mmr %d vs %d)",
		match.ID, region, domain.AverageMMR(team1), domain.AverageMMR(team2))

	s.broadcastStatus(ctx, region)
	if s.onMatchFormed != nil {
		s.onMatchFormed(ctx, match, cohort)
	}
	return nil
}

// assignLanes places the ten players two per lane: primary preference first,
// then any lane they flag as playable, then fill. Returns false when some
// lane cannot be covered.
func assignLanes(cohort []domain.QueueEntry) (map[domain.Lane][]domain.QueueEntry, bool) {
	byLane := make(map[domain.Lane][]domain.QueueEntry, len(domain.Lanes))
	assigned := make(map[string]bool, len(cohort))

	place := func(pick func(e domain.QueueEntry, lane domain.Lane) bool) {
		for _, lane := range domain.Lanes {
			for _, e := range cohort {
				if len(byLane[lane]) >= 2 {
					break
				}
				if assigned[e.SummonerName] || !pick(e, lane) {
					continue
				}
				byLane[lane] = append(byLane[lane], e)
				assigned[e.SummonerName] = true
			}
		}
	}

	place(func(e domain.QueueEntry, lane domain.Lane) bool { return e.PrimaryLane == lane })
	place(func(e domain.QueueEntry, lane domain.Lane) bool { return e.PrefersLane(lane) })
	place(func(e domain.QueueEntry, lane domain.Lane) bool { return true })

	for _, lane := range domain.Lanes {
		if len(byLane[lane]) != 2 {
			return nil, false
		}
	}
	return byLane, true
}

// partitionTeams splits each lane pair across the teams, choosing the
// 2^5 combination with the smallest average-MMR gap.
func partitionTeams(byLane map[domain.Lane][]domain.QueueEntry) (team1, team2 []domain.TeamPlayer) {
	bestMask, bestDiff := 0, math.MaxFloat64
	for mask := 0; mask < 1<<len(domain.Lanes); mask++ {
		var sum1, sum2 int
		for i, lane := range domain.Lanes {
			a, b := byLane[lane][0], byLane[lane][1]
			if mask&(1<<i) != 0 {
				a, b = b, a
			}
			sum1 += a.MMR
			sum2 += b.MMR
		}
		if diff := math.Abs(float64(sum1-sum2) / float64(len(domain.Lanes))); diff < bestDiff {
			bestDiff = diff
			bestMask = mask
		}
	}

	for i, lane := range domain.Lanes {
		a, b := byLane[lane][0], byLane[lane][1]
		if bestMask&(1<<i) != 0 {
			a, b = b, a
		}
		team1 = append(team1, toTeamPlayer(a, lane, i))
		team2 = append(team2, toTeamPlayer(b, lane, i))
	}
	return team1, team2
}

func toTeamPlayer(e domain.QueueEntry, lane domain.Lane, laneIndex int) domain.TeamPlayer {
	return domain.TeamPlayer{
		SummonerName: e.SummonerName,
		PlayerID:     e.PlayerID,
		MMR:          e.MMR,
		AssignedLane: lane,
		TeamIndex:    laneIndex,
	}
}
