package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/riftbridge/custom-match-core/internal/config"
	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/repository"
	"gorm.io/datatypes"
)

// voteThreshold is the agreement needed to link without a privileged voter.
const voteThreshold = 5

// Link reasons carried in the match_linked event.
const (
	LinkReasonThreshold  = "vote_threshold"
	LinkReasonPrivileged = "privileged_voter"
)

// GameClientCaller fetches data through a player's local game client.
// Satisfied by the gateway bridge.
type GameClientCaller interface {
	CallGameClient(ctx context.Context, targetSummoner, method, path string, body json.RawMessage, timeout time.Duration) (*gateway.RPCResult, error)
}

// VotingService links finished matches to the real game on the players'
// clients. Players vote with the external game id they see in their local
// history; enough agreement (or one privileged voter) links the match,
// settles the winner and applies LP.
type VotingService struct {
	matches     repository.MatchRepository
	votes       repository.VoteRepository
	players     repository.PlayerRepository
	broadcaster *gateway.Broadcaster
	caller      GameClientCaller
	supervisor  *SupervisorService
	cfg         *config.Config
}

func NewVotingService(repos *repository.Repositories, broadcaster *gateway.Broadcaster, caller GameClientCaller, supervisor *SupervisorService, cfg *config.Config) *VotingService {
	return &VotingService{
		matches:     repos.Match,
		votes:       repos.Vote,
		players:     repos.Player,
		broadcaster: broadcaster,
		caller:      caller,
		supervisor:  supervisor,
		cfg:         cfg,
	}
}

// CastVote records (or replaces) the player's vote and links the match when
// agreement is reached. A privileged voter links immediately.
func (s *VotingService) CastVote(ctx context.Context, matchID int64, summonerName, externalGameID string) error {
	name := domain.NormalizeSummonerName(summonerName)
	if externalGameID == "" {
		return fmt.Errorf("empty external game id")
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return domain.ErrMatchNotFound
	}
	if match.LinkedExternalGameID != nil {
		return domain.ErrAlreadyLinked
	}
	if match.Status != domain.MatchStatusInProgress {
		return domain.ErrInvalidStatus
	}

	player, err := s.players.GetBySummonerName(ctx, name)
	if err != nil {
		return err
	}
	if err := s.votes.Upsert(ctx, &domain.MatchVote{
		MatchID:        matchID,
		PlayerID:       player.ID,
		ExternalGameID: externalGameID,
	}); err != nil {
		return err
	}

	tally, err := s.tally(ctx, match)
	if err != nil {
		return err
	}
	log.Printf("[vote] %q voted %q on match %d (%d voters)", name, externalGameID, matchID, len(tally.Voters))

	event := gateway.NewEvent(gateway.TypeMatchVoteProgress, map[string]any{
		"matchId": matchID,
		"votes":   tally.Counts,
		"voters":  tally.Voters,
	})
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[vote] progress broadcast failed for match %d: %v", matchID, err)
	}
	s.supervisor.PublishCrossBackend(ctx, matchID, match.Participants(), event)

	if s.cfg.IsSpecialUser(name) {
		return s.linkMatch(ctx, match, externalGameID, LinkReasonPrivileged)
	}
	if tally.Counts[externalGameID] >= voteThreshold {
		return s.linkMatch(ctx, match, externalGameID, LinkReasonThreshold)
	}
	return nil
}

// tally aggregates the stored votes, resolving player ids back to names
// through the match's team lists.
func (s *VotingService) tally(ctx context.Context, match *domain.Match) (*domain.VoteTally, error) {
	votes, err := s.votes.GetByMatch(ctx, match.ID)
	if err != nil {
		return nil, err
	}

	nameByID := make(map[int64]string)
	t1, _ := match.Team1Players()
	t2, _ := match.Team2Players()
	for _, p := range append(t1, t2...) {
		nameByID[p.PlayerID] = domain.NormalizeSummonerName(p.SummonerName)
	}

	tally := &domain.VoteTally{Counts: make(map[string]int)}
	for _, v := range votes {
		tally.Counts[v.ExternalGameID]++
		if name, ok := nameByID[v.PlayerID]; ok {
			tally.Voters = append(tally.Voters, name)
		}
	}
	sort.Strings(tally.Voters)
	return tally, nil
}

// linkMatch fetches the external game, settles the winner and finalizes
// ratings. A failed fetch leaves the match unlinked so a later vote retries.
func (s *VotingService) linkMatch(ctx context.Context, match *domain.Match, externalGameID, reason string) error {
	res, err := s.caller.CallGameClient(ctx, "", "GET", "/lol-match-history/v1/games/"+externalGameID, nil, 0)
	if err != nil {
		return fmt.Errorf("fetch external game %s: %w", externalGameID, err)
	}
	if res.Status < 200 || res.Status >= 300 {
		return fmt.Errorf("fetch external game %s: status %d", externalGameID, res.Status)
	}

	winner, err := parseWinnerTeam(res.Body)
	if err != nil {
		return fmt.Errorf("parse external game %s: %w", externalGameID, err)
	}

	match.LinkedExternalGameID = &externalGameID
	match.ExternalMatchData = datatypes.JSON(res.Body)
	match.WinnerTeam = &winner
	match.Status = domain.MatchStatusCompleted

	players := s.applyRatings(ctx, match, winner)
	if err := s.matches.Finalize(ctx, match, players); err != nil {
		return err
	}
	if err := s.votes.DeleteByMatch(ctx, match.ID); err != nil {
		log.Printf("[vote] failed to clear votes for match %d: %v", match.ID, err)
	}
	log.Printf("[vote] linked match %d to game %s (winner team %d, %s)",
		match.ID, externalGameID, winner, reason)

	event := gateway.NewEvent(gateway.TypeMatchLinked, map[string]any{
		"matchId":        match.ID,
		"externalGameId": externalGameID,
		"winnerTeam":     winner,
		"lpChanges":      json.RawMessage(match.LPChangesJSON),
		"reason":         reason,
	})
	if err := s.broadcaster.Broadcast(ctx, match.Participants(), event); err != nil {
		log.Printf("[vote] match_linked broadcast failed for match %d: %v", match.ID, err)
	}
	s.supervisor.PublishCrossBackend(ctx, match.ID, match.Participants(), event)
	s.supervisor.ReleaseMatch(ctx, match.ID)
	return nil
}

// applyRatings computes and stages LP changes. Rating problems are logged
// and skipped; the match still completes.
func (s *VotingService) applyRatings(ctx context.Context, match *domain.Match, winner int) []*domain.Player {
	team1, err := match.Team1Players()
	if err != nil {
		log.Printf("[vote] unreadable team 1 on match %d: %v", match.ID, err)
		return nil
	}
	team2, err := match.Team2Players()
	if err != nil {
		log.Printf("[vote] unreadable team 2 on match %d: %v", match.ID, err)
		return nil
	}

	changes := domain.LPChanges(s.cfg.KFactor, team1, team2, winner)
	if raw, err := json.Marshal(changes); err == nil {
		match.LPChangesJSON = datatypes.JSON(raw)
	}
	match.CustomLP = domain.TotalLP(changes)

	var updated []*domain.Player
	for _, tp := range append(team1, team2...) {
		delta, ok := changes[tp.SummonerName]
		if !ok {
			continue
		}
		player, err := s.players.GetBySummonerName(ctx, domain.NormalizeSummonerName(tp.SummonerName))
		if err != nil {
			log.Printf("[vote] skipping rating for %q on match %d: %v", tp.SummonerName, match.ID, err)
			continue
		}
		player.CustomLP += delta
		player.CustomMMR += delta
		player.CustomGamesPlayed++
		won := (winner == 1 && containsPlayer(team1, tp.SummonerName)) ||
			(winner == 2 && containsPlayer(team2, tp.SummonerName))
		if won {
			player.CustomWins++
		} else {
			player.CustomLosses++
		}
		if player.CustomMMR > player.CustomPeakMMR {
			player.CustomPeakMMR = player.CustomMMR
		}
		updated = append(updated, player)
	}
	return updated
}

func containsPlayer(team []domain.TeamPlayer, summonerName string) bool {
	for _, p := range team {
		if p.SummonerName == summonerName {
			return true
		}
	}
	return false
}

// parseWinnerTeam reads the winning side out of the game client's match
// payload. Team id 100 is team 1, 200 is team 2.
func parseWinnerTeam(raw json.RawMessage) (int, error) {
	var payload struct {
		Teams []struct {
			TeamID int             `json:"teamId"`
			Win    json.RawMessage `json:"win"`
		} `json:"teams"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, err
	}
	for _, team := range payload.Teams {
		if !teamWon(team.Win) {
			continue
		}
		switch team.TeamID {
		case 100:
			return 1, nil
		case 200:
			return 2, nil
		}
	}
	return 0, fmt.Errorf("no winning team in payload")
}

// teamWon accepts both encodings the client uses: the string "Win" and a
// plain boolean.
func teamWon(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "Win"
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}
