package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/session"
)

// The router depends on narrow capability interfaces rather than the
// concrete services, so the service layer can depend on the gateway without
// a cycle.

type QueueFlow interface {
	JoinQueue(ctx context.Context, entry domain.QueueEntry) error
	LeaveQueue(ctx context.Context, summonerName, region string) error
}

type AcceptFlow interface {
	AcceptMatch(ctx context.Context, matchID int64, summonerName string) error
	DeclineMatch(ctx context.Context, matchID int64, summonerName string) error
}

type DraftFlow interface {
	ProcessAction(ctx context.Context, matchID int64, actionIndex int, championID, championName, byPlayer string) error
	ConfirmDraft(ctx context.Context, matchID int64, summonerName string) error
	Snapshot(ctx context.Context, matchID int64) (*domain.DraftSnapshot, int, error)
}

type VoteFlow interface {
	CastVote(ctx context.Context, matchID int64, summonerName, externalGameID string) error
}

// MatchIndex answers "is this player in this match" and restores reconnecting
// players to their active match screen.
type MatchIndex interface {
	ValidateOwnership(ctx context.Context, summonerName string, matchID int64) error
	RestoreActiveMatch(ctx context.Context, summonerName string)
}

// PlayerDirectory creates player rows lazily and enforces the name↔puuid
// 1-1 constraint.
type PlayerDirectory interface {
	EnsurePlayer(ctx context.Context, summonerName, puuid, region string) (*domain.Player, error)
}

// Router parses inbound frames, enforces the universal preconditions
// (anti-spoofing, match participation) and dispatches to the flows.
type Router struct {
	registry       *session.Registry
	outbox         *session.Outbox
	bridge         *Bridge
	store          kv.Store
	queue          QueueFlow
	accept         AcceptFlow
	draft          DraftFlow
	votes          VoteFlow
	matchIndex     MatchIndex
	players        PlayerDirectory
	confirmTimeout time.Duration
}

func NewRouter(
	registry *session.Registry,
	outbox *session.Outbox,
	bridge *Bridge,
	store kv.Store,
	queue QueueFlow,
	accept AcceptFlow,
	draft DraftFlow,
	votes VoteFlow,
	matchIndex MatchIndex,
	players PlayerDirectory,
	confirmTimeout time.Duration,
) *Router {
	return &Router{
		registry:       registry,
		outbox:         outbox,
		bridge:         bridge,
		store:          store,
		queue:          queue,
		accept:         accept,
		draft:          draft,
		votes:          votes,
		matchIndex:     matchIndex,
		players:        players,
		confirmTimeout: confirmTimeout,
	}
}

func (r *Router) Dispatch(s *Session, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("[router] unparseable frame from session %s: %v", s.RandomID(), err)
		return
	}

	s.Touch()
	ctx := context.Background()

	switch frame.Type {
	case TypeIdentifyPlayer, TypeElectronIdentify:
		r.handleIdentify(ctx, s, &frame)

	case TypeRegisterLCUConnection:
		r.handleRegisterLCU(ctx, s, &frame)

	case TypeGameClientResponse:
		r.bridge.HandleGameClientResponse(frame.ID, frame.Status, frame.Body)

	case TypeIdentityConfirmed:
		r.bridge.HandleIdentityConfirmed(frame.ID, frame.SummonerName, frame.PUUID)

	case TypeHeartbeat, TypePing, TypePong:
		r.handleHeartbeat(ctx, s, frame.Type)

	case TypeJoinQueue:
		r.handleJoinQueue(ctx, s, &frame)

	case TypeLeaveQueue:
		r.handleLeaveQueue(ctx, s, &frame)

	case TypeAcceptMatch, TypeDeclineMatch:
		r.handleMatchDecision(ctx, s, &frame)

	case TypeDraftAction:
		r.handleDraftAction(ctx, s, &frame)

	case TypeDraftConfirm:
		r.handleDraftConfirm(ctx, s, &frame)

	case TypeDraftSnapshot:
		r.handleDraftSnapshot(ctx, s, &frame)

	case TypeCastMatchVote:
		r.handleCastVote(ctx, s, &frame)

	case TypeMatchFoundAck:
		r.handleAck(ctx, s, &frame, "match_found", session.TTLMatchFound)

	case TypeDraftAck:
		r.handleAck(ctx, s, &frame, "draft", session.TTLDraft)

	case TypeGameAck:
		r.handleAck(ctx, s, &frame, "game", session.TTLInGame)

	case TypeReconnectCheck:
		r.handleReconnectCheck(ctx, s, &frame)

	default:
		log.Printf("[router] unknown frame type %q from session %s", frame.Type, s.RandomID())
	}
}

// verifyClaim is the anti-spoofing precondition: the claimed summoner name
// must match the session's registered one (case-insensitive).
func (r *Router) verifyClaim(s *Session, claimed string) bool {
	registered := s.SummonerName()
	if registered == "" || domain.NormalizeSummonerName(claimed) != registered {
		log.Printf("[router] auth mismatch on session %s: claimed %q, registered %q",
			s.RandomID(), claimed, registered)
		s.SendRaw(ErrorFrame("unauthorized", "session does not belong to claimed summoner"))
		return false
	}
	return true
}

// verifyParticipant is the match-ownership precondition.
func (r *Router) verifyParticipant(ctx context.Context, s *Session, summonerName string, matchID int64) bool {
	if err := r.matchIndex.ValidateOwnership(ctx, summonerName, matchID); err != nil {
		log.Printf("[router] %s is not in match %d: %v", summonerName, matchID, err)
		s.SendRaw(ErrorFrame("not_in_match", "player is not a participant of this match"))
		return false
	}
	return true
}

func (r *Router) handleIdentify(ctx context.Context, s *Session, frame *Frame) {
	var payload IdentifyPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid identify payload"))
		return
	}
	name := domain.NormalizeSummonerName(payload.SummonerName)
	if name == "" || payload.PUUID == "" {
		s.SendRaw(ErrorFrame("invalid_payload", "summonerName and puuid are required"))
		return
	}

	result, err := r.registry.RegisterSession(ctx, s.RandomID(), name, s.RemoteAddr(), s.UserAgent())
	if err != nil {
		// Fail closed: an unvalidated player is never admitted.
		log.Printf("[router] registration failed for %q: %v", name, err)
		s.SendRaw(ErrorFrame("registration_failed", "session registry unavailable"))
		s.CloseWithCode(CloseDuplicateSession, "registration failed")
		return
	}
	if !result.Accepted {
		log.Printf("[router] duplicate session for %q (held by %s)", name, result.HolderSessionID)
		s.SendRaw(ErrorFrame("not_acceptable", "already connected elsewhere"))
		s.CloseWithCode(CloseDuplicateSession, "already connected elsewhere")
		return
	}

	if _, err := r.players.EnsurePlayer(ctx, name, payload.PUUID, payload.Region); err != nil {
		if errors.Is(err, domain.ErrPUUIDConflict) {
			s.SendRaw(ErrorFrame("puuid_conflict", "summoner name is bound to a different puuid"))
			return
		}
		log.Printf("[router] failed to ensure player %q: %v", name, err)
		s.SendRaw(ErrorFrame("registration_failed", "player store unavailable"))
		return
	}

	customID := domain.CustomSessionID(name)
	s.Identify(name, customID)

	if info, err := r.registry.GetInfo(ctx, s.RandomID()); err == nil {
		info.PUUID = payload.PUUID
		if err := r.registry.UpdateInfo(ctx, info); err != nil {
			log.Printf("[router] failed to store puuid for %q: %v", name, err)
		}
	}

	log.Printf("[router] identified session %s as %q", s.RandomID(), name)

	// Drain before anything else so queued events arrive ahead of new ones.
	r.drainOutbox(ctx, s, customID)
	r.matchIndex.RestoreActiveMatch(ctx, name)
}

// drainOutbox replays pending events in FIFO order. A send failure
// re-enqueues the remainder and stops.
func (r *Router) drainOutbox(ctx context.Context, s *Session, customID string) {
	events, err := r.outbox.GetPendingEvents(ctx, customID)
	if err != nil {
		log.Printf("[router] failed to read outbox for %s: %v", customID, err)
		return
	}
	if len(events) == 0 {
		return
	}
	if err := r.outbox.ClearPendingEvents(ctx, customID); err != nil {
		log.Printf("[router] failed to clear outbox for %s: %v", customID, err)
		return
	}
	for i, event := range events {
		if err := s.SendRaw(event.Payload); err != nil {
			for _, rest := range events[i:] {
				if qerr := r.outbox.Requeue(ctx, rest); qerr != nil {
					log.Printf("[router] failed to re-enqueue %s for %s: %v", rest.Type, customID, qerr)
				}
			}
			return
		}
	}
	log.Printf("[router] drained %d pending events for %s", len(events), customID)
}

func (r *Router) handleRegisterLCU(ctx context.Context, s *Session, frame *Frame) {
	var payload LCUConnectionPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid lcu connection payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}

	heldBy, err := r.registry.AcquirePlayerLock(ctx, s.SummonerName(), s.RandomID())
	if err != nil || heldBy != s.RandomID() {
		s.SendRaw(ErrorFrame("lock_unavailable", "player lock held elsewhere"))
		return
	}

	info, err := r.registry.GetInfo(ctx, s.RandomID())
	if err != nil {
		log.Printf("[router] no session record for %s: %v", s.RandomID(), err)
		return
	}
	info.LCUPort = payload.Port
	info.LCUToken = payload.Token
	if err := r.registry.UpdateInfo(ctx, info); err != nil {
		log.Printf("[router] failed to store lcu details for %q: %v", s.SummonerName(), err)
	}
}

func (r *Router) handleHeartbeat(ctx context.Context, s *Session, frameType string) {
	if err := r.registry.UpdateHeartbeat(ctx, s.RandomID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		log.Printf("[router] heartbeat refresh failed for %s: %v", s.RandomID(), err)
	}
	if frameType == TypePing {
		s.SendRaw([]byte(`{"type":"pong"}`))
		return
	}
	if frameType == TypeHeartbeat {
		s.SendRaw([]byte(`{"type":"heartbeat_ack"}`))
	}
}

func (r *Router) handleJoinQueue(ctx context.Context, s *Session, frame *Frame) {
	var payload JoinQueuePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid join queue payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}

	entry := domain.QueueEntry{
		SummonerName:  s.SummonerName(),
		Region:        payload.Region,
		PrimaryLane:   domain.Lane(payload.PrimaryLane),
		SecondaryLane: domain.Lane(payload.SecondaryLane),
	}
	if err := r.queue.JoinQueue(ctx, entry); err != nil {
		log.Printf("[router] join queue failed for %q: %v", s.SummonerName(), err)
		s.SendRaw(ErrorFrame("queue_error", "failed to join queue"))
	}
}

func (r *Router) handleLeaveQueue(ctx context.Context, s *Session, frame *Frame) {
	var payload LeaveQueuePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid leave queue payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if err := r.queue.LeaveQueue(ctx, s.SummonerName(), payload.Region); err != nil {
		log.Printf("[router] leave queue failed for %q: %v", s.SummonerName(), err)
	}
}

func (r *Router) handleMatchDecision(ctx context.Context, s *Session, frame *Frame) {
	var payload MatchDecisionPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid match decision payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if !r.verifyParticipant(ctx, s, s.SummonerName(), payload.MatchID) {
		return
	}

	var err error
	if frame.Type == TypeAcceptMatch {
		err = r.accept.AcceptMatch(ctx, payload.MatchID, s.SummonerName())
	} else {
		err = r.accept.DeclineMatch(ctx, payload.MatchID, s.SummonerName())
	}
	if err != nil {
		log.Printf("[router] %s failed for %q on match %d: %v", frame.Type, s.SummonerName(), payload.MatchID, err)
		s.SendRaw(ErrorFrame("match_decision_failed", err.Error()))
	}
}

func (r *Router) handleDraftAction(ctx context.Context, s *Session, frame *Frame) {
	var payload DraftActionPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid draft action payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if !r.verifyParticipant(ctx, s, s.SummonerName(), payload.MatchID) {
		return
	}

	err := r.draft.ProcessAction(ctx, payload.MatchID, payload.ActionIndex, payload.ChampionID, payload.ChampionName, s.SummonerName())
	if err != nil {
		log.Printf("[router] draft action rejected for %q on match %d: %v", s.SummonerName(), payload.MatchID, err)
		s.SendRaw(ErrorFrame("draft_rejected", err.Error()))
	}
}

func (r *Router) handleDraftConfirm(ctx context.Context, s *Session, frame *Frame) {
	var payload DraftConfirmPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid draft confirm payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if !r.verifyParticipant(ctx, s, s.SummonerName(), payload.MatchID) {
		return
	}
	if err := r.draft.ConfirmDraft(ctx, payload.MatchID, s.SummonerName()); err != nil {
		log.Printf("[router] draft confirm failed for %q on match %d: %v", s.SummonerName(), payload.MatchID, err)
		s.SendRaw(ErrorFrame("draft_confirm_failed", err.Error()))
	}
}

func (r *Router) handleDraftSnapshot(ctx context.Context, s *Session, frame *Frame) {
	var payload DraftConfirmPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid draft snapshot payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if !r.verifyParticipant(ctx, s, s.SummonerName(), payload.MatchID) {
		return
	}

	snap, timeRemaining, err := r.draft.Snapshot(ctx, payload.MatchID)
	if err != nil {
		s.SendRaw(ErrorFrame("snapshot_unavailable", err.Error()))
		return
	}
	event := NewEvent(TypeDraftUpdated, snap)
	event.TimeRemaining = &timeRemaining
	raw, err := event.EncodeFor(s.SummonerName())
	if err != nil {
		return
	}
	s.SendRaw(raw)
}

func (r *Router) handleCastVote(ctx context.Context, s *Session, frame *Frame) {
	var payload CastVotePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.SendRaw(ErrorFrame("invalid_payload", "invalid vote payload"))
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	if !r.verifyParticipant(ctx, s, s.SummonerName(), payload.MatchID) {
		return
	}

	name := s.SummonerName()
	if !domain.IsBot(name) {
		r.store.Set(ctx, kv.IdentityRequestKey(name, time.Now().Unix()), s.RandomID(), r.confirmTimeout)
		if err := r.bridge.ConfirmCriticalAction(ctx, name, "match_vote", r.confirmTimeout); err != nil {
			log.Printf("[router] critical confirmation failed for %q: %v", name, err)
			s.SendRaw(ErrorFrame("confirmation_failed", "identity confirmation failed"))
			return
		}
	}

	if err := r.votes.CastVote(ctx, payload.MatchID, name, payload.ExternalGameID); err != nil {
		log.Printf("[router] vote failed for %q on match %d: %v", name, payload.MatchID, err)
		s.SendRaw(ErrorFrame("vote_failed", err.Error()))
	}
}

func (r *Router) handleAck(ctx context.Context, s *Session, frame *Frame, class string, ttl time.Duration) {
	var payload AckPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	key := kv.AckKey(class, payload.MatchID, s.SummonerName())
	if err := r.store.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl); err != nil {
		log.Printf("[router] failed to record %s ack for %q: %v", class, s.SummonerName(), err)
	}
}

func (r *Router) handleReconnectCheck(ctx context.Context, s *Session, frame *Frame) {
	var payload ReconnectCheckPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return
	}
	if !r.verifyClaim(s, payload.SummonerName) {
		return
	}
	r.matchIndex.RestoreActiveMatch(ctx, s.SummonerName())
}
