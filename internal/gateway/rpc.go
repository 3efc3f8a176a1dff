package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/session"
)

// RPC errors.
var (
	ErrRPCTimeout   = errors.New("rpc: no response before deadline")
	ErrRPCTransport = errors.New("rpc: failed to send request")
)

// RPCResult is the game client's answer, relayed by the gateway.
type RPCResult struct {
	Status int
	Body   json.RawMessage
}

// ConfirmResult is the gateway's answer to a critical identity confirmation.
type ConfirmResult struct {
	SummonerName string
	PUUID        string
}

// Bridge tunnels backend-initiated requests into a player's local game
// client through that player's gateway session. Outstanding requests are
// multiplexed by correlation id: a slow call never blocks the others, and
// no ordering is guaranteed between concurrent calls on one session.
type Bridge struct {
	registry *session.Registry
	hub      *Hub
	timeout  time.Duration

	mu       sync.Mutex
	pending  map[string]chan *RPCResult
	confirms map[string]chan *ConfirmResult
}

func NewBridge(registry *session.Registry, hub *Hub, defaultTimeout time.Duration) *Bridge {
	return &Bridge{
		registry: registry,
		hub:      hub,
		timeout:  defaultTimeout,
		pending:  make(map[string]chan *RPCResult),
		confirms: make(map[string]chan *ConfirmResult),
	}
}

type gameClientRequest struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// CallGameClient sends an RPC envelope through the target player's session
// and awaits the matching response. An empty target selects any identified
// session. A late response after the deadline is discarded.
func (b *Bridge) CallGameClient(ctx context.Context, targetSummoner, method, path string, body json.RawMessage, timeout time.Duration) (*RPCResult, error) {
	sess, err := b.selectSession(ctx, targetSummoner)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = b.timeout
	}

	id := uuid.NewString()
	ch := make(chan *RPCResult, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	req := gameClientRequest{Type: TypeGameClientRequest, ID: id, Method: method, Path: path, Body: body}
	raw, err := json.Marshal(req)
	if err != nil {
		b.drop(id)
		return nil, err
	}
	if err := sess.SendRaw(raw); err != nil {
		b.drop(id)
		return nil, ErrRPCTransport
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		b.drop(id)
		return nil, ErrRPCTimeout
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

// HandleGameClientResponse completes the pending request with the matching
// id. Unknown ids (late responses after a timeout) are dropped.
func (b *Bridge) HandleGameClientResponse(id string, status int, body json.RawMessage) {
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if !ok {
		log.Printf("[rpc] dropping response for unknown request id %s", id)
		return
	}
	ch <- &RPCResult{Status: status, Body: body}
}

type confirmRequest struct {
	Type             string `json:"type"`
	ID               string `json:"id"`
	ExpectedSummoner string `json:"expectedSummoner"`
	ActionType       string `json:"actionType"`
}

// ConfirmCriticalAction asks the gateway to re-assert the player's identity
// before an irreversible action. Returns nil only when a matching
// confirmation with the expected summoner name arrives within the deadline.
func (b *Bridge) ConfirmCriticalAction(ctx context.Context, targetSummoner, actionType string, timeout time.Duration) error {
	expected := domain.NormalizeSummonerName(targetSummoner)
	sess, err := b.selectSession(ctx, expected)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	ch := make(chan *ConfirmResult, 1)
	b.mu.Lock()
	b.confirms[id] = ch
	b.mu.Unlock()

	req := confirmRequest{Type: TypeConfirmIdentity, ID: id, ExpectedSummoner: expected, ActionType: actionType}
	raw, err := json.Marshal(req)
	if err != nil {
		b.dropConfirm(id)
		return err
	}
	if err := sess.SendRaw(raw); err != nil {
		b.dropConfirm(id)
		return ErrRPCTransport
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if domain.NormalizeSummonerName(res.SummonerName) != expected {
			return domain.ErrConfirmDenied
		}
		return nil
	case <-timer.C:
		b.dropConfirm(id)
		return ErrRPCTimeout
	case <-ctx.Done():
		b.dropConfirm(id)
		return ctx.Err()
	}
}

// HandleIdentityConfirmed completes a pending critical confirmation.
func (b *Bridge) HandleIdentityConfirmed(id, summonerName, puuid string) {
	b.mu.Lock()
	ch, ok := b.confirms[id]
	if ok {
		delete(b.confirms, id)
	}
	b.mu.Unlock()

	if !ok {
		log.Printf("[rpc] dropping confirmation for unknown request id %s", id)
		return
	}
	ch <- &ConfirmResult{SummonerName: summonerName, PUUID: puuid}
}

func (b *Bridge) selectSession(ctx context.Context, targetSummoner string) (*Session, error) {
	if targetSummoner == "" {
		if sess := b.hub.AnyIdentified(); sess != nil {
			return sess, nil
		}
		return nil, domain.ErrNoLiveSession
	}

	randomID, err := b.registry.GetSessionBySummoner(ctx, targetSummoner)
	if err != nil {
		return nil, domain.ErrNoLiveSession
	}
	sess := b.hub.Get(randomID)
	if sess == nil {
		return nil, domain.ErrNoLiveSession
	}
	return sess, nil
}

func (b *Bridge) drop(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) dropConfirm(id string) {
	b.mu.Lock()
	delete(b.confirms, id)
	b.mu.Unlock()
}
