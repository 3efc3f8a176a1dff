package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/riftbridge/custom-match-core/internal/kv"
)

// Event TTL classes. An event that outlives its class is dropped on read.
const (
	TTLMatchFound = 5 * time.Minute
	TTLDraft      = 10 * time.Minute
	TTLInGame     = time.Hour
)

// EventTTL maps an outbound event type to its semantic lifetime.
func EventTTL(eventType string) time.Duration {
	switch eventType {
	case "match_found", "match_acceptance_progress", "match_accepted", "match_cancelled", "queue_status":
		return TTLMatchFound
	case "draft_updated", "game_ready":
		return TTLDraft
	case "game_started", "match_vote_progress", "match_linked", "restore_active_match":
		return TTLInGame
	}
	return TTLDraft
}

// PendingEvent is an outbound message not yet confirmed delivered. It is
// keyed by the stable custom session id so reconnects find their queue.
type PendingEvent struct {
	CustomSessionID string          `json:"customSessionId"`
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload"`
	EnqueuedAt      time.Time       `json:"enqueuedAt"`
	Attempts        int             `json:"attempts"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

// Expired reports whether the event has outlived its TTL class.
func (e *PendingEvent) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Outbox is the per-player durable queue of undelivered events (FIFO,
// bounded; overflow drops oldest).
type Outbox struct {
	store kv.Store
	cap   int
}

func NewOutbox(store kv.Store, maxPerPlayer int) *Outbox {
	return &Outbox{store: store, cap: maxPerPlayer}
}

// QueueEvent appends to the player's pending list. The list key expires with
// the longest event class so abandoned queues do not accumulate.
func (o *Outbox) QueueEvent(ctx context.Context, customSessionID, eventType string, payload json.RawMessage, ttl time.Duration) error {
	now := time.Now().UTC()
	event := &PendingEvent{
		CustomSessionID: customSessionID,
		Type:            eventType,
		Payload:         payload,
		EnqueuedAt:      now,
		ExpiresAt:       now.Add(ttl),
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := kv.PendingEventsKey(customSessionID)
	if err := o.store.RPush(ctx, key, string(raw)); err != nil {
		return err
	}
	if err := o.store.LTrim(ctx, key, o.cap); err != nil {
		return err
	}
	return o.store.Expire(ctx, key, TTLInGame)
}

// Requeue puts a drained event back after a failed send, bumping its attempt
// counter. The original expiry is kept.
func (o *Outbox) Requeue(ctx context.Context, event *PendingEvent) error {
	event.Attempts++
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := kv.PendingEventsKey(event.CustomSessionID)
	if err := o.store.RPush(ctx, key, string(raw)); err != nil {
		return err
	}
	return o.store.LTrim(ctx, key, o.cap)
}

// GetPendingEvents returns the live (non-expired) queue snapshot in FIFO
// order.
func (o *Outbox) GetPendingEvents(ctx context.Context, customSessionID string) ([]*PendingEvent, error) {
	entries, err := o.store.LRange(ctx, kv.PendingEventsKey(customSessionID))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var events []*PendingEvent
	for _, entry := range entries {
		var event PendingEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			continue
		}
		if event.Expired(now) {
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// ClearPendingEvents drops the queue after a successful drain.
func (o *Outbox) ClearPendingEvents(ctx context.Context, customSessionID string) error {
	return o.store.Del(ctx, kv.PendingEventsKey(customSessionID))
}
