package gateway

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/session"
	"golang.org/x/sync/errgroup"
)

const (
	broadcastDeadline = 5 * time.Second
	// When at least this share of directed sends fail, the same event is
	// fanned out globally and clients filter by targetSummoner.
	fallbackFailureRatio = 0.3
)

// Broadcaster delivers a typed event to a named set of players with
// at-least-once semantics. Failed sends land in the outbox under the
// player's stable custom session id; mass failure triggers a global fan-out.
type Broadcaster struct {
	hub      *Hub
	registry *session.Registry
	outbox   *session.Outbox
}

func NewBroadcaster(hub *Hub, registry *session.Registry, outbox *session.Outbox) *Broadcaster {
	return &Broadcaster{hub: hub, registry: registry, outbox: outbox}
}

// Broadcast sends the event to every target concurrently. Bots are skipped
// silently. Within one call sends are unordered; consumers reconcile by
// event-type semantics.
func (b *Broadcaster) Broadcast(ctx context.Context, targets []string, event *Event) error {
	ctx, cancel := context.WithTimeout(ctx, broadcastDeadline)
	defer cancel()

	var attempted, failed int32
	var mu sync.Mutex
	var failedFrames [][]byte

	var g errgroup.Group
	for _, target := range targets {
		target := domain.NormalizeSummonerName(target)
		if domain.IsBot(target) {
			continue
		}
		atomic.AddInt32(&attempted, 1)
		g.Go(func() error {
			frame, err := event.EncodeFor(target)
			if err != nil {
				return err
			}
			if b.sendDirect(ctx, target, frame, event.Type) {
				return nil
			}
			atomic.AddInt32(&failed, 1)
			mu.Lock()
			failedFrames = append(failedFrames, frame)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if attempted > 0 && float64(failed)/float64(attempted) >= fallbackFailureRatio {
		log.Printf("[broadcast] %s: %d/%d directed sends failed, falling back to global fan-out",
			event.Type, failed, attempted)
		b.fanOutGlobally(failedFrames)
	}
	return nil
}

// SendToPlayer delivers a single-target event, queueing on failure.
func (b *Broadcaster) SendToPlayer(ctx context.Context, target string, event *Event) error {
	return b.Broadcast(ctx, []string{target}, event)
}

// sendDirect resolves the target to a live session and sends; any failure
// enqueues to the outbox and returns false.
func (b *Broadcaster) sendDirect(ctx context.Context, target string, frame []byte, eventType string) bool {
	customID := domain.CustomSessionID(target)

	randomID, err := b.registry.GetSessionBySummoner(ctx, target)
	if err != nil {
		b.enqueue(ctx, customID, eventType, frame)
		return false
	}
	sess := b.hub.Get(randomID)
	if sess == nil {
		b.enqueue(ctx, customID, eventType, frame)
		return false
	}
	// Session-ownership check: never send a player's event through a
	// session registered to someone else.
	if sess.SummonerName() != target {
		log.Printf("[broadcast] session %s registered to %q, not %q; queueing instead",
			randomID, sess.SummonerName(), target)
		b.enqueue(ctx, customID, eventType, frame)
		return false
	}
	if err := sess.SendRaw(frame); err != nil {
		b.enqueue(ctx, customID, eventType, frame)
		return false
	}
	return true
}

func (b *Broadcaster) enqueue(ctx context.Context, customID, eventType string, frame []byte) {
	ttl := session.EventTTL(eventType)
	if err := b.outbox.QueueEvent(ctx, customID, eventType, frame, ttl); err != nil {
		log.Printf("[broadcast] failed to queue %s for %s: %v", eventType, customID, err)
	}
}

// fanOutGlobally pushes the already-personalized frames to every live
// session. Non-targets discard them by targetSummoner.
func (b *Broadcaster) fanOutGlobally(frames [][]byte) {
	b.hub.EachIdentified(func(s *Session) {
		for _, frame := range frames {
			if err := s.SendRaw(frame); err != nil {
				return
			}
		}
	})
}
