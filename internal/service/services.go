package service

import (
	"context"
	"log"

	"github.com/riftbridge/custom-match-core/internal/config"
	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository"
)

// Services bundles the business layer and wires the callbacks between the
// stages of the match lifecycle.
type Services struct {
	Player     *PlayerService
	Queue      *QueueService
	Acceptance *AcceptanceService
	Draft      *DraftService
	Supervisor *SupervisorService
	Voting     *VotingService
}

func NewServices(cfg *config.Config, repos *repository.Repositories, store kv.Store, broadcaster *gateway.Broadcaster, bridge *gateway.Bridge) *Services {
	player := NewPlayerService(repos.Player, cfg.DefaultMMR)
	supervisor := NewSupervisorService(store, repos.Match, repos.EventInbox, broadcaster, cfg.BackendID, cfg.OwnershipTTL)
	draft := NewDraftService(repos.Match, broadcaster, supervisor, cfg.DraftStepTimeout)
	supervisor.SetResumer(draft.ResumeDraft)
	supervisor.SetAborter(draft.AbortRun)

	queue := NewQueueService(store, player, repos.Match, broadcaster)
	acceptance := NewAcceptanceService(store, repos.Match, broadcaster, cfg.AcceptTimeout)
	queue.SetMatchFormedCallback(acceptance.StartAcceptance)
	acceptance.SetCallbacks(
		func(ctx context.Context, entry domain.QueueEntry) {
			if err := queue.JoinQueue(ctx, entry); err != nil {
				log.Printf("[services] requeue of %q failed: %v", entry.SummonerName, err)
			}
		},
		draft.StartDraft,
	)

	voting := NewVotingService(repos, broadcaster, bridge, supervisor, cfg)

	return &Services{
		Player:     player,
		Queue:      queue,
		Acceptance: acceptance,
		Draft:      draft,
		Supervisor: supervisor,
		Voting:     voting,
	}
}

// Start launches the background loops.
func (s *Services) Start(ctx context.Context) {
	s.Supervisor.Start(ctx)
}

// Stop shuts the background loops down and releases held leases.
func (s *Services) Stop(ctx context.Context) {
	s.Draft.Stop()
	s.Supervisor.Stop(ctx)
}
