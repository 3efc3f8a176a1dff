package repository

import (
	"context"

	"github.com/riftbridge/custom-match-core/internal/domain"
)

type PlayerRepository interface {
	Create(ctx context.Context, player *domain.Player) error
	GetByID(ctx context.Context, id int64) (*domain.Player, error)
	GetBySummonerName(ctx context.Context, summonerName string) (*domain.Player, error)
	GetByPUUID(ctx context.Context, puuid string) (*domain.Player, error)
	GetBySummonerNames(ctx context.Context, summonerNames []string) ([]*domain.Player, error)
	Update(ctx context.Context, player *domain.Player) error
}

type MatchRepository interface {
	Create(ctx context.Context, match *domain.Match) error
	GetByID(ctx context.Context, id int64) (*domain.Match, error)
	Update(ctx context.Context, match *domain.Match) error
	// GetByStatuses returns matches in any of the given states.
	GetByStatuses(ctx context.Context, statuses []domain.MatchStatus) ([]*domain.Match, error)
	// Finalize persists the completed match and all player rating updates in
	// one transaction.
	Finalize(ctx context.Context, match *domain.Match, players []*domain.Player) error
}

type VoteRepository interface {
	// Upsert records a vote, replacing the player's previous vote for the
	// match if one exists.
	Upsert(ctx context.Context, vote *domain.MatchVote) error
	GetByMatch(ctx context.Context, matchID int64) ([]*domain.MatchVote, error)
	DeleteByMatch(ctx context.Context, matchID int64) error
}

type EventInboxRepository interface {
	Create(ctx context.Context, event *domain.EventInbox) error
	// GetUnprocessed returns pending events written by other backends.
	GetUnprocessed(ctx context.Context, excludeBackendID string, limit int) ([]*domain.EventInbox, error)
	MarkProcessed(ctx context.Context, id int64) error
}

type Repositories struct {
	Player     PlayerRepository
	Match      MatchRepository
	Vote       VoteRepository
	EventInbox EventInboxRepository
}
