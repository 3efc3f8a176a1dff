package postgres

import (
	"context"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type voteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *voteRepository {
	return &voteRepository{db: db}
}

func (r *voteRepository) Upsert(ctx context.Context, vote *domain.MatchVote) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}, {Name: "player_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"external_game_id", "voted_at"}),
		}).
		Create(vote).Error
}

func (r *voteRepository) GetByMatch(ctx context.Context, matchID int64) ([]*domain.MatchVote, error) {
	var votes []*domain.MatchVote
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("voted_at").
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

func (r *voteRepository) DeleteByMatch(ctx context.Context, matchID int64) error {
	return r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Delete(&domain.MatchVote{}).Error
}
