package postgres

import (
	"context"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"gorm.io/gorm"
)

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *matchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) Create(ctx context.Context, match *domain.Match) error {
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *matchRepository) GetByID(ctx context.Context, id int64) (*domain.Match, error) {
	var match domain.Match
	err := r.db.WithContext(ctx).First(&match, id).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *matchRepository) Update(ctx context.Context, match *domain.Match) error {
	return r.db.WithContext(ctx).Save(match).Error
}

func (r *matchRepository) GetByStatuses(ctx context.Context, statuses []domain.MatchStatus) ([]*domain.Match, error) {
	var matches []*domain.Match
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Finalize writes the completed match and all rating updates atomically. A
// partial write here would desync player stats from the stored LP map.
func (r *matchRepository) Finalize(ctx context.Context, match *domain.Match, players []*domain.Player) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(match).Error; err != nil {
			return err
		}
		for _, p := range players {
			if err := tx.Save(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
