package postgres

import (
	"context"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"gorm.io/gorm"
)

type playerRepository struct {
	db *gorm.DB
}

func NewPlayerRepository(db *gorm.DB) *playerRepository {
	return &playerRepository{db: db}
}

func (r *playerRepository) Create(ctx context.Context, player *domain.Player) error {
	return r.db.WithContext(ctx).Create(player).Error
}

func (r *playerRepository) GetByID(ctx context.Context, id int64) (*domain.Player, error) {
	var player domain.Player
	err := r.db.WithContext(ctx).First(&player, id).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (r *playerRepository) GetBySummonerName(ctx context.Context, summonerName string) (*domain.Player, error) {
	var player domain.Player
	err := r.db.WithContext(ctx).
		Where("summoner_name = ?", domain.NormalizeSummonerName(summonerName)).
		First(&player).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (r *playerRepository) GetByPUUID(ctx context.Context, puuid string) (*domain.Player, error) {
	var player domain.Player
	err := r.db.WithContext(ctx).Where("puuid = ?", puuid).First(&player).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (r *playerRepository) GetBySummonerNames(ctx context.Context, summonerNames []string) ([]*domain.Player, error) {
	normalized := make([]string, len(summonerNames))
	for i, n := range summonerNames {
		normalized[i] = domain.NormalizeSummonerName(n)
	}

	var players []*domain.Player
	err := r.db.WithContext(ctx).
		Where("summoner_name IN ?", normalized).
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (r *playerRepository) Update(ctx context.Context, player *domain.Player) error {
	return r.db.WithContext(ctx).Save(player).Error
}
