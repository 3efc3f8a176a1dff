package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/riftbridge/custom-match-core/internal/repository"
	"gorm.io/gorm"
)

// placeholderPUUIDPrefix marks player rows created before their first
// identified connection.
const placeholderPUUIDPrefix = "local:"

// PlayerService creates player rows lazily and guards the summoner↔puuid
// binding.
type PlayerService struct {
	players    repository.PlayerRepository
	defaultMMR int
}

func NewPlayerService(players repository.PlayerRepository, defaultMMR int) *PlayerService {
	return &PlayerService{players: players, defaultMMR: defaultMMR}
}

// EnsurePlayer returns the player row for the summoner, creating it on first
// sight. A known name presenting a different puuid is rejected; a known puuid
// under a new name means a rename and the row is updated in place.
func (s *PlayerService) EnsurePlayer(ctx context.Context, summonerName, puuid, region string) (*domain.Player, error) {
	name := domain.NormalizeSummonerName(summonerName)

	player, err := s.players.GetBySummonerName(ctx, name)
	if err == nil {
		if puuid != "" && player.PUUID != puuid {
			// Placeholder ids from pre-identify rows upgrade in place; a
			// real puuid mismatch is an identity conflict.
			if !strings.HasPrefix(player.PUUID, placeholderPUUIDPrefix) {
				return nil, domain.ErrPUUIDConflict
			}
			player.PUUID = puuid
			if err := s.players.Update(ctx, player); err != nil {
				return nil, err
			}
		}
		return player, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if puuid != "" {
		if existing, err := s.players.GetByPUUID(ctx, puuid); err == nil {
			log.Printf("[player] puuid %s renamed %q -> %q", puuid, existing.SummonerName, name)
			existing.SummonerName = name
			if region != "" {
				existing.Region = region
			}
			if err := s.players.Update(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if puuid == "" {
		// Rows can be created before the player ever identifies (queue joins
		// by name). The placeholder keeps the unique index satisfied until a
		// real puuid arrives.
		puuid = placeholderPUUIDPrefix + name
	}
	player = &domain.Player{
		SummonerName: name,
		PUUID:        puuid,
		Region:       region,
		CurrentMMR:   s.defaultMMR,
		CustomMMR:    s.defaultMMR,
	}
	if err := s.players.Create(ctx, player); err != nil {
		return nil, err
	}
	log.Printf("[player] created %q (id %d)", name, player.ID)
	return player, nil
}

// GetBySummonerName looks a player up by normalized name.
func (s *PlayerService) GetBySummonerName(ctx context.Context, summonerName string) (*domain.Player, error) {
	return s.players.GetBySummonerName(ctx, domain.NormalizeSummonerName(summonerName))
}
