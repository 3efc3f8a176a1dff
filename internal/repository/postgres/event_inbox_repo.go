package postgres

import (
	"context"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"gorm.io/gorm"
)

type eventInboxRepository struct {
	db *gorm.DB
}

func NewEventInboxRepository(db *gorm.DB) *eventInboxRepository {
	return &eventInboxRepository{db: db}
}

func (r *eventInboxRepository) Create(ctx context.Context, event *domain.EventInbox) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventInboxRepository) GetUnprocessed(ctx context.Context, excludeBackendID string, limit int) ([]*domain.EventInbox, error) {
	var events []*domain.EventInbox
	err := r.db.WithContext(ctx).
		Where("processed = ? AND backend_id <> ?", false, excludeBackendID).
		Order("created_at").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventInboxRepository) MarkProcessed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.EventInbox{}).
		Where("id = ?", id).
		Update("processed", true).Error
}
