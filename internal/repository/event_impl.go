package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postflow/engage/internal/entities"
)

// eventRepository implements EventRepository.
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// InsertEvent stores a new event. The unique index on
// (platform, external_event_id) is the dedup authority; a violation maps to
// ErrDuplicateEvent. Requires the gorm TranslateError option.
func (r *eventRepository) InsertEvent(ctx context.Context, event *entities.Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID. Returns ErrEventNotFound if absent.
func (r *eventRepository) GetEvent(ctx context.Context, id string) (*entities.Event, error) {
	var event entities.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return &event, nil
}

// GetByExternalID returns the event stored for a platform notification ID.
func (r *eventRepository) GetByExternalID(ctx context.Context, platform entities.Platform, externalEventID string) (*entities.Event, error) {
	var event entities.Event
	err := r.db.WithContext(ctx).
		First(&event, "platform = ? AND external_event_id = ?", platform, externalEventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event %s/%s: %w", platform, externalEventID, err)
	}
	return &event, nil
}

// DeleteFinishedBefore deletes events older than the cutoff that have no
// pending or in-progress action plans left.
func (r *eventRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Where("NOT EXISTS (SELECT 1 FROM action_plans WHERE action_plans.event_id = events.id AND action_plans.status IN ?)",
			[]entities.PlanStatus{entities.PlanPending, entities.PlanInProgress}).
		Delete(&entities.Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete finished events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
