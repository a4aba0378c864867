package repository

import (
	"context"
	"time"

	"github.com/postflow/engage/internal/entities"
)

// EventRepository handles normalized event storage. Inserts are idempotent
// on (platform, external_event_id).
type EventRepository interface {
	// InsertEvent stores a new event. Returns ErrDuplicateEvent if an event
	// with the same (platform, external_event_id) already exists.
	InsertEvent(ctx context.Context, event *entities.Event) error
	GetEvent(ctx context.Context, id string) (*entities.Event, error)
	GetByExternalID(ctx context.Context, platform entities.Platform, externalEventID string) (*entities.Event, error)

	// DeleteFinishedBefore garbage-collects events older than the cutoff
	// whose action plans have all reached a terminal state.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
