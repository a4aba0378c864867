// Package ingest normalizes raw platform notifications into canonical
// events and feeds them to the engine, exactly once per external event ID.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/postflow/engage/internal/engine"
	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
	"github.com/postflow/engage/internal/telemetry"
)

// ErrInvalidEvent marks payloads the ingestor refuses to queue.
var ErrInvalidEvent = errors.New("invalid event payload")

const (
	// dedupTTL is how long external event IDs stay in the in-memory dedup
	// cache. The unique DB index remains the authority; the cache just
	// short-circuits webhook redelivery bursts.
	dedupTTL = 15 * time.Minute
)

// RawEvent is the platform-agnostic shape of one inbound notification as
// delivered by a webhook or poller.
type RawEvent struct {
	ExternalEventID string             `json:"external_event_id"`
	PostID          string             `json:"post_id"`
	Type            entities.EventType `json:"type"`
	ActorID         string             `json:"actor_id"`
	ActorUsername   string             `json:"actor_username"`
	FollowersCount  int                `json:"followers_count"`
	IsVerified      bool               `json:"is_verified"`
	Text            string             `json:"text"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// Ingestor validates, normalizes, deduplicates and publishes raw events.
type Ingestor struct {
	events repository.EventRepository
	bus    *engine.EventBus
	seen   *gocache.Cache
	log    logger.Logger
}

// NewIngestor creates a new Ingestor.
func NewIngestor(events repository.EventRepository, bus *engine.EventBus, log logger.Logger) *Ingestor {
	return &Ingestor{
		events: events,
		bus:    bus,
		seen:   gocache.New(dedupTTL, 2*dedupTTL),
		log:    log,
	}
}

// Ingest normalizes one raw notification. It returns the stored event, or
// ErrInvalidEvent for malformed payloads (dropped, not queued), or
// repository.ErrDuplicateEvent together with the previously stored event
// when the external event ID was already ingested.
func (i *Ingestor) Ingest(ctx context.Context, platform entities.Platform, raw *RawEvent) (*entities.Event, error) {
	if err := validate(platform, raw); err != nil {
		telemetry.EventsIngested.WithLabelValues("invalid").Inc()
		return nil, err
	}

	dedupKey := string(platform) + "|" + raw.ExternalEventID
	if _, hit := i.seen.Get(dedupKey); hit {
		telemetry.EventsIngested.WithLabelValues("duplicate").Inc()
		return i.existing(ctx, platform, raw.ExternalEventID)
	}

	occurredAt := raw.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	event := &entities.Event{
		ID:              uuid.NewString(),
		Platform:        platform,
		ExternalEventID: raw.ExternalEventID,
		PostID:          raw.PostID,
		EventType:       raw.Type,
		ActorID:         raw.ActorID,
		ActorUsername:   raw.ActorUsername,
		FollowersCount:  raw.FollowersCount,
		IsVerified:      raw.IsVerified,
		Text:            raw.Text,
		OccurredAt:      occurredAt,
	}

	if err := i.events.InsertEvent(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			telemetry.EventsIngested.WithLabelValues("duplicate").Inc()
			i.seen.SetDefault(dedupKey, struct{}{})
			return i.existing(ctx, platform, raw.ExternalEventID)
		}
		return nil, err
	}

	i.seen.SetDefault(dedupKey, struct{}{})
	telemetry.EventsIngested.WithLabelValues("accepted").Inc()
	i.bus.Publish(event)

	i.log.Debug("event ingested",
		logger.String("event_id", event.ID),
		logger.String("platform", string(platform)),
		logger.String("post_id", event.PostID),
		logger.String("type", string(event.EventType)))
	return event, nil
}

// existing loads the event stored for an already-seen external ID so
// duplicate deliveries still answer with the canonical event ID.
func (i *Ingestor) existing(ctx context.Context, platform entities.Platform, externalEventID string) (*entities.Event, error) {
	event, err := i.events.GetByExternalID(ctx, platform, externalEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deduplicated event: %w", err)
	}
	return event, repository.ErrDuplicateEvent
}

func validate(platform entities.Platform, raw *RawEvent) error {
	if !platform.Valid() {
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidEvent, platform)
	}
	if raw.ExternalEventID == "" {
		return fmt.Errorf("%w: missing external_event_id", ErrInvalidEvent)
	}
	if raw.PostID == "" {
		return fmt.Errorf("%w: missing post_id", ErrInvalidEvent)
	}
	if !raw.Type.Valid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, raw.Type)
	}
	if raw.ActorID == "" {
		return fmt.Errorf("%w: missing actor_id", ErrInvalidEvent)
	}
	return nil
}
