package entities

import "time"

// Event is a normalized, immutable record of one inbound platform
// interaction. The unique (platform, external_event_id) index makes
// ingestion idempotent: redelivered webhooks collapse onto one row.
type Event struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Platform        Platform  `gorm:"size:20;not null;uniqueIndex:idx_events_platform_external,priority:1" json:"platform"`
	ExternalEventID string    `gorm:"size:128;not null;uniqueIndex:idx_events_platform_external,priority:2" json:"external_event_id"`
	PostID          string    `gorm:"size:128;not null;index" json:"post_id"`
	EventType       EventType `gorm:"size:20;not null" json:"event_type"`
	ActorID         string    `gorm:"size:128;not null" json:"actor_id"`
	ActorUsername   string    `gorm:"size:128;default:''" json:"actor_username"`
	FollowersCount  int       `gorm:"not null;default:0" json:"followers_count"`
	IsVerified      bool      `gorm:"not null;default:false" json:"is_verified"`
	Text            string    `gorm:"size:4000;default:''" json:"text"`
	OccurredAt      time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (Event) TableName() string {
	return "events"
}
