package entities

import "time"

// RateCounter is the persisted snapshot of a rule's admission quota. It is
// written only from the serialized per-rule reservation path and read back
// on restart to seed the in-memory sliding window conservatively.
type RateCounter struct {
	RuleID       uint      `gorm:"primaryKey" json:"rule_id"`
	WindowStart  time.Time `gorm:"not null" json:"window_start"`
	HourCount    int       `gorm:"not null;default:0" json:"hour_count"`
	DayCount     int       `gorm:"not null;default:0" json:"day_count"`
	LastActionAt time.Time `json:"last_action_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (RateCounter) TableName() string {
	return "rate_counters"
}
