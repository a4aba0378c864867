package entities

import "time"

// EngagementRecord is an audit row written for each (event, rule) decision:
// admitted-and-dispatched, rejected with a reason, or failed in dispatch.
// Records are pruned by the retention worker.
type EngagementRecord struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RuleID    uint           `gorm:"not null;index:idx_records_rule_created,priority:1" json:"rule_id"`
	EventID   string         `gorm:"size:36;not null;index" json:"event_id"`
	Outcome   Outcome        `gorm:"size:20;not null" json:"outcome"`
	Reason    string         `gorm:"size:200;default:''" json:"reason,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index:idx_records_rule_created,priority:2" json:"created_at"`
	Rule      AutomationRule `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (EngagementRecord) TableName() string {
	return "engagement_records"
}
