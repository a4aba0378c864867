package entities

import (
	"strings"
	"time"
)

// AutomationRule defines a configured trigger→response automation scoped to
// one published post. Rules are created and edited by the rule management
// API; the engine reads them and writes only the analytics columns.
type AutomationRule struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	WorkspaceID string   `gorm:"size:64;not null;index" json:"workspace_id"`
	Platform    Platform `gorm:"size:20;not null;index:idx_rules_platform_post,priority:1" json:"platform"`
	PostID      string   `gorm:"size:128;not null;index:idx_rules_platform_post,priority:2" json:"post_id"`
	Name        string   `gorm:"size:255;not null" json:"name"`
	IsActive    bool     `gorm:"not null;index" json:"is_active"`

	RuleType        RuleType     `gorm:"size:20;not null" json:"rule_type"`
	TriggerKind     TriggerKind  `gorm:"size:20;not null" json:"trigger_kind"`
	TriggerValue    string       `gorm:"size:255;default:''" json:"trigger_value"`
	ResponseKind    ResponseKind `gorm:"size:20;not null" json:"response_kind"`
	ResponseContent string       `gorm:"size:2000;default:''" json:"response_content"`

	// Time restriction, "HH:MM" in the given timezone. Empty means no
	// restriction. Start > End wraps past midnight.
	TimeStart string `gorm:"size:5;default:''" json:"time_start"`
	TimeEnd   string `gorm:"size:5;default:''" json:"time_end"`
	Timezone  string `gorm:"size:64;default:''" json:"timezone"`

	// Audience filters. Nil follower bounds mean unbounded.
	MinFollowers    *int   `json:"min_followers,omitempty"`
	MaxFollowers    *int   `json:"max_followers,omitempty"`
	VerifiedOnly    bool   `gorm:"not null;default:false" json:"verified_only"`
	ExcludeKeywords string `gorm:"size:1000;default:''" json:"exclude_keywords"` // comma-separated

	// Rate limiting.
	MaxPerHour      int `gorm:"not null;default:25" json:"max_per_hour"`
	MaxPerDay       int `gorm:"not null;default:100" json:"max_per_day"`
	CooldownMinutes int `gorm:"not null;default:0" json:"cooldown_minutes"`

	// Two-step comment→DM flow.
	ReplyFirst           bool   `gorm:"not null;default:false" json:"reply_first"`
	PublicReplyContent   string `gorm:"size:2000;default:''" json:"public_reply_content"`
	FollowUpDelayMinutes int    `gorm:"not null;default:0" json:"follow_up_delay_minutes"`

	// AI generation settings for ai_generated responses.
	AIPrompt string `gorm:"size:2000;default:''" json:"ai_prompt"`
	AITone   string `gorm:"size:50;default:''" json:"ai_tone"`

	// Analytics, mutated only by the engine.
	TriggeredCount       int64   `gorm:"not null;default:0" json:"triggered_count"`
	RespondedCount       int64   `gorm:"not null;default:0" json:"responded_count"`
	TotalResponseTimeSec float64 `gorm:"not null;default:0" json:"-"`
	AvgResponseTimeSec   float64 `gorm:"not null;default:0" json:"avg_response_time_sec"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// SuccessRate returns responded/triggered, defined as 0 when nothing has
// triggered yet.
func (r *AutomationRule) SuccessRate() float64 {
	if r.TriggeredCount == 0 {
		return 0
	}
	return float64(r.RespondedCount) / float64(r.TriggeredCount)
}

// ExcludeKeywordList splits the stored comma-separated exclude keywords,
// dropping empties and surrounding whitespace.
func (r *AutomationRule) ExcludeKeywordList() []string {
	if r.ExcludeKeywords == "" {
		return nil
	}
	parts := strings.Split(r.ExcludeKeywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// HasTimeRestriction reports whether the rule limits matching to a time window.
func (r *AutomationRule) HasTimeRestriction() bool {
	return r.TimeStart != "" && r.TimeEnd != ""
}
