package entities

import "time"

// ActionPlan is the durable unit of dispatch work produced for one admitted
// (event, rule) pair. Steps execute strictly in SortOrder; a plan is owned
// by at most one worker at a time via the claim columns.
type ActionPlan struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	EventID     string       `gorm:"size:36;not null;uniqueIndex:idx_plans_event_rule,priority:1" json:"event_id"`
	RuleID      uint         `gorm:"not null;uniqueIndex:idx_plans_event_rule,priority:2;index" json:"rule_id"`
	Status      PlanStatus   `gorm:"size:20;not null;index" json:"status"`
	FailReason  string       `gorm:"size:500;default:''" json:"fail_reason,omitempty"`
	ClaimedBy   string       `gorm:"size:64;default:'';index" json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	Steps       []ActionStep `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"steps"`
}

// TableName returns the table name for GORM.
func (ActionPlan) TableName() string {
	return "action_plans"
}

// NextPendingStep returns the first step that has not completed, or nil if
// every step is done. Steps are assumed sorted by SortOrder.
func (p *ActionPlan) NextPendingStep() *ActionStep {
	for i := range p.Steps {
		if p.Steps[i].Status != StepCompleted {
			return &p.Steps[i]
		}
	}
	return nil
}

// ActionStep is a single ordered send within an ActionPlan. NotBefore gates
// execution; for follow-up DM steps it is recomputed from the completion
// time of the preceding step.
type ActionStep struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PlanID         string     `gorm:"size:36;not null;index" json:"plan_id"`
	SortOrder      int        `gorm:"not null;default:0" json:"sort_order"`
	Kind           StepKind   `gorm:"size:20;not null" json:"kind"`
	Content        string     `gorm:"size:2000;default:''" json:"content"`
	UsesGeneration bool       `gorm:"not null;default:false" json:"uses_generation"`
	NotBefore      time.Time  `gorm:"not null;index" json:"not_before"`
	Status         StepStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for GORM.
func (ActionStep) TableName() string {
	return "action_steps"
}
