package repository

import (
	"context"

	"github.com/postflow/engage/internal/entities"
)

// RuleRepository handles automation rule reads and the analytics writes the
// engine is allowed to make. Full CRUD is exposed for the rule management
// API; the engine itself only calls the read and analytics methods.
type RuleRepository interface {
	// Rule CRUD (rule management surface)
	ListRules(ctx context.Context, filter RuleFilter) ([]entities.AutomationRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AutomationRule, error)
	CreateRule(ctx context.Context, rule *entities.AutomationRule) error
	UpdateRule(ctx context.Context, rule *entities.AutomationRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, active bool) error

	// Engine reads
	GetActiveRules(ctx context.Context) ([]entities.AutomationRule, error)

	// Analytics writes. These touch only the analytics columns so the
	// engine can never clobber a concurrent rule edit.
	IncrementTriggered(ctx context.Context, ruleID uint) error
	RecordResponse(ctx context.Context, ruleID uint, responseTimeSec float64) error
}

// RuleFilter controls rule listing queries.
type RuleFilter struct {
	WorkspaceID string
	Platform    entities.Platform
	PostID      string
	Active      *bool
}
