package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/postflow/engage/internal/entities"
)

// ruleRepository implements RuleRepository.
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{db: db}
}

// ListRules returns automation rules matching the given filter.
func (r *ruleRepository) ListRules(ctx context.Context, filter RuleFilter) ([]entities.AutomationRule, error) {
	var rules []entities.AutomationRule
	query := r.db.WithContext(ctx)

	if filter.WorkspaceID != "" {
		query = query.Where("workspace_id = ?", filter.WorkspaceID)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.PostID != "" {
		query = query.Where("post_id = ?", filter.PostID)
	}
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}

	if err := query.Order("id ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list automation rules: %w", err)
	}
	return rules, nil
}

// GetRule returns a single automation rule by ID.
// Returns ErrRuleNotFound if the rule does not exist.
func (r *ruleRepository) GetRule(ctx context.Context, id uint) (*entities.AutomationRule, error) {
	var rule entities.AutomationRule
	if err := r.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get automation rule %d: %w", id, err)
	}
	return &rule, nil
}

// CreateRule creates a new automation rule.
func (r *ruleRepository) CreateRule(ctx context.Context, rule *entities.AutomationRule) error {
	if err := r.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create automation rule: %w", err)
	}
	return nil
}

// UpdateRule replaces a rule's configuration. Analytics columns are omitted
// from the update so concurrent engine writes are never overwritten.
func (r *ruleRepository) UpdateRule(ctx context.Context, rule *entities.AutomationRule) error {
	if rule.ID == 0 {
		return fmt.Errorf("failed to update automation rule: missing rule ID")
	}
	result := r.db.WithContext(ctx).Model(&entities.AutomationRule{}).
		Where("id = ?", rule.ID).
		Select("*").
		Omit("id", "created_at", "triggered_count", "responded_count", "total_response_time_sec", "avg_response_time_sec").
		Updates(rule)
	if result.Error != nil {
		return fmt.Errorf("failed to update automation rule %d: %w", rule.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule deletes an automation rule.
func (r *ruleRepository) DeleteRule(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AutomationRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete automation rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ToggleRule activates or deactivates an automation rule.
func (r *ruleRepository) ToggleRule(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&entities.AutomationRule{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to toggle automation rule %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetActiveRules returns all active automation rules.
func (r *ruleRepository) GetActiveRules(ctx context.Context) ([]entities.AutomationRule, error) {
	active := true
	return r.ListRules(ctx, RuleFilter{Active: &active})
}

// IncrementTriggered bumps the triggered counter for a rule.
func (r *ruleRepository) IncrementTriggered(ctx context.Context, ruleID uint) error {
	result := r.db.WithContext(ctx).Model(&entities.AutomationRule{}).
		Where("id = ?", ruleID).
		Update("triggered_count", gorm.Expr("triggered_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment triggered count for rule %d: %w", ruleID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// RecordResponse bumps the responded counter and folds the response time
// into the running mean, all in one SQL statement.
func (r *ruleRepository) RecordResponse(ctx context.Context, ruleID uint, responseTimeSec float64) error {
	result := r.db.WithContext(ctx).Model(&entities.AutomationRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{
			"responded_count":         gorm.Expr("responded_count + 1"),
			"total_response_time_sec": gorm.Expr("total_response_time_sec + ?", responseTimeSec),
			"avg_response_time_sec":   gorm.Expr("(total_response_time_sec + ?) / (responded_count + 1)", responseTimeSec),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record response for rule %d: %w", ruleID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}
