package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postflow/engage/internal/entities"
)

// planRepository implements PlanRepository.
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// CreatePlan persists a plan with its steps.
func (r *planRepository) CreatePlan(ctx context.Context, plan *entities.ActionPlan) error {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePlan
		}
		return fmt.Errorf("failed to create action plan: %w", err)
	}
	return nil
}

// GetPlan returns a plan with its steps ordered by sort_order.
func (r *planRepository) GetPlan(ctx context.Context, id string) (*entities.ActionPlan, error) {
	var plan entities.ActionPlan
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get action plan %s: %w", id, err)
	}
	return &plan, nil
}

// ListPlans returns plans matching the filter with pagination.
func (r *planRepository) ListPlans(ctx context.Context, filter PlanFilter) ([]entities.ActionPlan, int64, error) {
	var plans []entities.ActionPlan
	var total int64

	countQuery := r.db.WithContext(ctx).Model(&entities.ActionPlan{})
	countQuery = applyPlanFilter(countQuery, filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count action plans: %w", err)
	}

	query := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Order("created_at DESC")
	query = applyPlanFilter(query, filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&plans).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list action plans: %w", err)
	}
	return plans, total, nil
}

func applyPlanFilter(query *gorm.DB, filter PlanFilter) *gorm.DB {
	if filter.RuleID > 0 {
		query = query.Where("rule_id = ?", filter.RuleID)
	}
	if filter.EventID != "" {
		query = query.Where("event_id = ?", filter.EventID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

// ClaimDue claims up to limit due plans for a worker. The claim itself is an
// optimistic conditional update: only one worker's UPDATE can match the
// unclaimed (or stale) row, so concurrent pollers never share a plan.
func (r *planRepository) ClaimDue(ctx context.Context, workerID string, now, staleBefore time.Time, limit int) ([]entities.ActionPlan, error) {
	var candidateIDs []string
	err := r.db.WithContext(ctx).Model(&entities.ActionPlan{}).
		Joins("JOIN action_steps ON action_steps.plan_id = action_plans.id").
		Where("action_plans.status IN ?", []entities.PlanStatus{entities.PlanPending, entities.PlanInProgress}).
		Where("action_plans.claimed_by = '' OR action_plans.claimed_at < ?", staleBefore).
		Where("action_steps.status = ?", entities.StepPending).
		Where("action_steps.not_before <= ?", now).
		Where("action_steps.sort_order = (SELECT MIN(s2.sort_order) FROM action_steps s2 WHERE s2.plan_id = action_plans.id AND s2.status = ?)", entities.StepPending).
		Order("action_steps.not_before ASC").
		Limit(limit).
		Pluck("action_plans.id", &candidateIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due action plans: %w", err)
	}

	var claimed []entities.ActionPlan
	for _, id := range candidateIDs {
		result := r.db.WithContext(ctx).Model(&entities.ActionPlan{}).
			Where("id = ?", id).
			Where("status IN ?", []entities.PlanStatus{entities.PlanPending, entities.PlanInProgress}).
			Where("claimed_by = '' OR claimed_at < ?", staleBefore).
			Updates(map[string]any{
				"status":     entities.PlanInProgress,
				"claimed_by": workerID,
				"claimed_at": now,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to claim action plan %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			continue // lost the race to another worker
		}
		plan, err := r.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *plan)
	}
	return claimed, nil
}

// ReleaseClaim clears a plan's claim columns.
func (r *planRepository) ReleaseClaim(ctx context.Context, planID string) error {
	result := r.db.WithContext(ctx).Model(&entities.ActionPlan{}).
		Where("id = ?", planID).
		Updates(map[string]any{"claimed_by": "", "claimed_at": nil})
	if result.Error != nil {
		return fmt.Errorf("failed to release claim on plan %s: %w", planID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// CompleteStep marks a step completed. The status guard makes resumption
// idempotent: a step that already completed before a crash is not touched.
func (r *planRepository) CompleteStep(ctx context.Context, stepID uint, completedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.ActionStep{}).
		Where("id = ? AND status = ?", stepID, entities.StepPending).
		Updates(map[string]any{"status": entities.StepCompleted, "completed_at": completedAt})
	if result.Error != nil {
		return fmt.Errorf("failed to complete step %d: %w", stepID, result.Error)
	}
	return nil
}

// SetStepNotBefore persists a recomputed due time for a follow-up step.
func (r *planRepository) SetStepNotBefore(ctx context.Context, stepID uint, notBefore time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.ActionStep{}).
		Where("id = ?", stepID).
		Update("not_before", notBefore)
	if result.Error != nil {
		return fmt.Errorf("failed to set not_before for step %d: %w", stepID, result.Error)
	}
	return nil
}

// CompletePlan transitions a plan to completed and clears its claim.
func (r *planRepository) CompletePlan(ctx context.Context, planID string, completedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.ActionPlan{}).
		Where("id = ? AND status = ?", planID, entities.PlanInProgress).
		Updates(map[string]any{
			"status":       entities.PlanCompleted,
			"completed_at": completedAt,
			"claimed_by":   "",
			"claimed_at":   nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete plan %s: %w", planID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// FailPlan transitions a plan to failed, preserving the reason for the rule
// owner.
func (r *planRepository) FailPlan(ctx context.Context, planID, reason string, failedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.ActionPlan{}).
		Where("id = ?", planID).
		Where("status IN ?", []entities.PlanStatus{entities.PlanPending, entities.PlanInProgress}).
		Updates(map[string]any{
			"status":       entities.PlanFailed,
			"fail_reason":  reason,
			"completed_at": failedAt,
			"claimed_by":   "",
			"claimed_at":   nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to fail plan %s: %w", planID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// CancelPlan hard-cancels a non-terminal plan.
func (r *planRepository) CancelPlan(ctx context.Context, planID string) error {
	err := r.FailPlan(ctx, planID, "cancelled by operator", time.Now())
	if errors.Is(err, ErrPlanNotFound) {
		// Either missing or already terminal; disambiguate for the API.
		if _, getErr := r.GetPlan(ctx, planID); getErr == nil {
			return ErrPlanTerminal
		}
		return ErrPlanNotFound
	}
	return err
}
