package repository

import (
	"context"
	"time"

	"github.com/postflow/engage/internal/entities"
)

// PlanRepository handles durable action plan scheduling. Claiming is the
// single-owner primitive: a plan claimed by one worker cannot be claimed by
// another until its lease expires or the claim is released.
type PlanRepository interface {
	// CreatePlan persists a plan with its steps. Returns ErrDuplicatePlan
	// if a plan already exists for the same (event, rule) pair.
	CreatePlan(ctx context.Context, plan *entities.ActionPlan) error
	GetPlan(ctx context.Context, id string) (*entities.ActionPlan, error)
	ListPlans(ctx context.Context, filter PlanFilter) ([]entities.ActionPlan, int64, error)

	// ClaimDue atomically claims up to limit plans whose next pending step
	// is due at now. Plans already claimed under a lease newer than
	// staleBefore are skipped; stale leases are reclaimable so a crashed
	// worker's plans resume. Claimed plans are returned with their steps
	// ordered by sort_order.
	ClaimDue(ctx context.Context, workerID string, now, staleBefore time.Time, limit int) ([]entities.ActionPlan, error)

	// ReleaseClaim clears a plan's claim so other workers can pick it up
	// once its next step becomes due.
	ReleaseClaim(ctx context.Context, planID string) error

	// Step advancement.
	CompleteStep(ctx context.Context, stepID uint, completedAt time.Time) error
	SetStepNotBefore(ctx context.Context, stepID uint, notBefore time.Time) error

	// Terminal transitions.
	CompletePlan(ctx context.Context, planID string, completedAt time.Time) error
	FailPlan(ctx context.Context, planID, reason string, failedAt time.Time) error

	// CancelPlan hard-cancels a non-terminal plan. Returns ErrPlanTerminal
	// if the plan has already completed or failed.
	CancelPlan(ctx context.Context, planID string) error
}

// PlanFilter controls plan listing queries.
type PlanFilter struct {
	RuleID  uint
	EventID string
	Status  entities.PlanStatus
	Limit   int
	Offset  int
}
