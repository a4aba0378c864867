package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postflow/engage/internal/entities"
)

func newTestPlan(eventID string, ruleID uint, steps ...entities.ActionStep) *entities.ActionPlan {
	return &entities.ActionPlan{
		ID:      uuid.NewString(),
		EventID: eventID,
		RuleID:  ruleID,
		Status:  entities.PlanPending,
		Steps:   steps,
	}
}

func pendingStep(order int, kind entities.StepKind, notBefore time.Time) entities.ActionStep {
	return entities.ActionStep{
		SortOrder: order,
		Kind:      kind,
		Content:   "hello",
		NotBefore: notBefore,
		Status:    entities.StepPending,
	}
}

func TestPlanRepository_CreateAndGet(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	plan := newTestPlan("evt-1", 1,
		pendingStep(0, entities.StepPublicReply, now),
		pendingStep(1, entities.StepDM, now.Add(time.Minute)))
	require.NoError(t, repo.CreatePlan(ctx, plan))

	got, err := repo.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanPending, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, entities.StepPublicReply, got.Steps[0].Kind)
	assert.Equal(t, entities.StepDM, got.Steps[1].Kind)
}

func TestPlanRepository_GetMissing(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	_, err := repo.GetPlan(t.Context(), "no-such-plan")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanRepository_DuplicateEventRulePair(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	require.NoError(t, repo.CreatePlan(ctx, newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now))))
	err := repo.CreatePlan(ctx, newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now)))
	assert.ErrorIs(t, err, ErrDuplicatePlan)

	// Same event, different rule is fine.
	require.NoError(t, repo.CreatePlan(ctx, newTestPlan("evt-1", 2, pendingStep(0, entities.StepDM, now))))
}

func TestPlanRepository_ClaimDue(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	due := newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now.Add(-time.Minute)))
	notYet := newTestPlan("evt-2", 1, pendingStep(0, entities.StepDM, now.Add(time.Hour)))
	require.NoError(t, repo.CreatePlan(ctx, due))
	require.NoError(t, repo.CreatePlan(ctx, notYet))

	claimed, err := repo.ClaimDue(ctx, "worker-a", now, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, entities.PlanInProgress, claimed[0].Status)
	assert.Equal(t, "worker-a", claimed[0].ClaimedBy)

	// A second worker polling immediately sees nothing claimable.
	claimed, err = repo.ClaimDue(ctx, "worker-b", now, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestPlanRepository_StaleClaimIsReclaimable(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	plan := newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now.Add(-time.Hour)))
	require.NoError(t, repo.CreatePlan(ctx, plan))

	// worker-a claims, then crashes.
	crashTime := now.Add(-10 * time.Minute)
	claimed, err := repo.ClaimDue(ctx, "worker-a", crashTime, crashTime.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Lease is 2 minutes; 10 minutes later the claim is stale and worker-b
	// takes over.
	claimed, err = repo.ClaimDue(ctx, "worker-b", now, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "worker-b", claimed[0].ClaimedBy)
}

func TestPlanRepository_ClaimSkipsCompletedFirstStep(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	// Step 0 done, step 1 not due: the plan must not be claimable.
	plan := newTestPlan("evt-1", 1,
		pendingStep(0, entities.StepPublicReply, now.Add(-time.Hour)),
		pendingStep(1, entities.StepDM, now.Add(time.Hour)))
	require.NoError(t, repo.CreatePlan(ctx, plan))
	require.NoError(t, repo.CompleteStep(ctx, plan.Steps[0].ID, now))

	claimed, err := repo.ClaimDue(ctx, "worker-a", now, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// Once step 1 becomes due it is claimable again.
	later := now.Add(2 * time.Hour)
	claimed, err = repo.ClaimDue(ctx, "worker-a", later, later.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestPlanRepository_CompleteStepIsIdempotent(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	plan := newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now))
	require.NoError(t, repo.CreatePlan(ctx, plan))

	first := now.Add(time.Second)
	require.NoError(t, repo.CompleteStep(ctx, plan.Steps[0].ID, first))
	// A crashed-and-resumed worker calling again must not move completed_at.
	require.NoError(t, repo.CompleteStep(ctx, plan.Steps[0].ID, now.Add(time.Hour)))

	got, err := repo.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Steps[0].CompletedAt)
	assert.WithinDuration(t, first, *got.Steps[0].CompletedAt, time.Second)
}

func TestPlanRepository_CompleteAndFail(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	plan := newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now))
	require.NoError(t, repo.CreatePlan(ctx, plan))
	claimed, err := repo.ClaimDue(ctx, "worker-a", now, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, repo.CompletePlan(ctx, plan.ID, now))
	got, err := repo.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanCompleted, got.Status)
	assert.Empty(t, got.ClaimedBy)

	// Completed plans cannot fail afterwards.
	assert.ErrorIs(t, repo.FailPlan(ctx, plan.ID, "too late", now), ErrPlanNotFound)
}

func TestPlanRepository_CancelPlan(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	plan := newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now))
	require.NoError(t, repo.CreatePlan(ctx, plan))

	require.NoError(t, repo.CancelPlan(ctx, plan.ID))
	got, err := repo.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanFailed, got.Status)
	assert.Equal(t, "cancelled by operator", got.FailReason)

	// Cancelling again reports the terminal state.
	assert.ErrorIs(t, repo.CancelPlan(ctx, plan.ID), ErrPlanTerminal)
	assert.ErrorIs(t, repo.CancelPlan(ctx, "no-such-plan"), ErrPlanNotFound)
}

func TestPlanRepository_ListPlansFilters(t *testing.T) {
	repo := NewPlanRepository(setupTestDB(t))
	ctx := t.Context()
	now := time.Now()

	require.NoError(t, repo.CreatePlan(ctx, newTestPlan("evt-1", 1, pendingStep(0, entities.StepDM, now))))
	require.NoError(t, repo.CreatePlan(ctx, newTestPlan("evt-2", 1, pendingStep(0, entities.StepDM, now))))
	require.NoError(t, repo.CreatePlan(ctx, newTestPlan("evt-3", 2, pendingStep(0, entities.StepDM, now))))

	plans, total, err := repo.ListPlans(ctx, PlanFilter{RuleID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, plans, 2)

	plans, total, err = repo.ListPlans(ctx, PlanFilter{Status: entities.PlanPending, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, plans, 1)
}
