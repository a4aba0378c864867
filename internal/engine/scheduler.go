package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/repository"
)

// Scheduler turns an admitted (event, rule) pair into a persisted
// ActionPlan. ai_generated content is deliberately not resolved here; the
// dispatch worker generates text immediately before sending so it reflects
// the freshest context.
type Scheduler struct {
	plans repository.PlanRepository
}

// NewScheduler creates a new Scheduler.
func NewScheduler(plans repository.PlanRepository) *Scheduler {
	return &Scheduler{plans: plans}
}

// Plan builds and persists the action plan for an admitted pair. For
// comment_to_dm rules with replyFirst the plan has two ordered steps —
// public reply now, DM after the follow-up delay; the DM's notBefore is
// provisional and recomputed from the reply's actual completion time by
// the worker. All other configurations produce a single immediate step.
// Returns repository.ErrDuplicatePlan when a plan for the pair already
// exists (redelivered event), which callers treat as a no-op.
func (s *Scheduler) Plan(ctx context.Context, event *entities.Event, rule *entities.AutomationRule, now time.Time) (*entities.ActionPlan, error) {
	plan := &entities.ActionPlan{
		ID:      uuid.NewString(),
		EventID: event.ID,
		RuleID:  rule.ID,
		Status:  entities.PlanPending,
		Steps:   buildSteps(rule, now),
	}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func buildSteps(rule *entities.AutomationRule, now time.Time) []entities.ActionStep {
	usesGeneration := rule.ResponseKind == entities.ResponseAIGenerated

	if rule.RuleType == entities.RuleTypeCommentToDM && rule.ReplyFirst {
		replyContent := rule.PublicReplyContent
		if replyContent == "" {
			replyContent = rule.ResponseContent
		}
		delay := time.Duration(rule.FollowUpDelayMinutes) * time.Minute
		return []entities.ActionStep{
			{
				SortOrder: 0,
				Kind:      entities.StepPublicReply,
				Content:   replyContent,
				NotBefore: now,
				Status:    entities.StepPending,
			},
			{
				SortOrder:      1,
				Kind:           entities.StepDM,
				Content:        rule.ResponseContent,
				UsesGeneration: usesGeneration,
				NotBefore:      now.Add(delay), // provisional until step 0 completes
				Status:         entities.StepPending,
			},
		}
	}

	return []entities.ActionStep{
		{
			SortOrder:      0,
			Kind:           stepKindFor(rule.RuleType),
			Content:        rule.ResponseContent,
			UsesGeneration: usesGeneration,
			NotBefore:      now,
			Status:         entities.StepPending,
		},
	}
}

// stepKindFor maps a rule type to the kind of its single send.
func stepKindFor(ruleType entities.RuleType) entities.StepKind {
	switch ruleType {
	case entities.RuleTypeComment, entities.RuleTypeMentionReply:
		return entities.StepPublicReply
	case entities.RuleTypeCommentToDM, entities.RuleTypeStoryReply:
		return entities.StepDM
	default:
		return entities.StepPublicReply
	}
}
