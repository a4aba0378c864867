package engine

import (
	"context"
	"errors"
	"time"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
	"github.com/postflow/engage/internal/telemetry"
)

const (
	// handleTimeout bounds the storage work done for one event.
	handleTimeout = 10 * time.Second
)

// Engine wires matching, admission and scheduling together. It subscribes
// to the event bus and, for every matched rule, increments the triggered
// counter, runs the condition evaluator (which reserves the rate slot) and
// persists an action plan for the dispatch workers.
type Engine struct {
	rules     repository.RuleRepository
	records   repository.RecordRepository
	matcher   *Matcher
	evaluator *Evaluator
	scheduler *Scheduler
	log       logger.Logger
}

// NewEngine creates a new engine.
func NewEngine(
	rules repository.RuleRepository,
	records repository.RecordRepository,
	matcher *Matcher,
	evaluator *Evaluator,
	scheduler *Scheduler,
	log logger.Logger,
) *Engine {
	return &Engine{
		rules:     rules,
		records:   records,
		matcher:   matcher,
		evaluator: evaluator,
		scheduler: scheduler,
		log:       log,
	}
}

// RefreshRules reloads the matcher's rule cache.
func (e *Engine) RefreshRules(ctx context.Context) error {
	return e.matcher.RefreshRules(ctx)
}

// HandleEvent processes one normalized event end to end. It is the bus
// subscriber; rejections and storage faults are logged and recorded, never
// propagated back to the ingest path.
func (e *Engine) HandleEvent(event *entities.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	matched, results := e.matcher.Match(event)
	for i := range results {
		if results[i].Matched {
			telemetry.RuleMatches.WithLabelValues("matched").Inc()
		} else {
			telemetry.RuleMatches.WithLabelValues("unmatched").Inc()
		}
	}

	now := time.Now()
	for i := range matched {
		rule := &matched[i]

		// "Triggered" means the content matched, independent of what the
		// conditions decide below.
		if err := e.rules.IncrementTriggered(ctx, rule.ID); err != nil {
			e.log.Error("failed to increment triggered count",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Error(err))
		}

		reason, err := e.evaluator.Admit(ctx, event, rule, now)
		if err != nil {
			e.log.Error("admission check failed",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("event_id", event.ID),
				logger.Error(err))
			continue
		}
		if reason != "" {
			telemetry.Rejections.WithLabelValues(string(reason)).Inc()
			e.recordRejection(ctx, rule.ID, event.ID, reason)
			continue
		}

		plan, err := e.scheduler.Plan(ctx, event, rule, now)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicatePlan) {
				// Redelivered event already produced a plan for this rule.
				continue
			}
			e.log.Error("failed to schedule action plan",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.String("event_id", event.ID),
				logger.Error(err))
			continue
		}
		telemetry.PlansScheduled.Inc()
		e.log.Debug("action plan scheduled",
			logger.String("plan_id", plan.ID),
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Int("steps", len(plan.Steps)))
	}
}

func (e *Engine) recordRejection(ctx context.Context, ruleID uint, eventID string, reason RejectReason) {
	record := &entities.EngagementRecord{
		RuleID:  ruleID,
		EventID: eventID,
		Outcome: entities.OutcomeRejected,
		Reason:  string(reason),
	}
	if err := e.records.CreateRecord(ctx, record); err != nil {
		e.log.Error("failed to record rejection",
			logger.Uint64("rule_id", uint64(ruleID)),
			logger.Error(err))
	}
}
