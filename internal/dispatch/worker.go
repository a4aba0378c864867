// Package dispatch executes due action plan steps through the channel
// adapter and finalizes plan state and rule analytics.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/postflow/engage/internal/channel"
	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/generation"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
	"github.com/postflow/engage/internal/telemetry"
)

// Config tunes the worker pool.
type Config struct {
	Workers        int
	PollInterval   time.Duration
	ClaimLease     time.Duration
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Pool runs N stateless workers that poll the plan repository for claimable
// due work. A plan is executed by exactly one worker at a time: the claim
// lease in the repository is the ownership primitive, and step-level
// completion guards make crash resumption idempotent.
type Pool struct {
	cfg       Config
	plans     repository.PlanRepository
	events    repository.EventRepository
	rules     repository.RuleRepository
	records   repository.RecordRepository
	adapter   channel.Adapter
	generator generation.Generator
	log       logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPool creates a worker pool. Start must be called to begin polling.
func NewPool(
	cfg Config,
	plans repository.PlanRepository,
	events repository.EventRepository,
	rules repository.RuleRepository,
	records repository.RecordRepository,
	adapter channel.Adapter,
	generator generation.Generator,
	log logger.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Pool{
		cfg:       cfg,
		plans:     plans,
		events:    events,
		rules:     rules,
		records:   records,
		adapter:   adapter,
		generator: generator,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for n := 0; n < p.cfg.Workers; n++ {
		workerID := fmt.Sprintf("worker-%d-%s", n, uuid.NewString()[:8])
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
	p.log.Info("dispatch pool started", logger.Int("workers", p.cfg.Workers))
}

// Stop signals workers to exit and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll(ctx, workerID)
		}
	}
}

// poll claims a batch of due plans and executes them.
func (p *Pool) poll(ctx context.Context, workerID string) {
	now := time.Now()
	claimed, err := p.plans.ClaimDue(ctx, workerID, now, now.Add(-p.cfg.ClaimLease), p.cfg.BatchSize)
	if err != nil {
		p.log.Error("failed to claim due plans", logger.Error(err))
		return
	}
	for i := range claimed {
		p.executePlan(ctx, &claimed[i])
	}
}

// executePlan runs the claimed plan's due steps in order, releasing the
// claim when the next step is not yet due.
func (p *Pool) executePlan(ctx context.Context, plan *entities.ActionPlan) {
	event, err := p.events.GetEvent(ctx, plan.EventID)
	if err != nil {
		p.log.Error("failed to load event for plan",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
		p.release(ctx, plan.ID)
		return
	}
	rule, err := p.rules.GetRule(ctx, plan.RuleID)
	if err != nil {
		// The rule was deleted after admission; there is nothing sensible
		// left to send.
		p.failPlan(ctx, plan, event, "rule no longer exists")
		return
	}

	for {
		step := plan.NextPendingStep()
		if step == nil {
			p.completePlan(ctx, plan, event, rule)
			return
		}
		if step.NotBefore.After(time.Now()) {
			// Follow-up not due yet; hand the plan back to the queue.
			p.release(ctx, plan.ID)
			return
		}
		if done := p.executeStep(ctx, plan, step, event, rule); !done {
			return // plan failed, already finalized
		}
		if next := plan.NextPendingStep(); next != nil {
			notBefore := time.Now().Add(time.Duration(rule.FollowUpDelayMinutes) * time.Minute)
			next.NotBefore = notBefore
			if err := p.plans.SetStepNotBefore(ctx, next.ID, notBefore); err != nil {
				p.log.Error("failed to persist follow-up schedule",
					logger.String("plan_id", plan.ID),
					logger.Error(err))
			}
		}
	}
}

// executeStep resolves content and sends one step, retrying transient
// channel errors with exponential backoff. Returns false when the plan was
// failed and finalized.
func (p *Pool) executeStep(ctx context.Context, plan *entities.ActionPlan, step *entities.ActionStep, event *entities.Event, rule *entities.AutomationRule) bool {
	content := p.resolveContent(ctx, step, event, rule)

	var sendErr error
	backoff := p.cfg.InitialBackoff
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		sendErr = p.send(ctx, step, event, rule, content)
		if sendErr == nil {
			telemetry.StepSends.WithLabelValues(string(step.Kind), "ok").Inc()
			break
		}
		if channel.IsPermanent(sendErr) {
			telemetry.StepSends.WithLabelValues(string(step.Kind), "permanent_error").Inc()
			p.failPlan(ctx, plan, event, sendErr.Error())
			return false
		}
		telemetry.StepSends.WithLabelValues(string(step.Kind), "transient_error").Inc()
		if attempt == p.cfg.MaxAttempts {
			p.failPlan(ctx, plan, event, fmt.Sprintf("retries exhausted: %v", sendErr))
			return false
		}
		p.log.Warn("transient send failure, retrying",
			logger.String("plan_id", plan.ID),
			logger.Int("attempt", attempt),
			logger.Error(sendErr))
		if !p.sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if p.cfg.MaxBackoff > 0 && backoff > p.cfg.MaxBackoff {
			backoff = p.cfg.MaxBackoff
		}
	}

	completedAt := time.Now()
	if err := p.plans.CompleteStep(ctx, step.ID, completedAt); err != nil {
		p.log.Error("failed to mark step completed",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
	}
	step.Status = entities.StepCompleted
	step.CompletedAt = &completedAt
	return true
}

// resolveContent returns the text to send, generating it just-in-time for
// ai_generated responses. Generation failures fall back to the static
// content; they never fail the step.
func (p *Pool) resolveContent(ctx context.Context, step *entities.ActionStep, event *entities.Event, rule *entities.AutomationRule) string {
	content := renderTemplate(step.Content, event)
	if !step.UsesGeneration || p.generator == nil {
		return content
	}
	generated, err := p.generator.Generate(ctx, &generation.Request{
		Prompt:    rule.AIPrompt,
		Tone:      rule.AITone,
		EventText: event.Text,
		ActorName: event.ActorUsername,
		Platform:  string(event.Platform),
	})
	if err != nil {
		telemetry.GenerationFallbacks.Inc()
		p.log.Warn("generation failed, using static fallback",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
		return content
	}
	return generated
}

func (p *Pool) send(ctx context.Context, step *entities.ActionStep, event *entities.Event, rule *entities.AutomationRule, content string) error {
	switch step.Kind {
	case entities.StepPublicReply:
		return p.adapter.SendPublicReply(ctx, rule.Platform, event.PostID, event.ActorID, content)
	case entities.StepDM:
		return p.adapter.SendDirectMessage(ctx, rule.Platform, event.ActorID, content)
	default:
		return channel.Permanent(0, fmt.Sprintf("unknown step kind %q", step.Kind))
	}
}

// completePlan finalizes a fully-sent plan and folds the response time into
// the rule's analytics.
func (p *Pool) completePlan(ctx context.Context, plan *entities.ActionPlan, event *entities.Event, rule *entities.AutomationRule) {
	now := time.Now()
	if err := p.plans.CompletePlan(ctx, plan.ID, now); err != nil {
		p.log.Error("failed to complete plan",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
		return
	}
	telemetry.PlansFinished.WithLabelValues("completed").Inc()

	responseTime := now.Sub(event.OccurredAt).Seconds()
	if responseTime < 0 {
		responseTime = 0
	}
	if err := p.rules.RecordResponse(ctx, rule.ID, responseTime); err != nil {
		p.log.Error("failed to record response analytics",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
	}
	p.record(ctx, plan, entities.OutcomeDispatched, "")
	p.log.Info("plan dispatched",
		logger.String("plan_id", plan.ID),
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.Float64("response_time_sec", responseTime))
}

// failPlan finalizes a failed plan. The reserved rate slot is deliberately
// not refunded: an attempted send consumes quota even when it fails.
func (p *Pool) failPlan(ctx context.Context, plan *entities.ActionPlan, event *entities.Event, reason string) {
	if err := p.plans.FailPlan(ctx, plan.ID, reason, time.Now()); err != nil {
		p.log.Error("failed to mark plan failed",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
		return
	}
	telemetry.PlansFinished.WithLabelValues("failed").Inc()
	p.record(ctx, plan, entities.OutcomeFailed, reason)
	p.log.Warn("plan failed",
		logger.String("plan_id", plan.ID),
		logger.String("event_id", event.ID),
		logger.String("reason", reason))
}

func (p *Pool) record(ctx context.Context, plan *entities.ActionPlan, outcome entities.Outcome, reason string) {
	record := &entities.EngagementRecord{
		RuleID:  plan.RuleID,
		EventID: plan.EventID,
		Outcome: outcome,
		Reason:  reason,
	}
	if err := p.records.CreateRecord(ctx, record); err != nil {
		p.log.Error("failed to create engagement record",
			logger.String("plan_id", plan.ID),
			logger.Error(err))
	}
}

func (p *Pool) release(ctx context.Context, planID string) {
	if err := p.plans.ReleaseClaim(ctx, planID); err != nil {
		p.log.Error("failed to release plan claim",
			logger.String("plan_id", planID),
			logger.Error(err))
	}
}

// sleep waits for d, aborting early on shutdown. Returns false when the
// pool is stopping.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-p.stopCh:
		return false
	}
}
