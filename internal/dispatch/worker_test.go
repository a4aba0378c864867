package dispatch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/postflow/engage/internal/channel"
	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/generation"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

// fakeAdapter records sends and fails according to a scripted error queue.
type fakeAdapter struct {
	mu    sync.Mutex
	sends []sentMessage
	errs  []error
}

type sentMessage struct {
	kind    entities.StepKind
	actorID string
	text    string
}

func (f *fakeAdapter) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeAdapter) SendPublicReply(ctx context.Context, platform entities.Platform, postID, actorID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return err
	}
	f.sends = append(f.sends, sentMessage{kind: entities.StepPublicReply, actorID: actorID, text: text})
	return nil
}

func (f *fakeAdapter) SendDirectMessage(ctx context.Context, platform entities.Platform, actorID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return err
	}
	f.sends = append(f.sends, sentMessage{kind: entities.StepDM, actorID: actorID, text: text})
	return nil
}

func (f *fakeAdapter) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sends))
	copy(out, f.sends)
	return out
}

// fakeGenerator returns fixed text or a scripted failure.
type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, req *generation.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type workerFixture struct {
	pool    *Pool
	adapter *fakeAdapter
	plans   repository.PlanRepository
	rules   repository.RuleRepository
	events  repository.EventRepository
	records repository.RecordRepository
}

func setupWorker(t *testing.T, gen generation.Generator, cfg Config) *workerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entities.AutomationRule{},
		&entities.Event{},
		&entities.ActionPlan{},
		&entities.ActionStep{},
		&entities.EngagementRecord{},
	))

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Millisecond
	}
	if cfg.ClaimLease == 0 {
		cfg.ClaimLease = 2 * time.Minute
	}

	adapter := &fakeAdapter{}
	plans := repository.NewPlanRepository(db)
	events := repository.NewEventRepository(db)
	rules := repository.NewRuleRepository(db)
	records := repository.NewRecordRepository(db)
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)

	pool := NewPool(cfg, plans, events, rules, records, adapter, gen, log)
	return &workerFixture{pool: pool, adapter: adapter, plans: plans, rules: rules, events: events, records: records}
}

func (f *workerFixture) seed(t *testing.T, rule *entities.AutomationRule, steps []entities.ActionStep) (*entities.Event, *entities.ActionPlan) {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, f.rules.CreateRule(ctx, rule))

	event := &entities.Event{
		ID:              uuid.NewString(),
		Platform:        entities.PlatformInstagram,
		ExternalEventID: uuid.NewString(),
		PostID:          "post-1",
		EventType:       entities.EventComment,
		ActorID:         "actor-1",
		ActorUsername:   "jane",
		Text:            "price?",
		OccurredAt:      time.Now().Add(-30 * time.Second),
	}
	require.NoError(t, f.events.InsertEvent(ctx, event))

	plan := &entities.ActionPlan{
		ID:      uuid.NewString(),
		EventID: event.ID,
		RuleID:  rule.ID,
		Status:  entities.PlanPending,
		Steps:   steps,
	}
	require.NoError(t, f.plans.CreatePlan(ctx, plan))
	return event, plan
}

func (f *workerFixture) claimOne(t *testing.T) *entities.ActionPlan {
	t.Helper()
	now := time.Now()
	claimed, err := f.plans.ClaimDue(t.Context(), "test-worker", now, now.Add(-time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	return &claimed[0]
}

func staticRule() *entities.AutomationRule {
	return &entities.AutomationRule{
		Platform:        entities.PlatformInstagram,
		PostID:          "post-1",
		Name:            "test",
		IsActive:        true,
		RuleType:        entities.RuleTypeCommentToDM,
		TriggerKind:     entities.TriggerAllComments,
		ResponseKind:    entities.ResponseText,
		ResponseContent: "here's the link",
	}
}

func dmStep(order int, notBefore time.Time) entities.ActionStep {
	return entities.ActionStep{
		SortOrder: order,
		Kind:      entities.StepDM,
		Content:   "here's the link",
		NotBefore: notBefore,
		Status:    entities.StepPending,
	}
}

func TestWorker_SingleStepPlanCompletes(t *testing.T) {
	f := setupWorker(t, nil, Config{})
	rule := staticRule()
	_, plan := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})

	f.pool.executePlan(t.Context(), f.claimOne(t))

	sent := f.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, entities.StepDM, sent[0].kind)
	assert.Equal(t, "here's the link", sent[0].text)

	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanCompleted, got.Status)

	// Analytics fold in the response time, measured from the event.
	gotRule, err := f.rules.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotRule.RespondedCount)
	assert.Greater(t, gotRule.AvgResponseTimeSec, 0.0)

	records, _, err := f.records.ListRecords(t.Context(), repository.RecordFilter{RuleID: rule.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entities.OutcomeDispatched, records[0].Outcome)
}

// After the public reply completes, the DM is rescheduled relative to the
// reply's actual completion time and the claim is released.
func TestWorker_TwoStepFollowUpDelay(t *testing.T) {
	f := setupWorker(t, nil, Config{})
	rule := staticRule()
	rule.ReplyFirst = true
	rule.FollowUpDelayMinutes = 2
	now := time.Now()
	_, plan := f.seed(t, rule, []entities.ActionStep{
		{SortOrder: 0, Kind: entities.StepPublicReply, Content: "check DMs", NotBefore: now.Add(-time.Second), Status: entities.StepPending},
		dmStep(1, now.Add(2*time.Minute)),
	})

	start := time.Now()
	f.pool.executePlan(t.Context(), f.claimOne(t))

	sent := f.adapter.sent()
	require.Len(t, sent, 1, "only the public reply is due")
	assert.Equal(t, entities.StepPublicReply, sent[0].kind)

	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanInProgress, got.Status)
	assert.Empty(t, got.ClaimedBy, "claim released while waiting for the follow-up")
	require.Len(t, got.Steps, 2)
	assert.Equal(t, entities.StepCompleted, got.Steps[0].Status)
	assert.Equal(t, entities.StepPending, got.Steps[1].Status)
	assert.False(t, got.Steps[1].NotBefore.Before(start.Add(2*time.Minute)),
		"DM is scheduled at least the follow-up delay after the reply completed")
}

// A worker resuming a plan whose first step already completed must not send
// it again.
func TestWorker_CrashResumeSkipsCompletedStep(t *testing.T) {
	f := setupWorker(t, nil, Config{})
	rule := staticRule()
	now := time.Now()
	_, plan := f.seed(t, rule, []entities.ActionStep{
		{SortOrder: 0, Kind: entities.StepPublicReply, Content: "check DMs", NotBefore: now.Add(-time.Hour), Status: entities.StepPending},
		dmStep(1, now.Add(-time.Minute)),
	})

	// Simulate the pre-crash worker finishing step 0.
	stored, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	require.NoError(t, f.plans.CompleteStep(t.Context(), stored.Steps[0].ID, now.Add(-30*time.Minute)))

	f.pool.executePlan(t.Context(), f.claimOne(t))

	sent := f.adapter.sent()
	require.Len(t, sent, 1, "only the DM is sent on resume")
	assert.Equal(t, entities.StepDM, sent[0].kind)

	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanCompleted, got.Status)
}

func TestWorker_TransientErrorRetriesThenSucceeds(t *testing.T) {
	f := setupWorker(t, nil, Config{MaxAttempts: 3})
	rule := staticRule()
	_, plan := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})
	f.adapter.errs = []error{
		channel.Transient(503, "upstream flaked"),
		channel.Transient(0, "connection reset"),
	}

	f.pool.executePlan(t.Context(), f.claimOne(t))

	assert.Len(t, f.adapter.sent(), 1)
	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanCompleted, got.Status)
}

func TestWorker_TransientErrorsExhaustRetries(t *testing.T) {
	f := setupWorker(t, nil, Config{MaxAttempts: 2})
	rule := staticRule()
	_, plan := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})
	f.adapter.errs = []error{
		channel.Transient(503, "down"),
		channel.Transient(503, "still down"),
	}

	f.pool.executePlan(t.Context(), f.claimOne(t))

	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanFailed, got.Status)
	assert.Contains(t, got.FailReason, "retries exhausted")

	records, _, err := f.records.ListRecords(t.Context(), repository.RecordFilter{RuleID: rule.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, entities.OutcomeFailed, records[0].Outcome)
}

func TestWorker_PermanentErrorFailsImmediately(t *testing.T) {
	f := setupWorker(t, nil, Config{MaxAttempts: 5})
	rule := staticRule()
	_, plan := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})
	f.adapter.errs = []error{channel.Permanent(403, "messaging not allowed")}

	f.pool.executePlan(t.Context(), f.claimOne(t))

	assert.Empty(t, f.adapter.sent(), "no retry after a permanent error")
	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanFailed, got.Status)
	assert.Contains(t, got.FailReason, "messaging not allowed")

	// No analytics response is recorded for a failed plan.
	gotRule, err := f.rules.GetRule(t.Context(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gotRule.RespondedCount)
}

func TestWorker_GeneratedContentUsed(t *testing.T) {
	f := setupWorker(t, &fakeGenerator{text: "Hey Jane! Here's your link."}, Config{})
	rule := staticRule()
	rule.ResponseKind = entities.ResponseAIGenerated
	step := dmStep(0, time.Now().Add(-time.Second))
	step.UsesGeneration = true
	f.seed(t, rule, []entities.ActionStep{step})

	f.pool.executePlan(t.Context(), f.claimOne(t))

	sent := f.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hey Jane! Here's your link.", sent[0].text)
}

// Generation failures degrade to the static content; they never fail the
// plan.
func TestWorker_GenerationFailureFallsBack(t *testing.T) {
	f := setupWorker(t, &fakeGenerator{err: context.DeadlineExceeded}, Config{})
	rule := staticRule()
	rule.ResponseKind = entities.ResponseAIGenerated
	step := dmStep(0, time.Now().Add(-time.Second))
	step.UsesGeneration = true
	_, plan := f.seed(t, rule, []entities.ActionStep{step})

	f.pool.executePlan(t.Context(), f.claimOne(t))

	sent := f.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "here's the link", sent[0].text)

	got, err := f.plans.GetPlan(t.Context(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.PlanCompleted, got.Status)
}

func TestPool_StartStopLeaksNothing(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	f := setupWorker(t, nil, Config{Workers: 3, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	f.pool.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	f.pool.Stop()
}

func TestPool_ExecutesClaimedPlansViaPolling(t *testing.T) {
	f := setupWorker(t, nil, Config{Workers: 1, PollInterval: 5 * time.Millisecond})
	rule := staticRule()
	_, plan := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	f.pool.Start(ctx)
	defer f.pool.Stop()

	require.Eventually(t, func() bool {
		got, err := f.plans.GetPlan(t.Context(), plan.ID)
		return err == nil && got.Status == entities.PlanCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRetention_SweepsOldData(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	f := setupWorker(t, nil, Config{})
	rule := staticRule()
	event, _ := f.seed(t, rule, []entities.ActionStep{dmStep(0, time.Now().Add(-time.Second))})

	// Finish the plan so the event is eligible for GC, and write a record.
	f.pool.executePlan(t.Context(), f.claimOne(t))

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	ret := NewRetention(RetentionConfig{RecordDays: 1, EventDays: 1, Interval: time.Hour}, f.records, f.events, log)

	// The data is fresh, so a sweep keeps it.
	ret.sweep(t.Context())
	_, err := f.events.GetEvent(t.Context(), event.ID)
	require.NoError(t, err)

	records, _, err := f.records.ListRecords(t.Context(), repository.RecordFilter{RuleID: rule.ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRetention_StartStop(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	f := setupWorker(t, nil, Config{})
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	ret := NewRetention(RetentionConfig{RecordDays: 30, EventDays: 30, Interval: 10 * time.Millisecond}, f.records, f.events, log)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	ret.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	ret.Stop()
}

func TestRenderTemplate(t *testing.T) {
	event := &entities.Event{ActorUsername: "jane", Text: "price?"}

	assert.Equal(t, "Hi jane!", renderTemplate("Hi {username}!", event))
	assert.Equal(t, `You said "price?"`, renderTemplate(`You said "{comment}"`, event))
	assert.Equal(t, "plain text", renderTemplate("plain text", event))
	assert.Equal(t, "{unknown} stays", renderTemplate("{unknown} stays", event))
}
