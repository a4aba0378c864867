package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/logger"
	"github.com/postflow/engage/internal/repository"
)

const (
	// stampRetention bounds the sliding log; anything older contributes to
	// neither the hour nor the day window.
	stampRetention = 24 * time.Hour
)

// RateGate enforces per-rule hourly/daily caps and cooldown spacing.
// Each rule has one slot whose mutex serializes the check-then-reserve
// read-modify-write, so concurrently admitted events for the same rule can
// never jointly exceed the configured maxima. Rules are independent: no
// cross-rule locks.
//
// The slot keeps a sliding log of reserved dispatch timestamps so the caps
// hold over rolling windows, not fixed ones. A snapshot is persisted after
// every reservation and seeds the slot conservatively after a restart.
type RateGate struct {
	repo repository.RateCounterRepository
	log  logger.Logger

	mu    sync.Mutex
	slots map[uint]*ruleSlot
}

type ruleSlot struct {
	mu         sync.Mutex
	loaded     bool
	stamps     []time.Time
	lastAction time.Time
}

// NewRateGate creates a new RateGate.
func NewRateGate(repo repository.RateCounterRepository, log logger.Logger) *RateGate {
	return &RateGate{
		repo:  repo,
		log:   log,
		slots: make(map[uint]*ruleSlot),
	}
}

func (g *RateGate) slot(ruleID uint) *ruleSlot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[ruleID]
	if !ok {
		s = &ruleSlot{}
		g.slots[ruleID] = s
	}
	return s
}

// Reserve checks the rule's rate limits and, if they allow, reserves a slot
// by recording the dispatch timestamp — one atomic operation under the
// per-rule lock. It returns RejectRateLimitExceeded, RejectCooldownActive,
// or "" when the slot was reserved. A reserved slot is never refunded, even
// if the dispatch later fails.
func (g *RateGate) Reserve(ctx context.Context, rule *entities.AutomationRule, now time.Time) (RejectReason, error) {
	s := g.slot(rule.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := g.seed(ctx, s, rule.ID, now); err != nil {
			return "", err
		}
	}

	s.prune(now)
	hourCount, dayCount := s.counts(now)

	if rule.MaxPerHour > 0 && hourCount >= rule.MaxPerHour {
		return RejectRateLimitExceeded, nil
	}
	if rule.MaxPerDay > 0 && dayCount >= rule.MaxPerDay {
		return RejectRateLimitExceeded, nil
	}
	if rule.CooldownMinutes > 0 && !s.lastAction.IsZero() {
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if now.Sub(s.lastAction) < cooldown {
			return RejectCooldownActive, nil
		}
	}

	s.stamps = append(s.stamps, now)
	s.lastAction = now

	if err := g.persist(ctx, s, rule.ID, now); err != nil {
		// The reservation stands in memory; a lost snapshot only makes the
		// next restart seed slightly stale, which under-admits, never over.
		g.log.Error("failed to persist rate counter",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
	}
	return "", nil
}

// seed loads the persisted snapshot into an empty slot. Persisted counts
// are replayed as sends at the recorded times: hour-window sends at
// windowStart, the remaining day-window sends an hour earlier. This can
// briefly under-admit after a restart but never over-admits.
func (g *RateGate) seed(ctx context.Context, s *ruleSlot, ruleID uint, now time.Time) error {
	counter, err := g.repo.GetCounter(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrCounterNotFound) {
			s.loaded = true
			return nil
		}
		return err
	}
	if age := now.Sub(counter.WindowStart); age < stampRetention {
		for i := 0; i < counter.HourCount; i++ {
			s.stamps = append(s.stamps, counter.WindowStart)
		}
		dayOnly := counter.DayCount - counter.HourCount
		for i := 0; i < dayOnly; i++ {
			s.stamps = append(s.stamps, counter.WindowStart.Add(-time.Hour))
		}
	}
	s.lastAction = counter.LastActionAt
	s.loaded = true
	return nil
}

func (g *RateGate) persist(ctx context.Context, s *ruleSlot, ruleID uint, now time.Time) error {
	hourCount, dayCount := s.counts(now)
	windowStart := now
	if len(s.stamps) > 0 {
		windowStart = s.stamps[0]
	}
	return g.repo.SaveCounter(ctx, &entities.RateCounter{
		RuleID:       ruleID,
		WindowStart:  windowStart,
		HourCount:    hourCount,
		DayCount:     dayCount,
		LastActionAt: s.lastAction,
	})
}

func (s *ruleSlot) prune(now time.Time) {
	cutoff := now.Add(-stampRetention)
	start := 0
	for start < len(s.stamps) && s.stamps[start].Before(cutoff) {
		start++
	}
	s.stamps = s.stamps[start:]
}

// counts returns how many reserved sends fall inside the rolling hour and
// rolling day ending at now. Stamps are appended in time order.
func (s *ruleSlot) counts(now time.Time) (hourCount, dayCount int) {
	hourCutoff := now.Add(-time.Hour)
	dayCutoff := now.Add(-stampRetention)
	for _, stamp := range s.stamps {
		if stamp.After(dayCutoff) {
			dayCount++
			if stamp.After(hourCutoff) {
				hourCount++
			}
		}
	}
	return hourCount, dayCount
}
