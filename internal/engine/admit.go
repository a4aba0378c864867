package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/postflow/engage/internal/entities"
)

// Evaluator applies a rule's conditions to a matched event. Checks run in a
// fixed order and short-circuit on the first failure: time restriction,
// audience filters, then the rate reservation. The rate check doubles as
// the reservation — when Admit returns an empty reason the slot is already
// consumed.
type Evaluator struct {
	gate *RateGate
}

// NewEvaluator creates a new Evaluator backed by the given rate gate.
func NewEvaluator(gate *RateGate) *Evaluator {
	return &Evaluator{gate: gate}
}

// Admit returns "" when the event passed every condition and a rate slot
// was reserved, or the reason it was rejected. The error return is for
// storage faults only; rejections are not errors.
func (e *Evaluator) Admit(ctx context.Context, event *entities.Event, rule *entities.AutomationRule, now time.Time) (RejectReason, error) {
	if !timeWindowOpen(rule, event.OccurredAt) {
		return RejectTimeWindowClosed, nil
	}
	if !passesUserFilters(rule, event) {
		return RejectUserFiltered, nil
	}
	return e.gate.Reserve(ctx, rule, now)
}

// timeWindowOpen checks the event time against the rule's [start, end)
// window in the rule's timezone. Windows where start > end wrap past
// midnight (22:00–06:00 admits 23:30 and 05:59, rejects 12:00). Rules with
// malformed windows fail closed.
func timeWindowOpen(rule *entities.AutomationRule, occurredAt time.Time) bool {
	if !rule.HasTimeRestriction() {
		return true
	}

	loc := time.UTC
	if rule.Timezone != "" {
		parsed, err := time.LoadLocation(rule.Timezone)
		if err != nil {
			return false
		}
		loc = parsed
	}

	startMin, ok1 := parseClock(rule.TimeStart)
	endMin, ok2 := parseClock(rule.TimeEnd)
	if !ok1 || !ok2 {
		return false
	}

	local := occurredAt.In(loc)
	nowMin := local.Hour()*60 + local.Minute()

	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	// Overnight window
	return nowMin >= startMin || nowMin < endMin
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// passesUserFilters applies follower bounds, the verified-only flag and
// exclude keywords to the event's actor and text.
func passesUserFilters(rule *entities.AutomationRule, event *entities.Event) bool {
	if rule.MinFollowers != nil && event.FollowersCount < *rule.MinFollowers {
		return false
	}
	if rule.MaxFollowers != nil && event.FollowersCount > *rule.MaxFollowers {
		return false
	}
	if rule.VerifiedOnly && !event.IsVerified {
		return false
	}
	if keywords := rule.ExcludeKeywordList(); len(keywords) > 0 {
		text := strings.ToLower(event.Text)
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return false
			}
		}
	}
	return true
}
