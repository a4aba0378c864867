// Package engine matches inbound engagement events against automation
// rules, admits them through condition and rate checks, and schedules
// durable action plans for dispatch.
package engine

// RejectReason classifies why an admitted match was not scheduled.
// Rejections are expected outcomes, recorded for rule-owner visibility,
// never retried and never treated as errors.
type RejectReason string

const (
	RejectTimeWindowClosed  RejectReason = "TIME_WINDOW_CLOSED"
	RejectUserFiltered      RejectReason = "USER_FILTERED"
	RejectRateLimitExceeded RejectReason = "RATE_LIMIT_EXCEEDED"
	RejectCooldownActive    RejectReason = "COOLDOWN_ACTIVE"
)

// MatchResult reports the trigger evaluation of one rule against one event.
type MatchResult struct {
	EventID string
	RuleID  uint
	Matched bool
	// RejectReason is set when the match was later rejected by the
	// condition evaluator; empty for non-matches and admitted matches.
	RejectReason RejectReason
}
