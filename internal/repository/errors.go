package repository

import "errors"

// Sentinel errors returned by repository implementations. Callers check
// these with errors.Is to distinguish expected misses from storage faults.
var (
	ErrRuleNotFound    = errors.New("automation rule not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrDuplicateEvent  = errors.New("event already ingested")
	ErrPlanNotFound    = errors.New("action plan not found")
	ErrDuplicatePlan   = errors.New("action plan already exists for event and rule")
	ErrPlanTerminal    = errors.New("action plan already in a terminal state")
	ErrCounterNotFound = errors.New("rate counter not found")
)
