// Package telemetry exposes prometheus counters for the engagement engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts accepted, deduplicated and invalid raw events.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Raw platform events by ingestion result.",
	}, []string{"result"}) // accepted, duplicate, invalid

	// RuleMatches counts trigger evaluations by outcome.
	RuleMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "engine",
		Name:      "matches_total",
		Help:      "Trigger evaluations by outcome.",
	}, []string{"outcome"}) // matched, unmatched

	// Rejections counts condition evaluator rejections by reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "engine",
		Name:      "rejections_total",
		Help:      "Admission rejections by reason.",
	}, []string{"reason"})

	// PlansScheduled counts persisted action plans.
	PlansScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "engine",
		Name:      "plans_scheduled_total",
		Help:      "Action plans persisted for dispatch.",
	})

	// PlansFinished counts plans reaching a terminal state.
	PlansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "dispatch",
		Name:      "plans_finished_total",
		Help:      "Action plans by terminal state.",
	}, []string{"status"}) // completed, failed

	// StepSends counts channel adapter calls by result.
	StepSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "dispatch",
		Name:      "step_sends_total",
		Help:      "Channel adapter send attempts by result.",
	}, []string{"kind", "result"}) // result: ok, transient_error, permanent_error

	// GenerationFallbacks counts AI generation failures that fell back to
	// static content.
	GenerationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "dispatch",
		Name:      "generation_fallbacks_total",
		Help:      "AI generation failures that used the static fallback.",
	})
)
