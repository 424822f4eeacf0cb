package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Trigger registry metrics
	TickStarted()
	TickCompleted(duration time.Duration, firingsEmitted int, err error)
	TriggersRegisteredUpdate(count int)

	// Firing bus metrics
	QueueDepthUpdate(depth int)
	QueueCapacitySet(capacity int)

	// Dispatcher metrics
	FiringsInFlightIncr()
	FiringsInFlightDecr()
	DispatchOutcome(outcome string)
	TaskDispatched(status string, duration time.Duration)

	// Downstream metrics
	DownstreamRequest(target, outcome string, duration time.Duration)
}

// Outcome constants for DispatchOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
	OutcomeError   = "error"
)
