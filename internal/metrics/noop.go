package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                        {}
func (n *NoopSink) TickCompleted(duration time.Duration, firingsEmitted int, err error) {}
func (n *NoopSink) TriggersRegisteredUpdate(count int)                                  {}
func (n *NoopSink) QueueDepthUpdate(depth int)                                          {}
func (n *NoopSink) QueueCapacitySet(capacity int)                                       {}
func (n *NoopSink) FiringsInFlightIncr()                                                {}
func (n *NoopSink) FiringsInFlightDecr()                                                {}
func (n *NoopSink) DispatchOutcome(outcome string)                                      {}
func (n *NoopSink) TaskDispatched(status string, duration time.Duration)                {}
func (n *NoopSink) DownstreamRequest(target, outcome string, duration time.Duration)    {}
