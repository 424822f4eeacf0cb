package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Trigger registry metrics
	ticksTotal         prometheus.Counter
	tickErrorsTotal    prometheus.Counter
	firingsTotal       prometheus.Counter
	tickDuration       prometheus.Histogram
	triggersRegistered prometheus.Gauge

	// Firing bus metrics
	queueDepth    prometheus.Gauge
	queueCapacity prometheus.Gauge

	// Dispatcher metrics
	firingsInFlight       prometheus.Gauge
	dispatchOutcomesTotal *prometheus.CounterVec
	tasksDispatchedTotal  *prometheus.CounterVec
	taskDuration          prometheus.Histogram

	// Downstream metrics
	downstreamRequestsTotal *prometheus.CounterVec
	downstreamDuration      *prometheus.HistogramVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initRegistryMetrics(reg)
	s.initBusMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initDownstreamMetrics(reg)
	return s
}

func (s *PrometheusSink) initRegistryMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vtlr_registry_ticks_total",
		Help: "Total number of trigger registry ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vtlr_registry_tick_errors_total",
		Help: "Total number of trigger registry tick errors.",
	})
	s.firingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vtlr_registry_firings_total",
		Help: "Total number of firings emitted by the trigger registry.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vtlr_registry_tick_duration_seconds",
		Help:    "Duration of each trigger registry tick in seconds.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
	s.triggersRegistered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vtlr_registry_triggers",
		Help: "Number of triggers currently registered.",
	})

	s.register(reg, s.ticksTotal, "vtlr_registry_ticks_total")
	s.register(reg, s.tickErrorsTotal, "vtlr_registry_tick_errors_total")
	s.register(reg, s.firingsTotal, "vtlr_registry_firings_total")
	s.register(reg, s.tickDuration, "vtlr_registry_tick_duration_seconds")
	s.register(reg, s.triggersRegistered, "vtlr_registry_triggers")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vtlr_bus_queue_depth",
		Help: "Current number of firings waiting in the priority queue.",
	})
	s.queueCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vtlr_bus_queue_capacity",
		Help: "Configured capacity of the firing queue.",
	})

	s.register(reg, s.queueDepth, "vtlr_bus_queue_depth")
	s.register(reg, s.queueCapacity, "vtlr_bus_queue_capacity")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.firingsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vtlr_dispatcher_firings_in_flight",
		Help: "Number of firings currently being dispatched.",
	})
	s.dispatchOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vtlr_dispatcher_outcomes_total",
		Help: "Total number of firing dispatch outcomes.",
	}, []string{"outcome"})
	s.tasksDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vtlr_dispatcher_tasks_total",
		Help: "Total number of tasks dispatched, by terminal status.",
	}, []string{"status"})
	s.taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vtlr_dispatcher_task_duration_seconds",
		Help:    "End-to-end duration of a single task dispatch in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.firingsInFlight, "vtlr_dispatcher_firings_in_flight")
	s.register(reg, s.dispatchOutcomesTotal, "vtlr_dispatcher_outcomes_total")
	s.register(reg, s.tasksDispatchedTotal, "vtlr_dispatcher_tasks_total")
	s.register(reg, s.taskDuration, "vtlr_dispatcher_task_duration_seconds")
}

func (s *PrometheusSink) initDownstreamMetrics(reg prometheus.Registerer) {
	s.downstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vtlr_downstream_requests_total",
		Help: "Total number of downstream service requests.",
	}, []string{"target", "outcome"})
	s.downstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vtlr_downstream_request_duration_seconds",
		Help:    "Downstream request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"target"})

	s.register(reg, s.downstreamRequestsTotal, "vtlr_downstream_requests_total")
	s.register(reg, s.downstreamDuration, "vtlr_downstream_request_duration_seconds")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Trigger registry metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, firingsEmitted int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.firingsTotal.Add(float64(firingsEmitted))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TriggersRegisteredUpdate(count int) {
	s.triggersRegistered.Set(float64(count))
}

// Firing bus metrics implementation

func (s *PrometheusSink) QueueDepthUpdate(depth int) {
	s.queueDepth.Set(float64(depth))
}

func (s *PrometheusSink) QueueCapacitySet(capacity int) {
	s.queueCapacity.Set(float64(capacity))
}

// Dispatcher metrics implementation

func (s *PrometheusSink) FiringsInFlightIncr() {
	s.firingsInFlight.Inc()
}

func (s *PrometheusSink) FiringsInFlightDecr() {
	s.firingsInFlight.Dec()
}

func (s *PrometheusSink) DispatchOutcome(outcome string) {
	s.dispatchOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) TaskDispatched(status string, duration time.Duration) {
	s.tasksDispatchedTotal.WithLabelValues(status).Inc()
	s.taskDuration.Observe(duration.Seconds())
}

// Downstream metrics implementation

func (s *PrometheusSink) DownstreamRequest(target, outcome string, duration time.Duration) {
	s.downstreamRequestsTotal.WithLabelValues(target, outcome).Inc()
	s.downstreamDuration.WithLabelValues(target).Observe(duration.Seconds())
}
