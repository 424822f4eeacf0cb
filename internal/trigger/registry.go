// Package trigger implements the in-process trigger registry: live,
// time-driven registrations keyed by schedule id. The registry holds at
// most one entry per key (upsert semantics) and emits a firing for each
// due occurrence of an entry's cron pattern.
package trigger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// CronParser compiles a 5-field cron expression.
type CronParser interface {
	Parse(expression string) (CronSchedule, error)
}

// CronSchedule yields occurrences of a compiled expression.
type CronSchedule interface {
	Next(after time.Time) time.Time
}

// Emitter receives firings as they become due.
type Emitter interface {
	Emit(ctx context.Context, firing domain.Firing) error
}

// MetricsSink records registry metrics. Implementations must be
// non-blocking and fire-and-forget.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, firingsEmitted int, err error)
	TriggersRegisteredUpdate(count int)
}

// Entry describes a trigger registration.
type Entry struct {
	// Pattern is the 5-field cron expression driving occurrences.
	Pattern string

	// Start and End bound the firing window. Occurrences before Start are
	// skipped, not rescheduled; once an occurrence falls past End the
	// entry is unregistered, since no later occurrence can be in-window.
	Start *time.Time
	End   *time.Time

	// Repeat limits how many times the entry fires. Zero means unbounded;
	// one means a one-shot that unregisters itself after firing.
	Repeat int

	Kind     domain.PayloadKind
	TaskID   uuid.UUID
	Priority int
}

type liveEntry struct {
	entry     Entry
	sched     CronSchedule
	remaining int
}

type Config struct {
	TickInterval time.Duration
}

// Registry drives registered triggers from a tick loop: on each tick it
// walks every entry and emits a firing for each occurrence that became due
// since the previous tick.
type Registry struct {
	config  Config
	parser  CronParser
	emitter Emitter
	metrics MetricsSink
	clock   func() time.Time

	mu       sync.Mutex
	entries  map[uuid.UUID]*liveEntry
	lastTick time.Time
}

func New(config Config, parser CronParser, emitter Emitter) *Registry {
	return &Registry{
		config:  config,
		parser:  parser,
		emitter: emitter,
		clock:   time.Now,
		entries: make(map[uuid.UUID]*liveEntry),
	}
}

// WithMetrics attaches a metrics sink to the registry.
func (r *Registry) WithMetrics(sink MetricsSink) *Registry {
	r.metrics = sink
	return r
}

// WithClock overrides the time source. Used by tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Upsert registers the entry under key, replacing any existing entry with
// the same key. It never creates a second trigger for a key.
func (r *Registry) Upsert(key uuid.UUID, entry Entry) error {
	sched, err := r.parser.Parse(entry.Pattern)
	if err != nil {
		return fmt.Errorf("parse pattern: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.entries[key]
	r.entries[key] = &liveEntry{
		entry:     entry,
		sched:     sched,
		remaining: entry.Repeat,
	}

	if existed {
		log.Printf("trigger: updated key=%s pattern=%q priority=%d", key, entry.Pattern, entry.Priority)
	} else {
		log.Printf("trigger: registered key=%s pattern=%q priority=%d", key, entry.Pattern, entry.Priority)
	}
	r.reportCount()
	return nil
}

// Remove unregisters the entry under key. It reports whether an entry
// existed.
func (r *Registry) Remove(key uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
		log.Printf("trigger: removed key=%s", key)
		r.reportCount()
	}
	return ok
}

// Has reports whether a live entry exists for key.
func (r *Registry) Has(key uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run drives the tick loop until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	log.Printf("trigger: started, tick=%s", r.config.TickInterval)
	r.mu.Lock()
	r.lastTick = r.clock()
	r.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			log.Println("trigger: stopped")
			return ctx.Err()
		case <-ticker.C:
			r.processTick(ctx)
		}
	}
}

// processTick emits firings for every occurrence due since the last tick.
// Exported indirectly through Run; tests call it via the injected clock.
func (r *Registry) processTick(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.TickStarted()
	}
	started := time.Now()
	now := r.clock()

	r.mu.Lock()
	lastTick := r.lastTick
	r.lastTick = now

	type due struct {
		key    uuid.UUID
		firing domain.Firing
		spent  bool
	}
	var dues []due
	var expired []uuid.UUID

	for key, le := range r.entries {
		// Loop through all occurrences since the last tick.
		const maxIterations = 1000
		t := le.sched.Next(lastTick)

		for i := 0; i < maxIterations && !t.After(now); i++ {
			occurrence := t
			t = le.sched.Next(occurrence)

			if le.entry.Start != nil && occurrence.Before(*le.entry.Start) {
				continue
			}
			if le.entry.End != nil && occurrence.After(*le.entry.End) {
				// Occurrences are monotonic, so every later one is past the
				// window too. The entry can never fire again.
				expired = append(expired, key)
				break
			}

			d := due{
				key: key,
				firing: domain.Firing{
					Key:         key,
					Kind:        le.entry.Kind,
					TaskID:      le.entry.TaskID,
					Priority:    le.entry.Priority,
					ScheduledAt: occurrence,
					FiredAt:     now,
				},
			}

			if le.entry.Repeat > 0 {
				le.remaining--
				if le.remaining <= 0 {
					d.spent = true
					dues = append(dues, d)
					break
				}
			}
			dues = append(dues, d)
		}
	}

	for _, d := range dues {
		if d.spent {
			delete(r.entries, d.key)
			log.Printf("trigger: one-shot spent, removed key=%s", d.key)
		}
	}
	for _, key := range expired {
		delete(r.entries, key)
		log.Printf("trigger: window closed, removed key=%s", key)
	}
	r.reportCount()
	r.mu.Unlock()

	emitted := 0
	var lastErr error
	for _, d := range dues {
		if err := r.emitter.Emit(ctx, d.firing); err != nil {
			log.Printf("trigger: emit key=%s error: %v", d.key, err)
			lastErr = err
			continue
		}
		emitted++
	}

	if r.metrics != nil {
		r.metrics.TickCompleted(time.Since(started), emitted, lastErr)
	}
}

// reportCount publishes the live entry count. Caller holds r.mu.
func (r *Registry) reportCount() {
	if r.metrics != nil {
		r.metrics.TriggersRegisteredUpdate(len(r.entries))
	}
}
