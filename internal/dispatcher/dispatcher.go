// Package dispatcher turns firings into speech on the owner's devices:
// render the task text to an audio clip, resolve the target devices, play
// the clip on each, and record the outcome on the task row.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

const (
	defaultWorkers  = 4
	defaultLanguage = "ko"
	defaultVolume   = 0.5
)

// Store is the persistence capability the dispatcher consumes.
type Store interface {
	GetScheduleWithTasks(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	// UpdateTaskOutcome records a terminal status, increments the attempt
	// counter, and stores the opaque result document.
	UpdateTaskOutcome(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result []byte) error
	SetScheduleActive(ctx context.Context, id uuid.UUID, active bool) error
}

// Renderer converts text into a playable audio clip.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (RenderResult, error)
}

// RenderRequest is the input to text-to-speech rendering.
type RenderRequest struct {
	Text     string
	Language string
}

// RenderResult is a rendered clip: a URL playable by the devices.
type RenderResult struct {
	ClipURL  string
	Duration time.Duration
}

// Device is a playback target registered to an owner.
type Device struct {
	ID   string
	Name string
}

// DeviceDirectory resolves the devices registered to an owner.
type DeviceDirectory interface {
	DevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Device, error)
}

// Playback plays a clip on a single device at the given volume (0.0-1.0).
type Playback interface {
	Play(ctx context.Context, deviceID, clipURL string, volume float64) error
}

// Cleaner removes a one-shot schedule after its firing completes. The
// implementation removes the trigger and the row together.
type Cleaner interface {
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
}

// AnalyticsSink records firings as a best-effort side effect. The sink
// handles its own errors; analytics never affects dispatch correctness.
type AnalyticsSink interface {
	Record(ctx context.Context, firing domain.Firing)
}

// MetricsSink records dispatcher metrics. All methods must be non-blocking
// and fire-and-forget.
type MetricsSink interface {
	FiringsInFlightIncr()
	FiringsInFlightDecr()
	DispatchOutcome(outcome string)
	TaskDispatched(status string, duration time.Duration)
}

// Config tunes the dispatcher pool and speech defaults.
type Config struct {
	// Workers bounds concurrent dispatches. Firings queue behind the pool
	// in priority order.
	Workers int

	// DefaultLanguage is used when a task carries none.
	DefaultLanguage string

	// DefaultVolume (0.0-1.0) is used when a task carries no volume.
	DefaultVolume float64

	// Recipient is the owner whose devices receive whole-schedule
	// reminders. Zero means the schedule's own owner.
	Recipient uuid.UUID
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaultLanguage
	}
	if c.DefaultVolume <= 0 {
		c.DefaultVolume = defaultVolume
	}
	return c
}

// FiringSource yields firings in priority order, blocking until one is
// available or the context ends.
type FiringSource interface {
	Next(ctx context.Context) (domain.Firing, error)
}

// Dispatcher consumes firings from a source with a bounded worker pool.
type Dispatcher struct {
	store     Store
	renderer  Renderer
	devices   DeviceDirectory
	playback  Playback
	cleaner   Cleaner       // optional, nil = one-shot rows are kept
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
	cfg       Config
	clock     func() time.Time
}

func New(store Store, renderer Renderer, devices DeviceDirectory, playback Playback, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		renderer: renderer,
		devices:  devices,
		playback: playback,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
	}
}

// WithCleaner attaches the cleanup path for one-shot schedules.
func (d *Dispatcher) WithCleaner(cleaner Cleaner) *Dispatcher {
	d.cleaner = cleaner
	return d
}

func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// WithClock overrides the time source. Used by tests.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	d.clock = clock
	return d
}

// Run consumes firings until the context is cancelled. It blocks until all
// workers have drained their in-flight dispatch.
func (d *Dispatcher) Run(ctx context.Context, source FiringSource) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				firing, err := source.Next(ctx)
				if err != nil {
					return
				}
				if err := d.Dispatch(ctx, firing); err != nil {
					log.Printf("dispatcher: worker=%d schedule=%s error: %v", worker, firing.Key, err)
				}
			}
		}(i)
	}
	wg.Wait()
	log.Printf("dispatcher: stopped (%d workers)", d.cfg.Workers)
}

// Dispatch handles one firing. Delivery failures are recorded on the task
// rows and surfaced to the caller as a downstream error; the worker keeps
// running either way.
func (d *Dispatcher) Dispatch(ctx context.Context, firing domain.Firing) error {
	if d.metrics != nil {
		d.metrics.FiringsInFlightIncr()
		defer d.metrics.FiringsInFlightDecr()
	}

	schedule, err := d.store.GetScheduleWithTasks(ctx, firing.Key)
	if errors.Is(err, domain.ErrNotFound) {
		// The row vanished between trigger fire and dispatch.
		log.Printf("dispatcher: schedule=%s no longer exists, dropping firing", firing.Key)
		d.outcome("dropped")
		return nil
	}
	if err != nil {
		d.outcome("error")
		return fmt.Errorf("load schedule: %w", err)
	}

	if !schedule.Active {
		log.Printf("dispatcher: schedule=%s inactive, skipping", firing.Key)
		d.outcome("skipped")
		return nil
	}

	if d.analytics != nil {
		d.analytics.Record(ctx, firing)
	}

	var dispatchErr error
	if firing.Kind == domain.PayloadKindSchedule {
		dispatchErr = d.dispatchReminder(ctx, schedule)
	} else {
		dispatchErr = d.dispatchTasks(ctx, firing, schedule)
	}

	// One-shot cleanup runs after the single firing regardless of how the
	// delivery went; the trigger has already spent itself.
	if schedule.OneShot() && d.cleaner != nil {
		if err := d.cleaner.DeleteSchedule(ctx, schedule.ID); err != nil {
			log.Printf("dispatcher: schedule=%s cleanup failed: %v", schedule.ID, err)
		} else {
			log.Printf("dispatcher: schedule=%s removed after one-shot firing", schedule.ID)
		}
	}

	if dispatchErr != nil {
		var downstreamErr *domain.DownstreamError
		if errors.As(dispatchErr, &downstreamErr) {
			d.outcome("failed")
		} else {
			d.outcome("error")
		}
		return dispatchErr
	}

	d.outcome("success")
	return nil
}

// dispatchTasks speaks the referenced tasks in creation order and records
// each outcome. Delivery failures are recorded on the tasks and also
// surfaced to the caller as one aggregated downstream error; the remaining
// tasks still dispatch first.
func (d *Dispatcher) dispatchTasks(ctx context.Context, firing domain.Firing, schedule domain.Schedule) error {
	tasks := schedule.Tasks
	if firing.TaskID != uuid.Nil {
		tasks = nil
		for _, task := range schedule.Tasks {
			if task.ID == firing.TaskID {
				tasks = append(tasks, task)
				break
			}
		}
		if len(tasks) == 0 {
			log.Printf("dispatcher: schedule=%s task=%s no longer exists, dropping firing", schedule.ID, firing.TaskID)
			return nil
		}
	}

	var failures []error
	for _, task := range tasks {
		started := d.clock()
		status, result, err := d.speakTask(ctx, schedule.OwnerID, task)
		if d.metrics != nil {
			d.metrics.TaskDispatched(string(status), d.clock().Sub(started))
		}
		if recordErr := d.store.UpdateTaskOutcome(ctx, task.ID, status, result); recordErr != nil {
			log.Printf("dispatcher: task=%s failed to record outcome: %v", task.ID, recordErr)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("task %s: %w", task.ID, err))
		}
	}
	if len(failures) > 0 {
		return &domain.DownstreamError{Target: "delivery", Err: errors.Join(failures...)}
	}
	return nil
}

// dispatchReminder handles whole-schedule firings: either announce that
// everything is done and deactivate the schedule, or enumerate what is
// left with the remaining time.
func (d *Dispatcher) dispatchReminder(ctx context.Context, schedule domain.Schedule) error {
	recipient := d.cfg.Recipient
	if recipient == uuid.Nil {
		recipient = schedule.OwnerID
	}

	var pending []string
	for _, task := range schedule.Tasks {
		if task.Status != domain.TaskStatusCompleted {
			pending = append(pending, task.Text)
		}
	}

	if len(pending) == 0 {
		text := composeAllDone(schedule.Title)
		if err := d.speak(ctx, recipient, text, d.cfg.DefaultLanguage, d.cfg.DefaultVolume); err != nil {
			log.Printf("dispatcher: schedule=%s completion announcement failed: %v", schedule.ID, err)
			return nil
		}
		if err := d.store.SetScheduleActive(ctx, schedule.ID, false); err != nil {
			return fmt.Errorf("deactivate schedule: %w", err)
		}
		log.Printf("dispatcher: schedule=%s all tasks done, deactivated", schedule.ID)
		return nil
	}

	text := composeReminder(schedule.Title, pending, schedule.EndTime, d.clock())
	if err := d.speak(ctx, recipient, text, d.cfg.DefaultLanguage, d.cfg.DefaultVolume); err != nil {
		log.Printf("dispatcher: schedule=%s reminder failed: %v", schedule.ID, err)
	}
	return nil
}

// taskResult is the outcome document stored on the task row.
type taskResult struct {
	ClipURL string   `json:"clip_url,omitempty"`
	Devices []string `json:"devices,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// speakTask renders and plays one task, returning the terminal status, the
// outcome document, and the failure cause when the status is failed.
func (d *Dispatcher) speakTask(ctx context.Context, ownerID uuid.UUID, task domain.Task) (domain.TaskStatus, []byte, error) {
	language := task.Language
	if language == "" {
		language = d.cfg.DefaultLanguage
	}
	volume := float64(task.Volume) / 100
	if task.Volume <= 0 {
		volume = d.cfg.DefaultVolume
	}

	clip, err := d.renderer.Render(ctx, RenderRequest{Text: task.Text, Language: language})
	if err != nil {
		log.Printf("dispatcher: task=%s render failed: %v", task.ID, err)
		return domain.TaskStatusFailed, mustResult(taskResult{Error: err.Error()}), err
	}

	devices, err := d.devices.DevicesByOwner(ctx, ownerID)
	if err != nil {
		log.Printf("dispatcher: task=%s device lookup failed: %v", task.ID, err)
		return domain.TaskStatusFailed, mustResult(taskResult{ClipURL: clip.ClipURL, Error: err.Error()}), err
	}
	if len(devices) == 0 {
		// Nothing to play on is not a failure; the clip was rendered.
		log.Printf("dispatcher: task=%s owner=%s has no devices", task.ID, ownerID)
		return domain.TaskStatusCompleted, mustResult(taskResult{ClipURL: clip.ClipURL}), nil
	}

	var played []string
	var failures []error
	for _, device := range devices {
		if err := d.playback.Play(ctx, device.ID, clip.ClipURL, volume); err != nil {
			log.Printf("dispatcher: task=%s device=%s playback failed: %v", task.ID, device.ID, err)
			failures = append(failures, fmt.Errorf("%s: %w", device.ID, err))
			continue
		}
		played = append(played, device.ID)
	}

	if len(played) == 0 {
		err := fmt.Errorf("playback failed on all devices: %w", errors.Join(failures...))
		return domain.TaskStatusFailed, mustResult(taskResult{
			ClipURL: clip.ClipURL,
			Error:   err.Error(),
		}), err
	}
	return domain.TaskStatusCompleted, mustResult(taskResult{ClipURL: clip.ClipURL, Devices: played}), nil
}

// speak renders and plays ad-hoc text on an owner's devices.
func (d *Dispatcher) speak(ctx context.Context, ownerID uuid.UUID, text, language string, volume float64) error {
	clip, err := d.renderer.Render(ctx, RenderRequest{Text: text, Language: language})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	devices, err := d.devices.DevicesByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("resolve devices: %w", err)
	}
	if len(devices) == 0 {
		log.Printf("dispatcher: owner=%s has no devices", ownerID)
		return nil
	}
	for _, device := range devices {
		if err := d.playback.Play(ctx, device.ID, clip.ClipURL, volume); err != nil {
			return fmt.Errorf("play on %s: %w", device.ID, err)
		}
	}
	return nil
}

func (d *Dispatcher) outcome(outcome string) {
	if d.metrics != nil {
		d.metrics.DispatchOutcome(outcome)
	}
}

func mustResult(r taskResult) []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"error":"result encoding failed"}`)
	}
	return b
}
