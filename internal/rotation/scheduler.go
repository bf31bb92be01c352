// Package rotation drives periodic wallpaper changes: timer ticks with
// jitter, quiet-hours and weekday suppression, debounced external triggers,
// rule-biased selection and per-monitor history.
package rotation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/muralhq/mural/internal/domain"
	"github.com/muralhq/mural/internal/event"
)

// State names for the scheduler's apply cycle.
type State string

const (
	StateIdle      State = "idle"
	StateWaiting   State = "waiting"
	StateSelecting State = "selecting"
	StateApplying  State = "applying"
)

// Config holds the scheduler's timing and suppression settings.
type Config struct {
	Interval       time.Duration      // Base rotation interval
	Jitter         time.Duration      // Uniform ± bound added to each interval
	InitialDelay   time.Duration      // Delay before the first scheduled tick
	DebounceWindow time.Duration      // Window collapsing rapid hotkey/gui/tray triggers
	QuietHours     []domain.TimeRange // Windows during which ticks are suppressed
	Weekdays       []time.Weekday     // Active days; empty means every day
	HistorySize    int                // K, the no-immediate-repeat window
}

// WeatherFunc reports the current weather condition, or "" when unknown.
// The weather source is an external collaborator.
type WeatherFunc func() string

// matchAll is the FilterSource used when none is configured.
type matchAll struct{}

func (matchAll) FilterFor(domain.Monitor) domain.Filter { return domain.Filter{} }

// Scheduler owns the rotation state machine. It is the only writer of the
// rotation history and of LastAppliedAt.
type Scheduler struct {
	cfg      Config
	store    domain.Store
	composer domain.Composer
	topology domain.Topology
	rules    []domain.Rule
	filters  FilterSource
	weather  WeatherFunc
	history  *History
	selector *Selector
	bus      *event.Bus
	logger   zerolog.Logger
	rng      *rand.Rand

	stateMu sync.RWMutex
	state   State

	// applySem is the single apply-in-flight token. Triggers that cannot
	// take it immediately are dropped, never queued.
	applySem chan struct{}

	debounceMu   sync.Mutex
	lastExecuted time.Time

	currentMu sync.RWMutex
	current   domain.MonitorAssignment

	pauseMu sync.RWMutex
	paused  bool

	stop      chan struct{}
	stopOnce  sync.Once
	loopDone  chan struct{}
	running   bool
	runningMu sync.Mutex
}

// New creates a scheduler. The rules slice keeps its declaration order,
// which breaks priority ties.
func New(
	cfg Config,
	store domain.Store,
	composer domain.Composer,
	topology domain.Topology,
	rules []domain.Rule,
	filters FilterSource,
	weather WeatherFunc,
	bus *event.Bus,
	logger zerolog.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = time.Second
	}
	if weather == nil {
		weather = func() string { return "" }
	}
	if filters == nil {
		filters = matchAll{}
	}

	history := NewHistory(cfg.HistorySize)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	return &Scheduler{
		cfg:      cfg,
		store:    store,
		composer: composer,
		topology: topology,
		rules:    rules,
		filters:  filters,
		weather:  weather,
		history:  history,
		selector: NewSelector(store, history, rng, logger),
		bus:      bus,
		logger:   logger,
		rng:      rng,
		state:    StateIdle,
		applySem: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// History exposes the per-monitor rotation history.
func (s *Scheduler) History() *History { return s.history }

// State returns the current state machine state.
func (s *Scheduler) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Current returns the last successfully applied assignment.
func (s *Scheduler) Current() domain.MonitorAssignment {
	s.currentMu.RLock()
	defer s.currentMu.RUnlock()
	out := make(domain.MonitorAssignment, len(s.current))
	copy(out, s.current)
	return out
}

// Pause suppresses scheduled ticks without stopping the timer loop.
// External triggers keep working.
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	s.paused = true
	s.pauseMu.Unlock()
}

// Resume re-enables scheduled ticks.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	s.paused = false
	s.pauseMu.Unlock()
}

func (s *Scheduler) isPaused() bool {
	s.pauseMu.RLock()
	defer s.pauseMu.RUnlock()
	return s.paused
}

// nextWait computes interval ± uniform(0, jitter), clamped to at least one
// second.
func (s *Scheduler) nextWait() time.Duration {
	d := s.cfg.Interval
	if j := int64(s.cfg.Jitter); j > 0 {
		d += time.Duration(s.rng.Int63n(2*j+1) - j)
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// activeWindow reports whether scheduled rotation may fire at t: t's
// weekday must be active and t must fall outside every quiet-hours window.
func (s *Scheduler) activeWindow(t time.Time) bool {
	if len(s.cfg.Weekdays) > 0 {
		ok := false
		for _, d := range s.cfg.Weekdays {
			if t.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, window := range s.cfg.QuietHours {
		if inRange(window, t) {
			return false
		}
	}
	return true
}

// Run executes the cooperative timer loop until ctx is cancelled or Close
// is called. Suppressed ticks are skipped silently and the next tick
// recomputed.
func (s *Scheduler) Run(ctx context.Context) {
	s.runningMu.Lock()
	s.running = true
	s.runningMu.Unlock()
	defer close(s.loopDone)
	defer func() {
		s.runningMu.Lock()
		s.running = false
		s.runningMu.Unlock()
	}()

	if s.cfg.InitialDelay > 0 {
		if !s.sleep(ctx, s.cfg.InitialDelay) {
			return
		}
	}

	for {
		s.setState(StateWaiting)
		wait := s.nextWait()
		s.logger.Debug().Dur("wait", wait).Msg("next rotation scheduled")

		if !s.sleep(ctx, wait) {
			s.setState(StateIdle)
			return
		}

		now := time.Now()
		if s.isPaused() || !s.activeWindow(now) {
			s.logger.Debug().Time("at", now).Msg("tick suppressed")
			continue
		}
		if err := s.Trigger(ctx, domain.TriggerTick); err != nil {
			s.logger.Warn().Err(err).Msg("scheduled rotation failed")
		}
	}
}

// sleep waits for d; returns false when the scheduler should shut down.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

// Trigger initiates one rotation. Debounced trigger kinds arriving within
// the debounce window of the previous executed trigger are discarded, as is
// any trigger arriving while an apply is already in flight. A dropped
// trigger is not an error.
func (s *Scheduler) Trigger(ctx context.Context, kind domain.TriggerKind) error {
	if kind.Debounced() {
		s.debounceMu.Lock()
		since := time.Since(s.lastExecuted)
		if since < s.cfg.DebounceWindow {
			s.debounceMu.Unlock()
			s.logger.Debug().Str("trigger", string(kind)).Dur("since", since).Msg("trigger debounced")
			return nil
		}
		s.debounceMu.Unlock()
	}

	select {
	case s.applySem <- struct{}{}:
	default:
		s.logger.Debug().Str("trigger", string(kind)).Msg("apply in flight, trigger dropped")
		return nil
	}
	defer func() { <-s.applySem }()

	s.debounceMu.Lock()
	s.lastExecuted = time.Now()
	s.debounceMu.Unlock()

	return s.rotate(ctx, kind)
}

// restState is the state between rotations: Waiting while the timer loop
// runs, Idle after a one-shot trigger with no loop behind it.
func (s *Scheduler) restState() State {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running {
		return StateWaiting
	}
	return StateIdle
}

// rotate runs Selecting -> Applying. On failure nothing is mutated: no
// history push, no timestamp refresh.
func (s *Scheduler) rotate(ctx context.Context, kind domain.TriggerKind) error {
	defer func() { s.setState(s.restState()) }()

	s.setState(StateSelecting)
	monitors, err := s.topology.Monitors()
	if err != nil {
		return fmt.Errorf("monitor topology: %w", err)
	}
	if len(monitors) == 0 {
		return fmt.Errorf("no monitors reported")
	}

	now := time.Now()
	rule := ActiveRule(s.rules, now, s.weather())
	if rule != nil {
		s.logger.Debug().Str("rule", rule.Name).Int("priority", rule.Priority).Msg("rule active")
	}

	assignment, err := s.selector.Select(monitors, s.filters, rule)
	if err != nil {
		return err
	}

	s.setState(StateApplying)
	if err := s.composer.Apply(ctx, assignment); err != nil {
		s.logger.Error().Err(err).Str("trigger", string(kind)).Msg("apply failed")
		return err
	}

	s.commit(assignment, kind, now)
	s.logger.Info().
		Str("trigger", string(kind)).
		Int("monitors", len(assignment)).
		Msg("rotation applied")
	return nil
}

// ApplyManual sets a specific entry on a specific monitor, bypassing
// selection and debounce but keeping the single-apply serialization and
// the composer's atomicity guarantee. Other monitors retain their current
// entries.
func (s *Scheduler) ApplyManual(ctx context.Context, monitorIndex int, entryID string) error {
	entry, err := s.store.Get(entryID)
	if err != nil {
		return err
	}

	monitors, err := s.topology.Monitors()
	if err != nil {
		return fmt.Errorf("monitor topology: %w", err)
	}

	var target *domain.Monitor
	for i := range monitors {
		if monitors[i].Index == monitorIndex {
			target = &monitors[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("unknown monitor %d", monitorIndex)
	}

	select {
	case s.applySem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.applySem }()

	// Start from the current assignment so the other monitors are
	// preserved in a panorama recomposition.
	assignment := make(domain.MonitorAssignment, 0, len(monitors))
	current := s.Current()
	for _, mon := range monitors {
		if mon.Index == monitorIndex {
			assignment = append(assignment, domain.Assignment{Monitor: mon, EntryID: entry.ID, Path: entry.LocalPath})
			continue
		}
		for _, a := range current {
			if a.Monitor.Index == mon.Index {
				assignment = append(assignment, domain.Assignment{Monitor: mon, EntryID: a.EntryID, Path: a.Path})
				break
			}
		}
	}

	s.setState(StateApplying)
	defer func() { s.setState(s.restState()) }()
	if err := s.composer.Apply(ctx, assignment); err != nil {
		return err
	}

	// Only the overridden monitor gets history/timestamp updates.
	if err := s.store.MarkApplied(entry.ID, time.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("mark applied failed")
	}
	s.history.Push(monitorIndex, entry.ID)
	s.setCurrent(assignment)
	s.store.SetActive(assignment.EntryIDs())
	s.publish(domain.TriggerGUI, assignment)
	return nil
}

// commit records a successful apply: timestamps, history, active set and
// the applied event.
func (s *Scheduler) commit(assignment domain.MonitorAssignment, kind domain.TriggerKind, at time.Time) {
	for _, a := range assignment {
		if err := s.store.MarkApplied(a.EntryID, at); err != nil {
			s.logger.Warn().Err(err).Str("id", a.EntryID).Msg("mark applied failed")
		}
		s.history.Push(a.Monitor.Index, a.EntryID)
	}
	s.setCurrent(assignment)
	s.store.SetActive(assignment.EntryIDs())
	s.publish(kind, assignment)
}

func (s *Scheduler) setCurrent(assignment domain.MonitorAssignment) {
	s.currentMu.Lock()
	s.current = assignment
	s.currentMu.Unlock()
}

func (s *Scheduler) publish(kind domain.TriggerKind, assignment domain.MonitorAssignment) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.AppliedEvent{
		ID:          uuid.NewString(),
		Trigger:     kind,
		Assignments: assignment,
		At:          time.Now(),
	})
}

// Close stops scheduling new ticks immediately and waits, bounded by
// timeout, for any in-flight apply to finish.
func (s *Scheduler) Close(timeout time.Duration) error {
	s.stopOnce.Do(func() { close(s.stop) })

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	s.runningMu.Lock()
	running := s.running
	s.runningMu.Unlock()
	if running {
		select {
		case <-s.loopDone:
		case <-deadline.C:
			return fmt.Errorf("scheduler loop did not stop within %s", timeout)
		}
	}

	// Draining the semaphore proves no apply is in flight.
	select {
	case s.applySem <- struct{}{}:
		<-s.applySem
		return nil
	case <-deadline.C:
		return fmt.Errorf("apply still in flight after %s", timeout)
	}
}
