// SPDX-License-Identifier: Apache-2.0

// Package sequencer plays timed step effects against a diagram state.
//
// A Sequencer owns one state container and at most one current Run. Each Run
// keeps its pending effects in registration order behind a single timer armed
// for the head of the queue; when the timer fires the effects that fell due
// are applied in order and the timer is re-armed. Starting, cancelling or
// resetting bumps the sequencer's generation, and a fire whose captured
// generation is no longer current is dropped, so effects of a canceled or
// superseded run can never reach the state.
package sequencer

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/adiadia/flowsim/internal/clock"
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/metrics"
	"github.com/google/uuid"
)

var ErrClosed = errors.New("sequencer closed")

// RunInfo describes a run. Offsets are already divided by the speed.
type RunInfo struct {
	ID         uuid.UUID         `json:"run_id"`
	Demo       string            `json:"demo"`
	Fixture    string            `json:"fixture"`
	Mode       string            `json:"mode,omitempty"`
	Path       []string          `json:"path,omitempty"`
	Generation uint64            `json:"generation"`
	Speed      float64           `json:"speed"`
	Terminal   time.Duration     `json:"terminal_ns"`
	Total      time.Duration     `json:"total_ns"`
	Outcome    domain.RunOutcome `json:"outcome"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at,omitempty"`
}

// Observer is told about every run exactly once, when it ends.
type Observer interface {
	RunEnded(info RunInfo)
}

type ObserverFunc func(info RunInfo)

func (f ObserverFunc) RunEnded(info RunInfo) { f(info) }

type Options struct {
	Clock    clock.Clock
	Logger   *slog.Logger
	Observer Observer
	// Speed divides every delay registered after it is set. Defaults to 1.
	Speed float64
}

type Sequencer struct {
	mu       sync.Mutex
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer
	scenario Scenario
	speed    float64

	state      domain.State
	generation uint64
	current    *Run
	typewriter *Typewriter
	subs       map[uint64]*subscriber
	nextSub    uint64
	closed     bool
}

func New(scn Scenario, opts Options) *Sequencer {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	speed := opts.Speed
	if !validSpeed(speed) {
		speed = 1
	}

	s := &Sequencer{
		clock:    clk,
		logger:   l.With("demo", scn.Name()),
		observer: opts.Observer,
		scenario: scn,
		speed:    speed,
		subs:     make(map[uint64]*subscriber),
	}
	s.typewriter = NewTypewriter(clk, scn.RevealTick(), s.guard, s.onRevealTick)
	s.state = s.initialState()
	metrics.Touch(scn.Name())
	return s
}

// Run is one execution of a step list. A Run handle stays valid after it has
// been canceled or superseded, but scheduling on it registers nothing.
type Run struct {
	seq        *Sequencer
	info       RunInfo
	generation uint64
	startedAt  time.Time
	speed      float64
	offset     time.Duration
	queue      []pending
	timer      clock.Timer
	ended      bool
}

type pending struct {
	at     time.Duration
	effect Effect
}

func (r *Run) ID() uuid.UUID { return r.info.ID }

func (r *Run) Generation() uint64 { return r.generation }

// Schedule registers e to fire delay after the previously scheduled effect of
// this run and returns the new cumulative offset. A zero delay aligns e with
// the previous effect.
func (r *Run) Schedule(e Effect, delay time.Duration) time.Duration {
	r.seq.mu.Lock()
	defer r.seq.mu.Unlock()
	return r.seq.scheduleLocked(r, e, delay)
}

// Offset returns the cumulative offset of the last registered effect.
func (r *Run) Offset() time.Duration {
	r.seq.mu.Lock()
	defer r.seq.mu.Unlock()
	return r.offset
}

// Pending returns the number of registered effects that have not fired.
func (r *Run) Pending() int {
	r.seq.mu.Lock()
	defer r.seq.mu.Unlock()
	return len(r.queue)
}

// Begin supersedes any current run, resets the state to the initial layout
// and returns a new empty run for callers that register their own effects.
func (s *Sequencer) Begin(fixture, mode string) (*Run, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	r, ended := s.beginLocked(fixture, mode, nil)
	s.mu.Unlock()

	s.emit(ended)
	return r, nil
}

// RunScenario plays the scenario's plan for f. The plan is compiled before
// anything is canceled, so a fixture that does not compile leaves the current
// run untouched.
func (s *Sequencer) RunScenario(f domain.Fixture) (RunInfo, error) {
	plan, err := s.scenario.Plan(f)
	if err != nil {
		return RunInfo{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RunInfo{}, ErrClosed
	}

	r, ended := s.beginLocked(plan.Fixture, plan.Mode, plan.Path)
	for _, st := range plan.Steps {
		s.scheduleLocked(r, st.Effect, st.Delay)
	}
	r.info.Terminal = s.scheduleLocked(r, publish(plan.Result, plan.Reveal), 0)
	for _, st := range plan.Trailing {
		s.scheduleLocked(r, st.Effect, st.Delay)
	}
	r.info.Total = r.offset
	info := r.info
	s.mu.Unlock()

	s.emit(ended)
	metrics.ObserveScriptedDuration(info.Demo, info.Terminal)
	s.logger.Info("run started",
		"run_id", info.ID,
		"fixture", info.Fixture,
		"mode", info.Mode,
		"path", info.Path,
		"generation", info.Generation,
		"terminal_ms", info.Terminal.Milliseconds(),
	)
	return info, nil
}

// CancelAll invalidates every pending effect of the current run and stops the
// typewriter. It is a no-op when no run is current.
func (s *Sequencer) CancelAll() {
	s.mu.Lock()
	ended := s.cancelLocked(domain.RunCanceled)
	s.mu.Unlock()

	s.emit(ended)
}

// Reset cancels the current run and restores the initial layout.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ended := s.cancelLocked(domain.RunCanceled)
	version := s.state.Version
	s.state = s.initialState()
	s.state.Version = version + 1
	s.notifyLocked()
	s.mu.Unlock()

	s.emit(ended)
}

// Close tears the sequencer down: the current run is canceled, subscriber
// channels are closed and later runs fail with ErrClosed. Close is idempotent.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ended := s.cancelLocked(domain.RunCanceled)
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	s.emit(ended)
}

// SetSpeed sets the multiplier applied to runs started afterwards.
func (s *Sequencer) SetSpeed(speed float64) error {
	if !validSpeed(speed) {
		return domain.ErrInvalidSpeed
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	return nil
}

func (s *Sequencer) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

func (s *Sequencer) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Current returns the current run, if any. A run stays current after its
// terminal effect until it is canceled or superseded.
func (s *Sequencer) Current() (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return RunInfo{}, false
	}
	return s.current.info, true
}

// Idle reports whether the current run, if any, has no effects left to fire
// and the result text is fully revealed.
func (s *Sequencer) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && len(s.current.queue) > 0 {
		return false
	}
	return !s.typewriter.Active()
}

func (s *Sequencer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Sequencer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sequencer) Scenario() Scenario { return s.scenario }

func (s *Sequencer) beginLocked(fixture, mode string, path []string) (*Run, []RunInfo) {
	ended := s.cancelLocked(domain.RunSuperseded)

	s.generation++
	now := s.clock.Now()
	r := &Run{
		seq:        s,
		generation: s.generation,
		startedAt:  now,
		speed:      s.speed,
		info: RunInfo{
			ID:         uuid.New(),
			Demo:       s.scenario.Name(),
			Fixture:    fixture,
			Mode:       mode,
			Path:       append([]string(nil), path...),
			Generation: s.generation,
			Speed:      s.speed,
			Outcome:    domain.RunRunning,
			StartedAt:  now,
		},
	}
	s.current = r

	version := s.state.Version
	s.state = s.initialState()
	s.state.Version = version + 1
	s.state.RunID = r.info.ID.String()
	s.state.Fixture = fixture
	s.state.Mode = mode
	s.state.Generation = r.generation
	s.state.Running = true
	s.notifyLocked()

	return r, ended
}

func (s *Sequencer) cancelLocked(outcome domain.RunOutcome) []RunInfo {
	s.typewriter.Stop()

	r := s.current
	if r == nil {
		return nil
	}

	s.generation++
	s.current = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	dropped := len(r.queue)
	r.queue = nil

	if s.state.Running {
		s.state.Running = false
		s.state.Version++
		s.notifyLocked()
	}

	s.logger.Debug("run invalidated",
		"run_id", r.info.ID,
		"outcome", outcome,
		"dropped_effects", dropped,
	)

	if r.ended {
		return nil
	}
	r.ended = true
	r.info.Outcome = outcome
	r.info.EndedAt = s.clock.Now()
	return []RunInfo{r.info}
}

func (s *Sequencer) liveLocked(r *Run) bool {
	return !s.closed && s.current == r && r.generation == s.generation
}

func (s *Sequencer) scheduleLocked(r *Run, e Effect, delay time.Duration) time.Duration {
	if !s.liveLocked(r) {
		return r.offset
	}
	if delay < 0 {
		delay = 0
	}

	r.offset += scale(delay, r.speed)
	r.queue = append(r.queue, pending{at: r.offset, effect: e})
	if r.timer == nil {
		s.armLocked(r)
	}
	return r.offset
}

func (s *Sequencer) armLocked(r *Run) {
	wait := r.queue[0].at - s.clock.Now().Sub(r.startedAt)
	gen := r.generation
	r.timer = s.clock.AfterFunc(wait, func() { s.fire(r, gen) })
}

func (s *Sequencer) fire(r *Run, gen uint64) {
	s.mu.Lock()
	if s.closed || s.current != r || gen != s.generation {
		s.mu.Unlock()
		metrics.IncStaleFire(s.scenario.Name())
		s.logger.Debug("stale fire dropped", "run_id", r.info.ID, "generation", gen)
		return
	}

	r.timer = nil
	elapsed := s.clock.Now().Sub(r.startedAt)
	var ended []RunInfo
	for len(r.queue) > 0 && r.queue[0].at <= elapsed {
		p := r.queue[0]
		r.queue[0] = pending{}
		r.queue = r.queue[1:]
		if info, done := s.applyLocked(r, p.effect); done {
			ended = append(ended, info)
		}
	}
	if len(r.queue) > 0 {
		s.armLocked(r)
	}
	s.mu.Unlock()

	s.emit(ended)
}

func (s *Sequencer) applyLocked(r *Run, e Effect) (RunInfo, bool) {
	version := s.state.Version
	s.state = e.Apply(s.state)
	s.state.Version = version + 1
	metrics.IncEffectApplied(s.scenario.Name(), string(e.Kind))
	s.logger.Debug("effect applied", "run_id", r.info.ID, "effect", e.String())

	var (
		info RunInfo
		done bool
	)
	if e.Kind == KindPublish {
		s.typewriter.Start(e.reveal)
		if !r.ended {
			r.ended = true
			r.info.Outcome = domain.RunCompleted
			r.info.EndedAt = s.clock.Now()
			info, done = r.info, true
		}
	}

	s.notifyLocked()
	return info, done
}

func (s *Sequencer) guard(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *Sequencer) onRevealTick(index int) {
	s.state.Revealed = index
	s.state.Version++
	s.notifyLocked()
}

func (s *Sequencer) emit(ended []RunInfo) {
	for _, info := range ended {
		metrics.IncRunOutcome(info.Demo, info.Outcome)
		s.logger.Info("run ended",
			"run_id", info.ID,
			"fixture", info.Fixture,
			"outcome", info.Outcome,
		)
		if s.observer != nil {
			s.observer.RunEnded(info)
		}
	}
}

func (s *Sequencer) initialState() domain.State {
	return domain.State{
		Demo:     s.scenario.Name(),
		Nodes:    s.scenario.Diagram().InitialStatuses(),
		Messages: map[string]string{},
		Edges:    domain.NewEdgeSet(),
		Metrics:  s.scenario.InitialMetrics().Clone(),
	}
}

// Playback speed bounds. The demos offer 0.5x, 1x and 2x.
const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// scale divides d by speed, saturating at the largest duration.
func scale(d time.Duration, speed float64) time.Duration {
	if speed == 1 {
		return d
	}
	scaled := float64(d) / speed
	if scaled >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}

func validSpeed(speed float64) bool {
	return speed >= MinSpeed && speed <= MaxSpeed
}
