package sequencer

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go-drum/bank"
	"go-drum/clock"
	"go-drum/debug"
	"go-drum/pattern"
)

var (
	ErrInvalidTempo = errors.New("invalid tempo")
	ErrClosed       = errors.New("transport closed")
	ErrRunning      = errors.New("transport running")

	// ErrClockFatal marks playback halted by repeated tick failures.
	ErrClockFatal = clock.ErrFatal
)

// Clock is the tick source a Transport plays from. *clock.Clock implements it.
type Clock interface {
	Start(bpm float64, sub clock.Subdivision, onTick func(clock.Tick) error, onFatal func(error)) error
	Stop()
	SetTempo(bpm float64) error
}

// State is the transport's play state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// ResumePolicy says where Start picks up after Stop.
type ResumePolicy int

const (
	ResumeFromLast ResumePolicy = iota
	ResumeFromStart
)

func (p ResumePolicy) String() string {
	if p == ResumeFromStart {
		return "start"
	}
	return "last"
}

// ParseResumePolicy accepts "last" or "start".
func ParseResumePolicy(s string) (ResumePolicy, error) {
	switch s {
	case "", "last":
		return ResumeFromLast, nil
	case "start":
		return ResumeFromStart, nil
	}
	return 0, fmt.Errorf("unknown resume policy %q", s)
}

// Tempo bounds and defaults.
const (
	DefaultTempo    = 120
	DefaultMinTempo = 60
	DefaultMaxTempo = 200
)

// Options configure a Transport. Zero fields take defaults.
type Options struct {
	Tempo       float64
	MinTempo    float64
	MaxTempo    float64
	Subdivision clock.Subdivision
	Resume      ResumePolicy
}

func (o *Options) fill() {
	if o.Tempo == 0 {
		o.Tempo = DefaultTempo
	}
	if o.MinTempo == 0 {
		o.MinTempo = DefaultMinTempo
	}
	if o.MaxTempo == 0 {
		o.MaxTempo = DefaultMaxTempo
	}
	if o.Subdivision == 0 {
		o.Subdivision = clock.Sixteenth
	}
}

// Snapshot is a consistent read of transport and pattern state.
type Snapshot struct {
	State       State
	CurrentStep int // next step to play
	LastStep    int // step most recently played, -1 if none
	TempoBPM    float64
	MinTempo    float64
	MaxTempo    float64
	Subdivision clock.Subdivision
	Pattern     pattern.Pattern
	Ticks       uint64

	PlaybackErrors    int
	LastPlaybackError error

	// Err is set when playback was halted by the clock.
	Err error
}

func (s Snapshot) Running() bool { return s.State == Running }

// Transport plays a pattern store through a sample bank, one step per clock
// tick.
//
// ctl serialises commands. mu guards playback state and is held by the tick
// handler, so a tick and a command never interleave. Stop releases mu before
// waiting for the clock so an in-flight tick can finish.
type Transport struct {
	clk   Clock
	store *pattern.Store
	bank  bank.SampleBank
	opts  Options

	ctl sync.Mutex

	mu       sync.Mutex
	state    State
	closed   bool
	step     int
	last     int
	tempo    float64
	gen      uint64
	ticks    uint64
	perrs    int
	lastPerr error
	fatal    error

	updates chan struct{}
}

// New returns a stopped Transport at step 0.
func New(clk Clock, store *pattern.Store, b bank.SampleBank, opts Options) (*Transport, error) {
	opts.fill()
	if !opts.Subdivision.Valid() {
		return nil, fmt.Errorf("%w: %d", clock.ErrBadSubdivision, int(opts.Subdivision))
	}
	if opts.MinTempo > opts.MaxTempo {
		return nil, fmt.Errorf("%w: range %v-%v", ErrInvalidTempo, opts.MinTempo, opts.MaxTempo)
	}
	t := &Transport{
		clk:     clk,
		store:   store,
		bank:    b,
		opts:    opts,
		last:    -1,
		updates: make(chan struct{}, 1),
	}
	if err := t.checkTempo(opts.Tempo); err != nil {
		return nil, err
	}
	t.tempo = opts.Tempo
	return t, nil
}

// Updates delivers a signal after every tick, edit and state change. Signals
// coalesce; read Observe for the current state.
func (t *Transport) Updates() <-chan struct{} {
	return t.updates
}

func (t *Transport) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// Start begins playback. It does nothing if already running.
func (t *Transport) Start() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.state == Running {
		t.mu.Unlock()
		return nil
	}
	if t.opts.Resume == ResumeFromStart {
		t.step = 0
		t.last = -1
	}
	t.gen++
	gen := t.gen
	t.state = Running
	t.fatal = nil
	tempo := t.tempo
	step := t.step
	t.mu.Unlock()

	debug.Log("transport", "start at step %d, %.1f bpm", step, tempo)
	err := t.clk.Start(tempo, t.opts.Subdivision,
		func(tick clock.Tick) error { return t.tick(gen, tick) },
		func(err error) { t.halt(gen, err) },
	)
	if err != nil {
		t.mu.Lock()
		t.state = Stopped
		t.gen++
		t.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrClockFatal, err)
	}
	t.notify()
	return nil
}

// Stop halts playback and keeps the position. It does nothing if stopped.
func (t *Transport) Stop() {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return
	}
	t.state = Stopped
	t.gen++
	t.mu.Unlock()

	t.clk.Stop()
	debug.Log("transport", "stop")
	t.notify()
}

// Toggle starts a stopped transport and stops a running one.
func (t *Transport) Toggle() error {
	if t.Observe().Running() {
		t.Stop()
		return nil
	}
	return t.Start()
}

// SetTempo changes tempo in either state. Out of range values are rejected
// and leave the tempo unchanged.
func (t *Transport) SetTempo(bpm float64) error {
	if err := t.checkTempo(bpm); err != nil {
		return err
	}

	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	t.tempo = bpm
	running := t.state == Running
	t.mu.Unlock()

	if running {
		if err := t.clk.SetTempo(bpm); err != nil {
			return err
		}
	}
	debug.Log("transport", "tempo %.1f", bpm)
	t.notify()
	return nil
}

// NudgeTempo adds delta to the tempo, clamped to the allowed range.
func (t *Transport) NudgeTempo(delta float64) error {
	t.mu.Lock()
	bpm := t.tempo + delta
	t.mu.Unlock()
	bpm = math.Max(t.opts.MinTempo, math.Min(t.opts.MaxTempo, bpm))
	return t.SetTempo(bpm)
}

func (t *Transport) checkTempo(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	if bpm < t.opts.MinTempo || bpm > t.opts.MaxTempo {
		return fmt.Errorf("%w: %v outside %v-%v", ErrInvalidTempo, bpm, t.opts.MinTempo, t.opts.MaxTempo)
	}
	return nil
}

// ToggleStep flips a step in the pattern. Takes effect from the next tick
// that reaches it.
func (t *Transport) ToggleStep(id string, step int) (bool, error) {
	on, err := t.store.ToggleStep(id, step)
	if err != nil {
		return false, err
	}
	t.notify()
	return on, nil
}

// SetStep sets a step in the pattern.
func (t *Transport) SetStep(id string, step int, on bool) error {
	if err := t.store.SetStep(id, step, on); err != nil {
		return err
	}
	t.notify()
	return nil
}

// LoadPattern replaces the whole pattern. The position wraps to 0 if the new
// pattern is shorter than it.
func (t *Transport) LoadPattern(p pattern.Pattern) error {
	t.mu.Lock()
	if err := t.store.Replace(p); err != nil {
		t.mu.Unlock()
		return err
	}
	if t.step >= p.NumSteps {
		t.step = 0
	}
	if t.last >= p.NumSteps {
		t.last = -1
	}
	t.mu.Unlock()
	t.notify()
	return nil
}

// Rewind moves the position back to step 0. Only the tick handler moves the
// position during playback, so Rewind fails with ErrRunning then.
func (t *Transport) Rewind() error {
	t.mu.Lock()
	if t.state == Running {
		t.mu.Unlock()
		return ErrRunning
	}
	t.step = 0
	t.last = -1
	t.mu.Unlock()
	t.notify()
	return nil
}

// Observe returns a consistent snapshot.
func (t *Transport) Observe() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:             t.state,
		CurrentStep:       t.step,
		LastStep:          t.last,
		TempoBPM:          t.tempo,
		MinTempo:          t.opts.MinTempo,
		MaxTempo:          t.opts.MaxTempo,
		Subdivision:       t.opts.Subdivision,
		Pattern:           t.store.Snapshot(),
		Ticks:             t.ticks,
		PlaybackErrors:    t.perrs,
		LastPlaybackError: t.lastPerr,
		Err:               t.fatal,
	}
}

// Close stops playback for good. Later Starts fail with ErrClosed.
func (t *Transport) Close() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = Stopped
	t.gen++
	t.mu.Unlock()

	t.clk.Stop()
	debug.Log("transport", "closed")
	t.notify()
	return nil
}

// tick plays the current step and advances. Ticks from an older Start are
// dropped.
func (t *Transport) tick(gen uint64, tk clock.Tick) error {
	t.mu.Lock()
	if gen != t.gen || t.state != Running {
		t.mu.Unlock()
		return nil
	}

	n := t.store.NumSteps()
	if t.step >= n {
		t.step = 0
	}
	step := t.step
	ids, err := t.store.ActiveAt(step)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	if len(ids) == 0 {
		t.last = step
		t.step = (step + 1) % n
		t.ticks++
		t.mu.Unlock()
		t.notify()
		return clock.ErrIdle
	}

	var errs []error
	for _, id := range ids {
		if err := t.bank.Trigger(id, tk.Time); err != nil {
			t.perrs++
			t.lastPerr = err
			errs = append(errs, err)
			debug.Log("transport", "tick %d step %d: %v", tk.Index, step, err)
		}
	}
	t.last = step
	t.step = (step + 1) % n
	t.ticks++
	t.mu.Unlock()

	debug.LogEvery(64, "transport", "tick %d step %d hits %d", tk.Index, step, len(ids))
	t.notify()
	return errors.Join(errs...)
}

// halt handles the clock giving up.
func (t *Transport) halt(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.state = Stopped
	t.gen++
	t.fatal = err
	t.mu.Unlock()

	debug.Log("transport", "halted: %v", err)
	t.notify()
}
