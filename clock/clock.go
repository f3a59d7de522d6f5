// Package clock fires a steady stream of ticks at a musical subdivision of a
// tempo. Ticks are scheduled against a fixed anchor, so lateness in one
// callback never shifts the ones that follow.
package clock

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go-drum/debug"
)

var (
	// ErrFatal is reported through the fatal callback when the clock gives up.
	ErrFatal = errors.New("clock fatal")

	// ErrIdle is returned by a tick callback that had nothing to do. It is
	// neither a failure nor a success: the failure streak is left as it is.
	ErrIdle = errors.New("idle tick")

	ErrBadTempo       = errors.New("tempo must be a positive number")
	ErrBadSubdivision = errors.New("unsupported subdivision")
)

// Subdivision is the note value of one tick: 4 is a quarter note, 16 a
// sixteenth.
type Subdivision int

const (
	Quarter      Subdivision = 4
	Eighth       Subdivision = 8
	Sixteenth    Subdivision = 16
	ThirtySecond Subdivision = 32
)

// Valid reports whether s is one of the supported note values.
func (s Subdivision) Valid() bool {
	switch s {
	case Quarter, Eighth, Sixteenth, ThirtySecond:
		return true
	}
	return false
}

// PerBeat is the number of ticks per quarter-note beat.
func (s Subdivision) PerBeat() float64 {
	return float64(s) / 4
}

func (s Subdivision) String() string {
	return fmt.Sprintf("1/%d", int(s))
}

// Interval is the time between ticks at bpm.
func Interval(bpm float64, sub Subdivision) time.Duration {
	return time.Duration(60 / bpm / sub.PerBeat() * float64(time.Second))
}

// Tick is one firing of the clock. Time is when the sound for this tick should
// be heard; it is Lookahead after the callback was due.
type Tick struct {
	Index uint64
	Time  time.Time
}

// Default option values.
const (
	DefaultLookahead   = 50 * time.Millisecond
	DefaultMaxFailures = 3
)

// Options configure a Clock. Zero fields take defaults.
type Options struct {
	Source      Source
	Lookahead   time.Duration
	MaxFailures int
}

// Clock drives a single callback registration at a time.
type Clock struct {
	src         Source
	lookahead   time.Duration
	maxFailures int

	mu       sync.Mutex
	running  bool
	bpm      float64
	sub      Subdivision
	anchor   time.Time // due time of tick base
	base     uint64
	fired    bool
	lastIdx  uint64
	lastDue  time.Time
	stop     chan struct{}
	done     chan struct{}
	retune   chan struct{}
	failures int
}

// New returns a stopped Clock.
func New(opts Options) *Clock {
	if opts.Source == nil {
		opts.Source = System
	}
	if opts.Lookahead < 0 {
		opts.Lookahead = 0
	} else if opts.Lookahead == 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	return &Clock{
		src:         opts.Source,
		lookahead:   opts.Lookahead,
		maxFailures: opts.MaxFailures,
	}
}

// Source returns the time source the clock schedules against.
func (c *Clock) Source() Source { return c.src }

// Lookahead returns how far ahead of each callback its Tick.Time lies.
func (c *Clock) Lookahead() time.Duration { return c.lookahead }

// Running reports whether a registration is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Tempo returns the tempo of the active or most recent registration.
func (c *Clock) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// Start registers onTick to run once per subdivision at bpm. The first tick is
// due immediately. onFatal, if non-nil, receives an error wrapping ErrFatal
// when MaxFailures consecutive callbacks fail; by then the clock has already
// stopped. Start on a running clock does nothing.
func (c *Clock) Start(bpm float64, sub Subdivision, onTick func(Tick) error, onFatal func(error)) error {
	if err := checkTempo(bpm); err != nil {
		return err
	}
	if !sub.Valid() {
		return fmt.Errorf("%w: %d", ErrBadSubdivision, int(sub))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.running = true
	c.bpm = bpm
	c.sub = sub
	c.anchor = c.src.Now()
	c.base = 0
	c.fired = false
	c.failures = 0
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.retune = make(chan struct{}, 1)

	debug.Log("clock", "start bpm=%.1f sub=%s interval=%s", bpm, sub, Interval(bpm, sub))
	go c.loop(onTick, onFatal, c.stop, c.done, c.retune)
	return nil
}

// Stop cancels the registration and waits for the loop to exit. After Stop
// returns no further tick fires. Stopping a stopped clock does nothing.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		done := c.done
		c.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	debug.Log("clock", "stopped")
}

// SetTempo changes the interval for ticks not yet fired. The schedule is
// re-anchored at the last fired tick so the tick count carries on.
func (c *Clock) SetTempo(bpm float64) error {
	if err := checkTempo(bpm); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bpm == bpm {
		return nil
	}
	c.bpm = bpm
	if !c.running {
		return nil
	}
	if c.fired {
		c.anchor = c.lastDue
		c.base = c.lastIdx
	}
	debug.Log("clock", "tempo -> %.1f, anchor at tick %d", bpm, c.base)
	select {
	case c.retune <- struct{}{}:
	default:
	}
	return nil
}

// due returns when tick n should fire. Must hold mu.
func (c *Clock) due(n uint64) time.Time {
	interval := 60 / c.bpm / c.sub.PerBeat() * float64(time.Second)
	return c.anchor.Add(time.Duration(float64(n-c.base) * interval))
}

func (c *Clock) loop(onTick func(Tick) error, onFatal func(error), stop, done, retune chan struct{}) {
	var next uint64
	for {
		c.mu.Lock()
		due := c.due(next)
		c.mu.Unlock()

		t := c.src.NewTimer(due.Sub(c.src.Now()))
		select {
		case <-stop:
			t.Stop()
			close(done)
			return
		case <-retune:
			t.Stop()
			continue
		case <-t.C():
		}

		// a stop racing with the timer wins
		select {
		case <-stop:
			close(done)
			return
		default:
		}

		// recorded before the callback so a SetTempo made during it anchors
		// on this tick
		c.mu.Lock()
		c.fired = true
		c.lastIdx = next
		c.lastDue = due
		c.mu.Unlock()

		err := onTick(Tick{Index: next, Time: due.Add(c.lookahead)})

		c.mu.Lock()
		if errors.Is(err, ErrIdle) {
			c.mu.Unlock()
			next++
			continue
		}
		if err == nil {
			c.failures = 0
			c.mu.Unlock()
			next++
			continue
		}
		c.failures++
		failures := c.failures
		debug.Log("clock", "tick %d failed (%d/%d): %v", next, failures, c.maxFailures, err)
		if failures < c.maxFailures {
			c.mu.Unlock()
			next++
			continue
		}
		c.running = false
		c.mu.Unlock()

		fatal := fmt.Errorf("%w: %d consecutive tick failures, last: %w", ErrFatal, failures, err)
		debug.Log("clock", "%v", fatal)
		close(done)
		if onFatal != nil {
			onFatal(fatal)
		}
		return
	}
}

func checkTempo(bpm float64) error {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: %v", ErrBadTempo, bpm)
	}
	return nil
}
