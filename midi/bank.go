package midi

import (
	"fmt"
	"sync"
	"time"

	"go-drum/bank"
	"go-drum/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// BankOptions configure a MIDI bank. Zero fields take defaults.
type BankOptions struct {
	Port     string
	Channel  uint8 // 0-15; drums are usually 9
	Kit      string
	Velocity uint8
	Gate     time.Duration // time between note on and note off

	// Now and After are replaced in tests.
	Now   func() time.Time
	After func(d time.Duration, f func())
}

// Bank plays instruments as notes on a MIDI port. Each instrument maps to one
// note. Trigger schedules the note for its time and returns at once; a send
// that fails later is reported by the next Trigger.
type Bank struct {
	out  *Output
	opts BankOptions

	mu     sync.Mutex
	notes  map[string]uint8
	late   *bank.PlaybackError
	closed bool
}

var _ bank.SampleBank = (*Bank)(nil)

// NewBank returns a bank sending through out.
func NewBank(out *Output, opts BankOptions) *Bank {
	if opts.Kit == "" {
		opts.Kit = DefaultKit
	}
	if opts.Velocity == 0 {
		opts.Velocity = 100
	}
	if opts.Gate <= 0 {
		opts.Gate = 50 * time.Millisecond
	}
	if opts.Channel > 15 {
		opts.Channel = 9
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Bank{
		out:   out,
		opts:  opts,
		notes: make(map[string]uint8),
	}
}

// Preload maps id to a note (see ResolveNote) and opens the port so Trigger
// never waits on it.
func (b *Bank) Preload(id, source string) error {
	note, err := ResolveNote(b.opts.Kit, id, source)
	if err != nil {
		return &bank.LoadError{Instrument: id, Source: source, Err: err}
	}
	if _, err := b.out.Sender(b.opts.Port); err != nil {
		return &bank.LoadError{Instrument: id, Source: source, Err: err}
	}
	b.mu.Lock()
	b.notes[id] = note
	b.mu.Unlock()
	debug.Log("midi", "preload %s -> note %d ch %d", id, note, b.opts.Channel)
	return nil
}

// Note returns the note id plays, if loaded.
func (b *Bank) Note(id string) (uint8, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notes[id]
	return n, ok
}

func (b *Bank) Trigger(id string, at time.Time) error {
	b.mu.Lock()
	late := b.late
	b.late = nil
	note, ok := b.notes[id]
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return &bank.PlaybackError{Instrument: id, Err: bank.ErrNoOutput}
	}
	if !ok {
		return &bank.PlaybackError{Instrument: id, Err: bank.ErrNotLoaded}
	}

	send, err := b.out.Sender(b.opts.Port)
	if err != nil {
		return &bank.PlaybackError{Instrument: id, Err: fmt.Errorf("%w: %v", bank.ErrNoOutput, err)}
	}

	ch := b.opts.Channel
	on := func() {
		if err := send(gomidi.NoteOn(ch, note, b.opts.Velocity)); err != nil {
			b.sendFailed(id, err)
		}
	}
	off := func() {
		if err := send(gomidi.NoteOff(ch, note)); err != nil {
			b.sendFailed(id, err)
		}
	}

	delay := at.Sub(b.opts.Now())
	if delay <= 0 {
		if err := send(gomidi.NoteOn(ch, note, b.opts.Velocity)); err != nil {
			b.out.Forget(b.opts.Port)
			return &bank.PlaybackError{Instrument: id, Err: err}
		}
		b.schedule(b.opts.Gate, off)
	} else {
		b.schedule(delay, on)
		b.schedule(delay+b.opts.Gate, off)
	}
	if late != nil {
		return late
	}
	return nil
}

// Close drops sends not yet made. Later triggers fail with ErrNoOutput.
func (b *Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bank) schedule(d time.Duration, f func()) {
	b.opts.After(d, func() {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if !closed {
			f()
		}
	})
}

func (b *Bank) sendFailed(id string, err error) {
	debug.Log("midi", "send %s: %v", id, err)
	b.out.Forget(b.opts.Port)
	b.mu.Lock()
	b.late = &bank.PlaybackError{Instrument: id, Err: err}
	b.mu.Unlock()
}
