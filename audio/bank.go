package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go-drum/bank"
	"go-drum/debug"
)

// BankOptions configure an audio bank.
type BankOptions struct {
	Rate int

	// Origin is the instant heard at mixer frame 0.
	Origin time.Time

	// Alive reports the state of whatever is consuming the mix; a non-nil
	// error fails every trigger. Nil means always alive.
	Alive func() error

	// Load decodes a source. Defaults to Load.
	Load func(source string, rate int) (*Sample, error)
}

// Bank plays decoded samples through a Mixer. Trigger converts the requested
// time to a mixer frame, so sounds land sample-accurately however late the
// trigger arrives, as long as the mixer has not yet rendered that frame.
type Bank struct {
	mix  *Mixer
	opts BankOptions

	mu      sync.RWMutex
	samples map[string]*Sample
}

var _ bank.SampleBank = (*Bank)(nil)

// NewBank returns an empty bank mixing into mix.
func NewBank(mix *Mixer, opts BankOptions) *Bank {
	if opts.Rate <= 0 {
		opts.Rate = 44100
	}
	if opts.Load == nil {
		opts.Load = Load
	}
	return &Bank{
		mix:     mix,
		opts:    opts,
		samples: make(map[string]*Sample),
	}
}

// Preload decodes source and keeps it for id, replacing any earlier sample.
func (b *Bank) Preload(id, source string) error {
	s, err := b.opts.Load(source, b.opts.Rate)
	if err != nil {
		return &bank.LoadError{Instrument: id, Source: source, Err: err}
	}
	b.Add(id, s)
	return nil
}

// Add keeps an already decoded sample for id, resampled to the bank rate if
// it was decoded at another one.
func (b *Bank) Add(id string, s *Sample) {
	if s.Rate > 0 && s.Rate != b.opts.Rate {
		s = &Sample{Rate: b.opts.Rate, Data: Resample(s.Data, s.Rate, b.opts.Rate)}
	}
	b.mu.Lock()
	b.samples[id] = s
	b.mu.Unlock()
}

// Sample returns the sample loaded for id.
func (b *Bank) Sample(id string) (*Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.samples[id]
	return s, ok
}

// Frame is the mixer frame heard at t.
func (b *Bank) Frame(t time.Time) int64 {
	d := t.Sub(b.opts.Origin)
	return int64(math.Round(d.Seconds() * float64(b.opts.Rate)))
}

func (b *Bank) Trigger(id string, at time.Time) error {
	if b.opts.Alive != nil {
		if err := b.opts.Alive(); err != nil {
			return &bank.PlaybackError{Instrument: id, Err: fmt.Errorf("%w: %v", bank.ErrNoOutput, err)}
		}
	}
	s, ok := b.Sample(id)
	if !ok {
		return &bank.PlaybackError{Instrument: id, Err: bank.ErrNotLoaded}
	}
	want := b.Frame(at)
	got := b.mix.Schedule(s, want)
	if got != want {
		debug.LogEvery(16, "audio", "%s late by %d frames", id, got-want)
	}
	return nil
}
