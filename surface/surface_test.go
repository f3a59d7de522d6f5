package surface

import (
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"go-drum/bank"
	"go-drum/clock"
	"go-drum/midi"
	"go-drum/pattern"
	"go-drum/sequencer"
	"go-drum/theme"
)

// idleClock accepts registrations and never ticks.
type idleClock struct{}

func (idleClock) Start(float64, clock.Subdivision, func(clock.Tick) error, func(error)) error {
	return nil
}
func (idleClock) Stop() {}

func (idleClock) SetTempo(float64) error { return nil }

type fakeController struct {
	mu      sync.Mutex
	batches [][]midi.LEDUpdate
	err     error
	pads    chan midi.PadEvent
}

func newFakeController() *fakeController {
	return &fakeController{pads: make(chan midi.PadEvent, 4)}
}

func (f *fakeController) ID() string                      { return "fake" }
func (f *fakeController) PadEvents() <-chan midi.PadEvent { return f.pads }
func (f *fakeController) ClearLEDs() error                { return nil }
func (f *fakeController) Close() error                    { return nil }

func (f *fakeController) SetLEDBatch(updates []midi.LEDUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]midi.LEDUpdate(nil), updates...))
	return nil
}

func (f *fakeController) sent() [][]midi.LEDUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}

func newTransport(c *qt.C, preset string) *sequencer.Transport {
	p, tempo, err := pattern.Preset(preset)
	c.Assert(err, qt.IsNil)
	store, err := pattern.FromPattern(p)
	c.Assert(err, qt.IsNil)
	tr, err := sequencer.New(idleClock{}, store, bank.NewLog(), sequencer.Options{Tempo: tempo})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { tr.Close() })
	return tr
}

func TestFlushSendsOnlyChanges(t *testing.T) {
	c := qt.New(t)
	tr := newTransport(c, "basic")
	th := theme.New(nil)
	s := New(tr, th)
	ctrl := newFakeController()
	s.Attach(ctrl)
	defer close(ctrl.pads)

	c.Assert(s.Flush(), qt.IsNil)
	c.Assert(ctrl.sent(), qt.HasLen, 1)
	c.Assert(ctrl.sent()[0], qt.HasLen, Rows*Cols+4)

	c.Assert(s.Flush(), qt.IsNil)
	c.Assert(ctrl.sent(), qt.HasLen, 1)

	_, err := tr.ToggleStep(pattern.Kick, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Flush(), qt.IsNil)
	c.Assert(ctrl.sent(), qt.HasLen, 2)
	c.Assert(ctrl.sent()[1], qt.DeepEquals, []midi.LEDUpdate{
		{Row: 7, Col: 1, Color: th.PadActive()},
	})
}

func TestFlushErrorResendsEverything(t *testing.T) {
	c := qt.New(t)
	tr := newTransport(c, "basic")
	s := New(tr, nil)
	ctrl := newFakeController()
	s.Attach(ctrl)
	defer close(ctrl.pads)

	c.Assert(s.Flush(), qt.IsNil)
	ctrl.mu.Lock()
	ctrl.err = errors.New("unplugged")
	ctrl.mu.Unlock()
	tr.ToggleStep(pattern.Snare, 0)
	c.Assert(s.Flush(), qt.ErrorMatches, "unplugged")

	ctrl.mu.Lock()
	ctrl.err = nil
	ctrl.mu.Unlock()
	c.Assert(s.Flush(), qt.IsNil)
	c.Assert(ctrl.sent(), qt.HasLen, 2)
	c.Assert(ctrl.sent()[1], qt.HasLen, Rows*Cols+4)
}

func TestDetached(t *testing.T) {
	c := qt.New(t)
	s := New(newTransport(c, "basic"), nil)
	c.Assert(s.Flush(), qt.IsNil)
	c.Assert(s.Preview(), qt.IsNil)
	c.Assert(s.Controller(), qt.IsNil)
}

func TestFrameShowsPatternAndPlayhead(t *testing.T) {
	c := qt.New(t)
	th := theme.New(nil)
	tr := newTransport(c, "basic")
	snap := tr.Observe()
	snap.State = sequencer.Running
	snap.LastStep = 4

	at := make(map[[2]int]midi.LEDUpdate)
	for _, led := range Frame(snap, 0, th) {
		at[[2]int{led.Row, led.Col}] = led
	}
	// kick 10001000 on the top row of pads
	c.Assert(at[[2]int{7, 0}].Color, qt.Equals, [3]uint8(th.PadActive()))
	c.Assert(at[[2]int{7, 1}].Color, qt.Equals, [3]uint8(th.PadEmpty()))
	c.Assert(at[[2]int{7, 4}], qt.Equals, midi.LEDUpdate{Row: 7, Col: 4, Color: th.PadPlayhead(), Channel: midi.ChannelPulse})
	// snare 00100010
	c.Assert(at[[2]int{6, 4}].Color, qt.Equals, [3]uint8(th.RGB(theme.RoleMuted)))
	// no fourth instrument
	c.Assert(at[[2]int{4, 0}].Color, qt.Equals, [3]uint8{})
	c.Assert(at[[2]int{Rows, ButtonPlay}].Color, qt.Equals, [3]uint8{0, 255, 0})
}

func TestHandlePad(t *testing.T) {
	c := qt.New(t)
	tr := newTransport(c, "basic")
	s := New(tr, nil)

	s.HandlePad(midi.PadEvent{Row: 6, Col: 2})
	on, ok := tr.Observe().Pattern.Row(pattern.Snare)
	c.Assert(ok, qt.IsTrue)
	c.Assert(on[2], qt.IsFalse)

	before := tr.Observe().Pattern
	s.HandlePad(midi.PadEvent{Row: 0, Col: 0})
	s.HandlePad(midi.PadEvent{Row: 9, Col: 0})
	c.Assert(tr.Observe().Pattern, qt.DeepEquals, before)

	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonFaster})
	c.Assert(tr.Observe().TempoBPM, qt.Equals, 125.0)
	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonSlower})
	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonSlower})
	c.Assert(tr.Observe().TempoBPM, qt.Equals, 115.0)

	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPlay})
	c.Assert(tr.Observe().Running(), qt.IsTrue)
	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPlay})
	c.Assert(tr.Observe().Running(), qt.IsFalse)

	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonRewind})
	c.Assert(tr.Observe().CurrentStep, qt.Equals, 0)
}

func TestPaging(t *testing.T) {
	c := qt.New(t)
	tr := newTransport(c, "four-on-floor")
	s := New(tr, nil)
	c.Assert(Pages(16), qt.Equals, 2)
	c.Assert(Pages(9), qt.Equals, 2)
	c.Assert(Pages(0), qt.Equals, 1)

	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPageNext})
	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPageNext})
	c.Assert(s.Page(), qt.Equals, 1)

	kick, _ := tr.Observe().Pattern.Row(pattern.Kick)
	was := kick[9]
	s.HandlePad(midi.PadEvent{Row: 7, Col: 1})
	kick, _ = tr.Observe().Pattern.Row(pattern.Kick)
	c.Assert(kick[9], qt.Equals, !was)

	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPagePrev})
	s.HandlePad(midi.PadEvent{Row: Rows, Col: ButtonPagePrev})
	c.Assert(s.Page(), qt.Equals, 0)
}

func TestPadEventsFromController(t *testing.T) {
	c := qt.New(t)
	tr := newTransport(c, "basic")
	s := New(tr, nil)
	ctrl := newFakeController()
	s.Attach(ctrl)
	c.Assert(s.Controller(), qt.Equals, midi.Controller(ctrl))

	for len(tr.Updates()) > 0 {
		<-tr.Updates()
	}
	ctrl.pads <- midi.PadEvent{Row: 7, Col: 3}
	select {
	case <-tr.Updates():
	case <-time.After(5 * time.Second):
		c.Fatal("pad press never reached the transport")
	}
	kick, _ := tr.Observe().Pattern.Row(pattern.Kick)
	c.Assert(kick[3], qt.IsTrue)
	close(ctrl.pads)

	grid := s.Preview()
	c.Assert(grid, qt.HasLen, Rows+1)
	c.Assert(grid[7][3], qt.Equals, [3]uint8(theme.New(nil).PadActive()))

	s.Attach(nil)
	c.Assert(s.Preview(), qt.IsNil)
}
