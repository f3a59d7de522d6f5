// Package surface drives a grid controller as a second view of the
// transport: instruments on rows, steps on columns, transport buttons on the
// top row.
package surface

import (
	"context"
	"sync"
	"time"

	"go-drum/debug"
	"go-drum/midi"
	"go-drum/sequencer"
	"go-drum/theme"
)

// LED refresh rate
const ledFPS = 30

// Grid size of the pad area.
const (
	Rows = 8
	Cols = 8
)

// Top row buttons.
const (
	ButtonPlay     = 0
	ButtonRewind   = 1
	ButtonSlower   = 2
	ButtonFaster   = 3
	ButtonPagePrev = 6
	ButtonPageNext = 7
)

// TempoStep is how far the tempo buttons move the tempo.
const TempoStep = 5

// Commands is what the surface needs from the transport.
type Commands interface {
	Observe() sequencer.Snapshot
	ToggleStep(id string, step int) (bool, error)
	Toggle() error
	Rewind() error
	NudgeTempo(delta float64) error
}

var _ Commands = (*sequencer.Transport)(nil)

// Surface mirrors the transport on at most one controller at a time.
type Surface struct {
	cmd Commands
	th  *theme.Theme

	mu       sync.Mutex
	ctrl     midi.Controller
	prevLEDs map[[2]int]midi.LEDUpdate // for diffing
	page     int
}

// New returns a surface with no controller attached.
func New(cmd Commands, th *theme.Theme) *Surface {
	if th == nil {
		th = theme.New(nil)
	}
	return &Surface{
		cmd:      cmd,
		th:       th,
		prevLEDs: make(map[[2]int]midi.LEDUpdate),
	}
}

// Attach switches to c, or detaches with nil. Pad presses from c are handled
// until its event channel closes.
func (s *Surface) Attach(c midi.Controller) {
	s.mu.Lock()
	s.ctrl = c
	s.prevLEDs = make(map[[2]int]midi.LEDUpdate)
	s.mu.Unlock()

	if c == nil {
		debug.Log("surface", "detached")
		return
	}
	debug.Log("surface", "attached %s", c.ID())
	go func() {
		for ev := range c.PadEvents() {
			s.HandlePad(ev)
		}
	}()
}

// Controller returns the attached controller, if any.
func (s *Surface) Controller() midi.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Page is the index of the eight-step page shown.
func (s *Surface) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Run refreshes the LEDs at a fixed rate until ctx is done.
func (s *Surface) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				debug.LogEvery(30, "surface", "flush: %v", err)
			}
		}
	}
}

// Flush sends the LEDs that changed since the last flush.
func (s *Surface) Flush() error {
	snap := s.cmd.Observe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return nil
	}
	s.page = clampPage(s.page, snap.Pattern.NumSteps)

	newLEDs := Frame(snap, s.page, s.th)
	newMap := make(map[[2]int]midi.LEDUpdate, len(newLEDs))
	var updates []midi.LEDUpdate
	for _, led := range newLEDs {
		key := [2]int{led.Row, led.Col}
		newMap[key] = led
		if prev, ok := s.prevLEDs[key]; !ok || prev != led {
			updates = append(updates, led)
		}
	}
	for key := range s.prevLEDs {
		if _, ok := newMap[key]; !ok {
			updates = append(updates, midi.LEDUpdate{Row: key[0], Col: key[1]})
		}
	}
	if len(updates) == 0 {
		return nil
	}

	debug.LogEvery(100, "led", "flush: batch=%d prev=%d", len(updates), len(s.prevLEDs))
	if err := s.ctrl.SetLEDBatch(updates); err != nil {
		// resend everything next time
		s.prevLEDs = make(map[[2]int]midi.LEDUpdate)
		return err
	}
	s.prevLEDs = newMap
	return nil
}

// HandlePad applies a pad press.
func (s *Surface) HandlePad(ev midi.PadEvent) {
	snap := s.cmd.Observe()

	if ev.Row == Rows {
		s.button(ev.Col, snap)
		return
	}
	if ev.Row < 0 || ev.Row >= Rows || ev.Col < 0 || ev.Col >= Cols {
		return
	}

	s.mu.Lock()
	page := clampPage(s.page, snap.Pattern.NumSteps)
	s.mu.Unlock()

	inst := Rows - 1 - ev.Row
	step := page*Cols + ev.Col
	if inst >= len(snap.Pattern.Rows) || step >= snap.Pattern.NumSteps {
		return
	}
	id := snap.Pattern.Rows[inst].Instrument
	if _, err := s.cmd.ToggleStep(id, step); err != nil {
		debug.Log("surface", "toggle %s/%d: %v", id, step, err)
	}
}

func (s *Surface) button(col int, snap sequencer.Snapshot) {
	var err error
	switch col {
	case ButtonPlay:
		err = s.cmd.Toggle()
	case ButtonRewind:
		err = s.cmd.Rewind()
	case ButtonSlower:
		err = s.cmd.NudgeTempo(-TempoStep)
	case ButtonFaster:
		err = s.cmd.NudgeTempo(TempoStep)
	case ButtonPagePrev, ButtonPageNext:
		s.mu.Lock()
		if col == ButtonPagePrev {
			s.page--
		} else {
			s.page++
		}
		s.page = clampPage(s.page, snap.Pattern.NumSteps)
		s.mu.Unlock()
	}
	if err != nil {
		debug.Log("surface", "button %d: %v", col, err)
	}
}

// Pages is how many eight-step pages a pattern of numSteps needs.
func Pages(numSteps int) int {
	if numSteps <= 0 {
		return 1
	}
	return (numSteps + Cols - 1) / Cols
}

func clampPage(page, numSteps int) int {
	return max(0, min(page, Pages(numSteps)-1))
}

// Frame is every LED for snap showing page. Pads past the last instrument or
// step are off.
func Frame(snap sequencer.Snapshot, page int, th *theme.Theme) []midi.LEDUpdate {
	page = clampPage(page, snap.Pattern.NumSteps)
	leds := make([]midi.LEDUpdate, 0, Rows*Cols+Cols)

	for row := Rows - 1; row >= 0; row-- {
		inst := Rows - 1 - row
		for col := 0; col < Cols; col++ {
			step := page*Cols + col
			led := midi.LEDUpdate{Row: row, Col: col}
			if inst < len(snap.Pattern.Rows) && step < snap.Pattern.NumSteps {
				active := snap.Pattern.Rows[inst].Steps[step]
				switch {
				case snap.Running() && step == snap.LastStep && active:
					led.Color = th.PadPlayhead()
					led.Channel = midi.ChannelPulse
				case active:
					led.Color = th.PadActive()
				case snap.Running() && step == snap.LastStep:
					led.Color = th.RGB(theme.RoleMuted)
				default:
					led.Color = th.PadEmpty()
				}
			}
			leds = append(leds, led)
		}
	}

	play := th.PadCommand().Scale(0.4)
	if snap.Running() {
		play = theme.RGB{0, 255, 0}
	}
	leds = append(leds,
		midi.LEDUpdate{Row: Rows, Col: ButtonPlay, Color: play},
		midi.LEDUpdate{Row: Rows, Col: ButtonRewind, Color: th.PadCommand()},
		midi.LEDUpdate{Row: Rows, Col: ButtonSlower, Color: th.PadCommand()},
		midi.LEDUpdate{Row: Rows, Col: ButtonFaster, Color: th.PadCommand()},
	)
	if page > 0 {
		leds = append(leds, midi.LEDUpdate{Row: Rows, Col: ButtonPagePrev, Color: th.PadActive()})
	}
	if page < Pages(snap.Pattern.NumSteps)-1 {
		leds = append(leds, midi.LEDUpdate{Row: Rows, Col: ButtonPageNext, Color: th.PadActive()})
	}
	return leds
}

// Preview is the frame the attached controller shows, as rows of colours
// bottom row first. It is nil when no controller is attached.
func (s *Surface) Preview() [][][3]uint8 {
	snap := s.cmd.Observe()
	s.mu.Lock()
	if s.ctrl == nil {
		s.mu.Unlock()
		return nil
	}
	page := s.page
	s.mu.Unlock()

	grid := make([][][3]uint8, Rows+1)
	for i := range grid {
		grid[i] = make([][3]uint8, Cols)
	}
	for _, led := range Frame(snap, page, s.th) {
		grid[led.Row][led.Col] = led.Color
	}
	return grid
}
