package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	qt "github.com/frankban/quicktest"

	"go-drum/bank"
	"go-drum/clock"
	"go-drum/pattern"
	"go-drum/sequencer"
)

// idleClock accepts registrations and never ticks.
type idleClock struct{}

func (idleClock) Start(float64, clock.Subdivision, func(clock.Tick) error, func(error)) error {
	return nil
}

func (idleClock) Stop() {}

func (idleClock) SetTempo(float64) error { return nil }

func newModel(c *qt.C) Model {
	p, _, err := pattern.Preset(pattern.DefaultPreset)
	c.Assert(err, qt.IsNil)
	store, err := pattern.FromPattern(p)
	c.Assert(err, qt.IsNil)
	tr, err := sequencer.New(idleClock{}, store, bank.NewLog(), sequencer.Options{})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { tr.Close() })
	return NewModel(tr, nil, nil, nil)
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestCursorStaysInsideGrid(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	m = press(m, "h", "k")
	row, col := m.Cursor()
	c.Assert([2]int{row, col}, qt.Equals, [2]int{0, 0})

	m = press(m, "l", "l", "l", "l", "l", "l", "l", "l", "l", "l", "j", "j", "j", "j")
	row, col = m.Cursor()
	c.Assert([2]int{row, col}, qt.Equals, [2]int{2, 7})
}

func TestSpaceTogglesStepUnderCursor(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	m = press(m, "j", "l", " ")
	snare, _ := m.Transport.Observe().Pattern.Row(pattern.Snare)
	c.Assert(snare[1], qt.IsTrue)

	m = press(m, " ")
	snare, _ = m.Transport.Observe().Pattern.Row(pattern.Snare)
	c.Assert(snare[1], qt.IsFalse)
}

func TestTransportKeys(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	tr := m.Transport

	m = press(m, "p")
	c.Assert(tr.Observe().Running(), qt.IsTrue)
	m = press(m, "p")
	c.Assert(tr.Observe().Running(), qt.IsFalse)

	m = press(m, "+", "+", "-")
	c.Assert(tr.Observe().TempoBPM, qt.Equals, 125.0)

	// already at the top of the range
	c.Assert(tr.SetTempo(200), qt.IsNil)
	m = press(m, "+")
	c.Assert(tr.Observe().TempoBPM, qt.Equals, 200.0)
	c.Assert(m.Status(), qt.Equals, "")

	m = press(m, "r")
	c.Assert(tr.Observe().CurrentStep, qt.Equals, 0)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	c.Assert(cmd, qt.Not(qt.IsNil))
	c.Assert(next.View(), qt.Equals, "")
}

func TestSaveKey(t *testing.T) {
	c := qt.New(t)
	c.Setenv("HOME", c.TempDir())
	m := newModel(c)
	m.Project = "demo"
	m = press(m, "s")
	c.Assert(m.Status(), qt.Matches, `saved .*/projects/demo/.*\.json`)

	rec, err := sequencer.LoadProject("demo", "")
	c.Assert(err, qt.IsNil)
	c.Assert(rec.TempoBPM, qt.Equals, 120.0)
}

func TestView(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	view := m.View()
	c.Assert(view, qt.Contains, "go-drum  STOP  120bpm  1/16  step:--/08")
	for _, id := range []string{"kick", "snare", "hiHat"} {
		c.Assert(view, qt.Contains, id)
	}
	c.Assert(strings.Count(view, "●")+strings.Count(view, "◉"), qt.Equals, 8)
	c.Assert(view, qt.Contains, "toggle step")
}

func TestUpdateMsgRelistens(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	_, cmd := m.Update(UpdateMsg{})
	c.Assert(cmd, qt.Not(qt.IsNil))
	c.Assert(m.Init(), qt.Not(qt.IsNil))
}

func TestRewindKeyWhilePlaying(t *testing.T) {
	c := qt.New(t)
	m := newModel(c)
	m = press(m, "p", "r")
	c.Assert(m.Status(), qt.Equals, "transport running")
	c.Assert(m.Transport.Observe().Running(), qt.IsTrue)

	m = press(m, "p", "r")
	c.Assert(m.Transport.Observe().CurrentStep, qt.Equals, 0)
}
