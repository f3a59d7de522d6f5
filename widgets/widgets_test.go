package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	qt "github.com/frankban/quicktest"
)

func row(label string, pattern string) GridRow {
	r := GridRow{Label: label}
	for _, ch := range pattern {
		r.Cells = append(r.Cells, Cell{Symbol: ch, Style: lipgloss.NewStyle()})
	}
	return r
}

func TestStepGridView(t *testing.T) {
	c := qt.New(t)
	g := StepGrid{Rows: []GridRow{
		row("kick", "●···●···"),
		row("snare", "··●···●·"),
	}}
	lines := strings.Split(g.View(), "\n")
	c.Assert(lines, qt.HasLen, 3)
	c.Assert(lines[0], qt.Contains, "1")
	c.Assert(lines[0], qt.Contains, "2")
	c.Assert(lines[1], qt.Contains, "kick")
	c.Assert(lines[1], qt.Contains, "●··· ●···")
	c.Assert(lines[2], qt.Contains, "··●· ··●·")
}

func TestStepGridGroup(t *testing.T) {
	c := qt.New(t)
	g := StepGrid{Group: 3, Rows: []GridRow{row("hh", "●●●●●●")}}
	c.Assert(g.View(), qt.Contains, "●●● ●●●")
}

func TestRenderKeyHelp(t *testing.T) {
	c := qt.New(t)
	got := RenderKeyHelp([]KeySection{
		{Title: "Transport", Keys: []KeyBinding{{Key: "p", Desc: "play/stop"}}},
		{Keys: []KeyBinding{{Key: "q", Desc: "quit"}}},
	})
	c.Assert(got, qt.Equals, "Transport\n  p            play/stop\n  q            quit")
}

func TestRenderPadGridTopRowFirst(t *testing.T) {
	c := qt.New(t)
	grid := [][][3]uint8{
		{{0, 0, 0}, {0, 0, 0}},
		{{255, 0, 0}},
	}
	lines := strings.Split(RenderPadGrid(grid), "\n")
	c.Assert(lines, qt.HasLen, 2)
	c.Assert(strings.Count(lines[0], "■"), qt.Equals, 1)
	c.Assert(strings.Count(lines[1], "■"), qt.Equals, 2)
	c.Assert(rgbToHex([3]uint8{255, 0, 16}), qt.Equals, "#ff0010")
}
