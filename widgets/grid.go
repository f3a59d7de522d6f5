package widgets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one step of a grid row.
type Cell struct {
	Symbol rune
	Style  lipgloss.Style
}

// GridRow is one instrument's line in a step grid.
type GridRow struct {
	Label    string
	Selected bool
	Cells    []Cell
}

// StepGrid renders instrument rows against a step ruler. Steps are grouped
// in fours, one beat of sixteenths.
type StepGrid struct {
	Rows     []GridRow
	Group    int
	Label    lipgloss.Style
	Selected lipgloss.Style
	Ruler    lipgloss.Style
}

func (g StepGrid) group() int {
	if g.Group <= 0 {
		return 4
	}
	return g.Group
}

// View renders the grid, a ruler line first.
func (g StepGrid) View() string {
	width := 0
	steps := 0
	for _, r := range g.Rows {
		width = max(width, lipgloss.Width(r.Label))
		steps = max(steps, len(r.Cells))
	}

	var out strings.Builder
	out.WriteString(strings.Repeat(" ", width+1))
	var ruler strings.Builder
	for s := 0; s < steps; {
		if s > 0 && s%g.group() == 0 {
			ruler.WriteString(" ")
		}
		if s%g.group() == 0 {
			n := strconv.Itoa(s/g.group() + 1)
			ruler.WriteString(n)
			s += len(n)
			continue
		}
		ruler.WriteString(" ")
		s++
	}
	out.WriteString(g.Ruler.Render(ruler.String()))

	for _, r := range g.Rows {
		out.WriteString("\n")
		label := fmt.Sprintf("%-*s ", width, r.Label)
		if r.Selected {
			out.WriteString(g.Selected.Render(label))
		} else {
			out.WriteString(g.Label.Render(label))
		}
		for s, c := range r.Cells {
			if s > 0 && s%g.group() == 0 {
				out.WriteString(" ")
			}
			out.WriteString(c.Style.Render(string(c.Symbol)))
		}
	}
	return out.String()
}
