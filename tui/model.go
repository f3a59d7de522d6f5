package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-drum/midi"
	"go-drum/sequencer"
	"go-drum/surface"
	"go-drum/theme"
	"go-drum/widgets"
)

// TempoStep is how far +/- move the tempo.
const TempoStep = 5

type Model struct {
	Transport *sequencer.Transport
	DeviceMgr *midi.DeviceManager // may be nil
	Surface   *surface.Surface    // may be nil
	Theme     *theme.Theme
	Project   string // save target for "s"

	row, col int
	status   string
	quitting bool
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

func NewModel(tr *sequencer.Transport, deviceMgr *midi.DeviceManager, surf *surface.Surface, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	return Model{
		Transport: tr,
		DeviceMgr: deviceMgr,
		Surface:   surf,
		Theme:     th,
		Project:   "default",
	}
}

func ListenForUpdates(tr *sequencer.Transport) tea.Cmd {
	return func() tea.Msg {
		<-tr.Updates()
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Transport)}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		m.clampCursor()
		return m, ListenForUpdates(m.Transport)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		if m.Surface != nil {
			switch {
			case event.Type == midi.DeviceConnected:
				m.Surface.Attach(event.Controller)
				m.status = "connected " + event.ID
			case m.Surface.Controller() != nil && m.Surface.Controller().ID() == event.ID:
				m.Surface.Attach(nil)
				m.status = "disconnected " + event.ID
			}
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	tr := m.Transport
	snap := tr.Observe()
	var err error

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		tr.Stop()
		return m, tea.Quit

	case "p":
		err = tr.Toggle()

	case "+", "=":
		err = tr.NudgeTempo(TempoStep)

	case "-", "_":
		err = tr.NudgeTempo(-TempoStep)

	case "r":
		err = tr.Rewind()

	case "s":
		var path string
		path, err = sequencer.SaveProject(m.Project, "", "json", tr)
		if err == nil {
			m.status = "saved " + path
		}

	case "h", "left":
		if m.col > 0 {
			m.col--
		}

	case "l", "right":
		if m.col < snap.Pattern.NumSteps-1 {
			m.col++
		}

	case "k", "up":
		if m.row > 0 {
			m.row--
		}

	case "j", "down":
		if m.row < len(snap.Pattern.Rows)-1 {
			m.row++
		}

	case " ", "space":
		if m.row < len(snap.Pattern.Rows) {
			_, err = tr.ToggleStep(snap.Pattern.Rows[m.row].Instrument, m.col)
		}
	}

	if err != nil {
		m.status = err.Error()
	}
	return m, nil
}

// clampCursor keeps the cursor inside a pattern that may have been replaced.
func (m *Model) clampCursor() {
	p := m.Transport.Observe().Pattern
	m.row = max(0, min(m.row, len(p.Rows)-1))
	m.col = max(0, min(m.col, p.NumSteps-1))
}

// Cursor returns the selected instrument row and step.
func (m Model) Cursor() (row, col int) {
	return m.row, m.col
}

// Status is the last message shown under the grid.
func (m Model) Status() string {
	return m.status
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.Transport.Observe()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	if snap.Running() {
		playState = "PLAY"
	}
	step := "--"
	if snap.LastStep >= 0 {
		step = fmt.Sprintf("%02d", snap.LastStep+1)
	}
	deviceStatus := ""
	if m.Surface != nil && m.Surface.Controller() != nil {
		deviceStatus = "  LP"
	}
	header := headerStyle.Render(fmt.Sprintf("go-drum  %s  %3.0fbpm  %s  step:%s/%02d%s",
		playState, snap.TempoBPM, snap.Subdivision, step, snap.Pattern.NumSteps, deviceStatus))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.grid(snap).View())
	out.WriteString("\n")

	if m.Surface != nil {
		if preview := m.Surface.Preview(); preview != nil {
			out.WriteString("\n")
			out.WriteString(widgets.RenderPadGrid(preview))
			out.WriteString("\n")
			out.WriteString(widgets.RenderLegendItem(m.Theme.PadActive(), "Steps", "tap to toggle") + "\n")
			out.WriteString(widgets.RenderLegendItem(m.Theme.PadCommand(), "Top row", "play, rewind, slower, faster, pages") + "\n")
		}
	}

	if snap.Err != nil {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render("halted: " + snap.Err.Error()))
	} else if snap.LastPlaybackError != nil {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(fmt.Sprintf("%d playback errors, last: %v", snap.PlaybackErrors, snap.LastPlaybackError)))
	}
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render(m.status))
	}

	out.WriteString("\n\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{
		{Keys: []widgets.KeyBinding{
			{Key: "hjkl", Desc: "move"},
			{Key: "space", Desc: "toggle step"},
			{Key: "p", Desc: "play/stop"},
			{Key: "+/-", Desc: "tempo"},
			{Key: "r", Desc: "rewind"},
			{Key: "s", Desc: "save"},
			{Key: "q", Desc: "quit"},
		}},
	})))

	return out.String()
}

func (m Model) grid(snap sequencer.Snapshot) widgets.StepGrid {
	sym := m.Theme.Symbols
	empty := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	active := lipgloss.NewStyle().Foreground(m.Theme.Active())
	cursor := lipgloss.NewStyle().Foreground(m.Theme.Cursor())
	playhead := lipgloss.NewStyle().Foreground(m.Theme.Success())

	g := widgets.StepGrid{
		Label:    lipgloss.NewStyle().Foreground(m.Theme.FG()),
		Selected: lipgloss.NewStyle().Foreground(m.Theme.Cursor()).Bold(true),
		Ruler:    empty,
	}
	for r, row := range snap.Pattern.Rows {
		gr := widgets.GridRow{Label: row.Instrument, Selected: r == m.row}
		for s, on := range row.Steps {
			isCursor := r == m.row && s == m.col
			isPlayhead := snap.Running() && s == snap.LastStep
			style := empty
			switch {
			case isCursor:
				style = cursor
			case isPlayhead:
				style = playhead
			case on:
				style = active
			}
			gr.Cells = append(gr.Cells, widgets.Cell{Symbol: sym.Cell(on, isPlayhead, isCursor), Style: style})
		}
		g.Rows = append(g.Rows, gr)
	}
	return g
}
