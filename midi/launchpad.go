package midi

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go-drum/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Launchpad X SysEx bodies (F0 and F7 are added by gomidi.SysEx)
var (
	sysexProgrammerMode = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}
	sysexBrightnessMax  = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}
	sysexLEDFeedback    = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}
)

// LaunchpadController handles a Novation Launchpad X in programmer mode
type LaunchpadController struct {
	id       string
	send     Sender
	stopFunc func()
	sent     uint64

	closeOnce sync.Once
	padChan   chan PadEvent
}

// NewLaunchpadController opens the ports and switches the pad to programmer
// mode. Either port may be nil.
func NewLaunchpadController(id string, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	var send Sender
	if outPort != nil {
		s, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		send = Sender(s)
	}
	lp := newLaunchpad(id, send)

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			lp.handle(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		lp.stopFunc = stop
	}
	return lp, nil
}

func newLaunchpad(id string, send Sender) *LaunchpadController {
	lp := &LaunchpadController{
		id:      id,
		send:    send,
		padChan: make(chan PadEvent, 32),
	}
	if send != nil {
		send(gomidi.SysEx(sysexProgrammerMode))
		send(gomidi.SysEx(sysexBrightnessMax))
		send(gomidi.SysEx(sysexLEDFeedback))
	}
	return lp
}

// handle turns grid notes and top-row CCs into pad events. Releases are
// ignored.
func (lp *LaunchpadController) handle(msg gomidi.Message) {
	var channel, note, velocity uint8
	var cc, value uint8

	row, col := -1, -1
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
		row, col = noteToRowCol(note)
	case msg.GetControlChange(&channel, &cc, &value) && value > 0:
		row, col = ccToRowCol(cc)
		velocity = value
	}
	if row < 0 {
		return
	}
	select {
	case lp.padChan <- PadEvent{Row: row, Col: col, Velocity: velocity}:
	default:
		debug.Log("launchpad", "pad event dropped (%d,%d)", row, col)
	}
}

func (lp *LaunchpadController) ID() string {
	return lp.id
}

func (lp *LaunchpadController) PadEvents() <-chan PadEvent {
	return lp.padChan
}

// SetLEDBatch sends one NoteOn per update, colour mapped to the nearest
// palette entry.
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if lp.send == nil || len(updates) == 0 {
		return nil
	}

	for _, u := range updates {
		note := rowColToNote(u.Row, u.Col)
		color := mapRGBToLaunchpad(u.Color)
		if err := lp.send(gomidi.NoteOn(u.Channel, note, color)); err != nil {
			return err
		}
	}

	count := atomic.AddUint64(&lp.sent, uint64(len(updates)))
	if count%100 < uint64(len(updates)) {
		debug.Log("launchpad", "sent=%d (this batch=%d)", count, len(updates))
	}
	return nil
}

// ClearLEDs turns every pad off.
func (lp *LaunchpadController) ClearLEDs() error {
	var updates []LEDUpdate
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if row == 8 && col == 8 {
				continue // no LED at 8,8
			}
			updates = append(updates, LEDUpdate{Row: row, Col: col})
		}
	}
	return lp.SetLEDBatch(updates)
}

func (lp *LaunchpadController) Close() error {
	lp.closeOnce.Do(func() {
		lp.ClearLEDs()
		if lp.stopFunc != nil {
			lp.stopFunc()
		}
		close(lp.padChan)
	})
	return nil
}

// mapRGBToLaunchpad finds the nearest Launchpad X palette color for an RGB value
func mapRGBToLaunchpad(rgb [3]uint8) uint8 {
	// {velocity, R, G, B}
	palette := [][4]uint8{
		{0, 0, 0, 0},         // off
		{5, 255, 0, 0},       // red
		{6, 255, 80, 80},     // bright red
		{7, 180, 60, 60},     // dim red
		{9, 255, 100, 0},     // orange
		{11, 180, 80, 40},    // dim orange
		{13, 255, 200, 0},    // yellow
		{17, 0, 180, 0},      // green
		{19, 0, 100, 0},      // dim green
		{21, 0, 255, 0},      // bright green
		{37, 0, 200, 200},    // cyan
		{43, 40, 60, 120},    // dim blue
		{45, 0, 100, 255},    // blue
		{47, 80, 150, 255},   // bright blue
		{49, 150, 0, 200},    // purple
		{53, 255, 80, 180},   // pink
		{78, 100, 100, 255},  // light blue
		{84, 255, 150, 50},   // bright orange
		{87, 150, 255, 100},  // lime
		{97, 180, 180, 60},   // dim yellow
		{119, 255, 255, 255}, // white
	}

	bestMatch := uint8(0)
	bestDist := 1 << 30

	r, g, b := int(rgb[0]), int(rgb[1]), int(rgb[2])
	for _, p := range palette {
		pr, pg, pb := int(p[1]), int(p[2]), int(p[3])
		dist := (r-pr)*(r-pr) + (g-pg)*(g-pg) + (b-pb)*(b-pb)
		if dist < bestDist {
			bestDist = dist
			bestMatch = p[0]
		}
	}
	return bestMatch
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, ..., 89
// Top row:   Row 8 = CC 91-98 in, notes 91-98 for LEDs

func rowColToNote(row, col int) uint8 {
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}
