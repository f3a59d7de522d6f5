package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-drum/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

func (t DeviceEventType) String() string {
	if t == DeviceConnected {
		return "connected"
	}
	return "disconnected"
}

// DeviceManager handles hot-plug detection of grid controllers. Only ports
// accepted by Match are connected.
type DeviceManager struct {
	Match func(portName string) bool

	controllers map[string]Controller
	mu          sync.RWMutex
	events      chan DeviceEvent
	pollRate    time.Duration
}

// NewDeviceManager creates a device manager that picks up Launchpads.
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		Match:       IsLaunchpad,
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		out[k] = v
	}
	return out
}

// Run polls for devices until ctx is done (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	// port listing can hang on CoreMIDI
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	var inPorts []drivers.In
	var outPorts []drivers.Out
	select {
	case result := <-ch:
		inPorts = result.inPorts
		outPorts = result.outPorts
	case <-time.After(3 * time.Second):
		debug.Log("midi", "port scan timed out")
		return
	}

	seen := make(map[string]bool)
	var events []DeviceEvent

	for _, inPort := range inPorts {
		id := inPort.String()
		if !dm.Match(id) {
			continue
		}
		seen[id] = true

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		var outPort drivers.Out
		for _, op := range outPorts {
			if strings.EqualFold(op.String(), id) {
				outPort = op
				break
			}
		}

		lp, err := NewLaunchpadController(id, inPort, outPort)
		if err != nil {
			debug.Log("midi", "connect %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = lp
		dm.mu.Unlock()
		events = append(events, DeviceEvent{Type: DeviceConnected, Controller: lp, ID: id})
	}

	dm.mu.Lock()
	for id, c := range dm.controllers {
		if !seen[id] {
			c.Close()
			delete(dm.controllers, id)
			events = append(events, DeviceEvent{Type: DeviceDisconnected, ID: id})
		}
	}
	dm.mu.Unlock()

	for _, ev := range events {
		debug.Log("midi", "%s %s", ev.ID, ev.Type)
		dm.events <- ev
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
}

// IsLaunchpad reports whether a port name looks like a Launchpad's MIDI port.
func IsLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}
