package midi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go-drum/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrPortNotFound is returned when no output port has the requested name.
var ErrPortNotFound = errors.New("midi port not found")

// Sender writes one message to an open port.
type Sender func(gomidi.Message) error

// Opener opens an output port by name.
type Opener func(name string) (Sender, error)

// OpenPort opens a system output port by exact name, or the first port whose
// name contains it.
func OpenPort(name string) (Sender, error) {
	ports := gomidi.GetOutPorts()
	for _, port := range ports {
		if port.String() == name {
			return sendTo(port)
		}
	}
	for _, port := range ports {
		if name != "" && containsFold(port.String(), name) {
			return sendTo(port)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
}

func sendTo(port drivers.Out) (Sender, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, err
	}
	return Sender(send), nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// OutPorts lists the names of the system output ports.
func OutPorts() []string {
	var names []string
	for _, port := range gomidi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// Output hands out senders for named ports, opening each port once on first
// use.
type Output struct {
	open    Opener
	senders map[string]Sender
	mu      sync.RWMutex
}

// NewOutput returns an Output backed by open; nil means system ports.
func NewOutput(open Opener) *Output {
	if open == nil {
		open = OpenPort
	}
	return &Output{
		open:    open,
		senders: make(map[string]Sender),
	}
}

// Sender returns a sender for the given port name, lazily opening it
func (o *Output) Sender(portName string) (Sender, error) {
	o.mu.RLock()
	if sender, ok := o.senders[portName]; ok {
		o.mu.RUnlock()
		return sender, nil
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Double-check after acquiring write lock
	if sender, ok := o.senders[portName]; ok {
		return sender, nil
	}

	sender, err := o.open(portName)
	if err != nil {
		debug.Log("midi", "open %q: %v", portName, err)
		return nil, err
	}
	o.senders[portName] = sender
	debug.Log("midi", "opened %q", portName)
	return sender, nil
}

// Forget drops a cached sender so the next use reopens the port.
func (o *Output) Forget(portName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.senders, portName)
}
