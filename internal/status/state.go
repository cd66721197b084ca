package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/tutu/internal/bus"
)

// State is the live connection state of the transport socket.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// validTransitions defines allowed state transitions. Switching tokens while
// connected goes through Disconnected so observers see the forced close.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Disconnected state. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state and returns the change that happened.
// Returns an error and leaves the state untouched if the move is not allowed.
func (m *Machine) Transition(to State) (StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return StatusChange{}, fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	change := StatusChange{From: m.current, To: to}
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.KindSocketState, change))
	}
	return change, nil
}

// StatusChange is the payload for connection state events.
type StatusChange struct {
	From State
	To   State
}
