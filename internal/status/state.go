package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pawprox/pawchat/internal/bus"
)

// State is the chat session's peer-selection state.
type State string

const (
	Idle    State = "IDLE"
	Joining State = "JOINING"
	Active  State = "ACTIVE"
)

// validTransitions defines allowed state transitions. Joining→Joining is a peer
// switch while the previous join is still in flight.
var validTransitions = map[State][]State{
	Idle:    {Joining},
	Joining: {Joining, Active, Idle},
	Active:  {Joining, Idle},
}

// Machine tracks the session state together with the peer it refers to.
type Machine struct {
	mu      sync.RWMutex
	current State
	peer    int64
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Peer returns the peer the current state refers to; zero when Idle.
func (m *Machine) Peer() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peer
}

// Transition moves to state to for peer. Idle always clears the peer.
func (m *Machine) Transition(to State, peer int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	if to == Idle {
		peer = 0
	}
	change := StatusChange{From: m.current, To: to, Peer: peer}
	m.current = to
	m.peer = peer
	m.bus.Emit(bus.KindStatusChanged, change)
	return nil
}

// Reset forces the machine back to Idle from any state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Idle {
		return
	}
	change := StatusChange{From: m.current, To: Idle}
	m.current = Idle
	m.peer = 0
	m.bus.Emit(bus.KindStatusChanged, change)
}

// StatusChange is the payload of session.status_changed events.
type StatusChange struct {
	From State
	To   State
	Peer int64
}
