package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
)

// State represents the provider connection state of a session.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Degraded     State = "DEGRADED"
	Stopped      State = "STOPPED"
	Error        State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Stopped, Error},
	AuthRequired: {Connecting, Stopped, Error},
	Connecting:   {Syncing, AuthRequired, Reconnecting, Stopped, Error},
	Syncing:      {Ready, Reconnecting, Degraded, Stopped, Error},
	Ready:        {Reconnecting, Degraded, AuthRequired, Stopped, Error},
	Reconnecting: {Connecting, Degraded, Stopped, Error},
	Degraded:     {Connecting, Reconnecting, Ready, Stopped, Error},
	Stopped:      {Booting},
	Error:        {Booting},
}

// Change is the payload of session.status_changed events.
type Change struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Snapshot is a point-in-time view of the machine.
type Snapshot struct {
	State State
	Since time.Time
}

// Machine tracks and enforces provider connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current state and when it was entered.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.current, Since: m.since}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.KindStatusChanged, Change{From: from, To: to})
	return nil
}

// Walk applies each transition in order, skipping states the machine is
// already in. It stops at the first invalid step.
func (m *Machine) Walk(path ...State) error {
	for _, s := range path {
		if m.Current() == s {
			continue
		}
		if err := m.Transition(s); err != nil {
			return err
		}
	}
	return nil
}

// IsReady reports whether the machine is in the Ready state.
func (m *Machine) IsReady() bool {
	return m.Current() == Ready
}
