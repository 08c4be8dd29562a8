package state

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a Chaos node: Joining, Member, Leaving,
// Forwarding, or Shutdown
type State uint32

const (
	// Joining is the state of a node that does not hold a membership index and
	// requests one in every round until the initiator admits it.
	Joining State = iota

	// Member is the state of a node that holds an index, sets its flag and
	// contributes its proposals to the agreed value.
	Member

	// Leaving is the state of a member that has requested to leave and waits
	// for a committed round to release its index.
	Leaving

	// Forwarding is the state of a node without an index that does not want
	// one. It keeps relaying packets but has no say in the agreed value.
	Forwarding

	// Shutdown is the state in which a node no longer takes part in rounds and
	// has released its radio.
	Shutdown
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Joining:
		return "Joining"
	case Member:
		return "Member"
	case Leaving:
		return "Leaving"
	case Forwarding:
		return "Forwarding"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// MaxRoutines bounds the goroutines a Manager runs at once.
const MaxRoutines = 20

// Manager holds a node State that can be read while a round is running, and
// tracks the goroutines started on behalf of the node.
type Manager struct {
	state    atomic.Uint32
	routines sync.WaitGroup
	running  atomic.Int32
}

// GetState returns the current state.
func (m *Manager) GetState() State {
	return State(m.state.Load())
}

// SetState sets the state.
func (m *Manager) SetState(s State) {
	m.state.Store(uint32(s))
}

// GoFunc runs f in a new goroutine unless MaxRoutines are already running, in
// which case it returns false and f is not called.
func (m *Manager) GoFunc(f func()) bool {
	if m.running.Add(1) > MaxRoutines {
		m.running.Add(-1)
		return false
	}
	m.routines.Add(1)
	go func() {
		defer m.routines.Done()
		defer m.running.Add(-1)
		f()
	}()
	return true
}

// WaitRoutines blocks until every goroutine started by GoFunc has returned.
func (m *Manager) WaitRoutines() {
	m.routines.Wait()
}
