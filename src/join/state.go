package join

import (
	"github.com/mosaicnetworks/chaos/src/bitset"
)

// Wanted is the membership a node asks for in its next rounds.
type Wanted uint8

const (
	// Stay keeps the current membership.
	Stay Wanted = iota
	// Join requests an index.
	Join
	// Leave requests the eviction of the node's index.
	Leave
)

// String ...
func (w Wanted) String() string {
	switch w {
	case Stay:
		return "Stay"
	case Join:
		return "Join"
	case Leave:
		return "Leave"
	default:
		return "Unknown"
	}
}

// State is the membership state of one node. The initiator additionally owns
// the member table. A State is only touched by the goroutine running the
// node's rounds.
type State struct {
	id        NodeID
	initiator bool
	capacity  int

	hasIndex  bool
	index     Index
	nodeCount uint8
	config    uint16

	wanted       Wanted
	rejoinNeeded bool

	table *Table
}

// NewState creates the state of a node that does not hold an index yet.
func NewState(id NodeID, capacity int) *State {
	return &State{
		id:       id,
		capacity: capacity,
		wanted:   Join,
	}
}

// NewInitiatorState creates the state of the round coordinator, which holds
// index 0 from the start.
func NewInitiatorState(id NodeID, capacity int) *State {
	return &State{
		id:        id,
		initiator: true,
		capacity:  capacity,
		hasIndex:  true,
		index:     0,
		nodeCount: 1,
		wanted:    Stay,
		table:     NewTable(capacity, id),
	}
}

// ID ...
func (s *State) ID() NodeID {
	return s.id
}

// IsInitiator ...
func (s *State) IsInitiator() bool {
	return s.initiator
}

// Capacity returns the maximum number of members.
func (s *State) Capacity() int {
	return s.capacity
}

// Index returns the node's compact index and whether it holds one.
func (s *State) Index() (Index, bool) {
	return s.index, s.hasIndex
}

// HasIndex ...
func (s *State) HasIndex() bool {
	return s.hasIndex
}

// Assign gives the node index idx.
func (s *State) Assign(idx Index) {
	s.index = idx
	s.hasIndex = true
	s.rejoinNeeded = false
}

// DropIndex turns the node into a forwarder.
func (s *State) DropIndex() {
	s.index = 0
	s.hasIndex = false
}

// NodeCount returns the number of live members as last known by this node.
func (s *State) NodeCount() uint8 {
	return s.nodeCount
}

// SetNodeCount ...
func (s *State) SetNodeCount(c uint8) {
	s.nodeCount = c
}

// Wanted ...
func (s *State) Wanted() Wanted {
	return s.wanted
}

// SetWanted ...
func (s *State) SetWanted(w Wanted) {
	s.wanted = w
}

// RejoinNeeded reports that the node lost its index after a config mismatch.
func (s *State) RejoinNeeded() bool {
	return s.rejoinNeeded
}

// WantsToJoin reports whether the node should put itself on the join list.
func (s *State) WantsToJoin() bool {
	return !s.initiator && !s.hasIndex && (s.rejoinNeeded || s.wanted == Join)
}

// WantsToLeave reports whether the node should raise its leave bit.
func (s *State) WantsToLeave() bool {
	return !s.initiator && s.hasIndex && s.wanted == Leave
}

// Config returns the join configuration counter.
func (s *State) Config() uint16 {
	return s.config
}

// SetConfig ...
func (s *State) SetConfig(c uint16) {
	s.config = c
}

// IncreaseConfig is called once per round that ended in the COMMIT phase.
func (s *State) IncreaseConfig() {
	s.config++
}

// CheckConfig reports whether other matches the local configuration.
func (s *State) CheckConfig(other uint16) bool {
	return s.config == other
}

// Demote drops the node's index after a config mismatch. The node keeps
// forwarding and asks to join again, even if it wanted to leave.
func (s *State) Demote() {
	s.DropIndex()
	s.rejoinNeeded = true
}

// Table returns the member table. It is nil on non-initiators.
func (s *State) Table() *Table {
	return s.table
}

// JoinMask returns the set of indices in use according to the member table.
func (s *State) JoinMask() *bitset.Set {
	if s.table == nil {
		return bitset.New(s.capacity)
	}
	return s.table.Mask()
}

// RejoinCandidate returns the first identity on the join list that already
// holds an index in the member table, so that the index can be handed back
// before the commit.
func (s *State) RejoinCandidate(d *Data) (NodeID, Index, bool) {
	if s.table == nil {
		return 0, 0, false
	}
	for _, id := range d.Pending() {
		if id == 0 {
			continue
		}
		if idx, ok := s.table.IndexOf(id); ok {
			return id, idx, true
		}
	}
	return 0, 0, false
}

// EndRound re-sorts the member table and rebuilds its free stack.
func (s *State) EndRound() {
	if s.table != nil {
		s.table.Reset()
	}
}

// CommitResult lists the membership changes of a commit step.
type CommitResult struct {
	Admitted   []Member
	Evicted    []Member
	Overflowed []NodeID
}

// Commit runs the initiator's MERGE to COMMIT membership step on the join
// record d and the leave bits. Pending joins are admitted first, then every
// member whose leave bit is set is evicted. An admitted index never carries a
// leave bit. A member that leaves and asks to join in the same step gets a
// new index. Joins that do not fit are dropped from d and flagged as overflow.
func (s *State) Commit(d *Data, leaves *bitset.Set) CommitResult {
	res := CommitResult{}
	if s.table == nil {
		return res
	}

	before := s.table.Count()
	for i := 0; i < int(d.SlotCount); i++ {
		id := d.Slots[i]
		if id == 0 {
			continue
		}

		old, known := s.table.search(id, s.table.sorted)
		fresh := known && leaves.Test(int(old))

		idx, err := s.table.AddNode(id, before, fresh)
		if err != nil {
			d.Overflow = true
			d.Slots[i] = 0
			res.Overflowed = append(res.Overflowed, id)
			continue
		}
		d.Indices[i] = idx
		leaves.Clear(int(idx))
		if !known || fresh {
			res.Admitted = append(res.Admitted, Member{ID: id, Index: idx})
		}
	}

	d.RejoinSlot = 0
	d.RejoinIndex = 0

	for i := 0; i < s.table.Capacity(); i++ {
		id := s.table.joined[i]
		if id != 0 && leaves.Test(i) {
			s.table.Remove(Index(i))
			res.Evicted = append(res.Evicted, Member{ID: id, Index: Index(i)})
		}
	}

	s.nodeCount = uint8(s.table.Count())
	d.NodeCount = s.nodeCount
	d.Commit = 1

	return res
}
