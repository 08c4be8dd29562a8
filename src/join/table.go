package join

import (
	"fmt"
	"sort"

	"github.com/mosaicnetworks/chaos/src/bitset"
	"github.com/mosaicnetworks/chaos/src/common"
)

// Member is a live member of the swarm.
type Member struct {
	ID    NodeID
	Index Index
}

// Table is the initiator's authoritative identity/index mapping.
//
// joined maps an index to the identity holding it (0 when free). entries holds
// one (id, index) pair per live member; its first sorted entries are ordered by
// identity so that lookups can use a binary search, and members admitted since
// the last Reset are appended after them. The free stack is rebuilt by Reset
// and pops the lowest free index first.
type Table struct {
	joined  []NodeID
	entries []Member
	sorted  int
	free    []Index
}

// NewTable creates a table of the given capacity holding the initiator at
// index 0.
func NewTable(capacity int, initiator NodeID) *Table {
	t := &Table{
		joined:  make([]NodeID, capacity),
		entries: make([]Member, 0, capacity),
	}
	t.joined[0] = initiator
	t.entries = append(t.entries, Member{ID: initiator, Index: 0})
	t.Reset()
	return t
}

// Capacity returns the maximum number of members.
func (t *Table) Capacity() int {
	return len(t.joined)
}

// Count returns the number of live members.
func (t *Table) Count() int {
	return len(t.entries)
}

// Sorted returns the length of the sorted prefix of the identity map.
func (t *Table) Sorted() int {
	return t.sorted
}

// AddNode admits id and returns its index. The identity map is searched over
// its first searchLen sorted entries; an identity found there keeps its index
// unless fresh is set, in which case a new index is handed out and the old one
// is left for the caller to evict.
func (t *Table) AddNode(id NodeID, searchLen int, fresh bool) (Index, error) {
	if searchLen > t.sorted {
		searchLen = t.sorted
	}
	if idx, ok := t.search(id, searchLen); ok && !fresh {
		return idx, nil
	}

	if len(t.free) == 0 {
		return 0, common.NewChaosErr("join", common.MembershipOverflow,
			fmt.Sprintf("no free index for node %d", id))
	}

	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.joined[idx] = id
	t.entries = append(t.entries, Member{ID: id, Index: idx})

	return idx, nil
}

// Remove frees index idx. It returns false if idx was not in use.
func (t *Table) Remove(idx Index) bool {
	if int(idx) >= len(t.joined) || t.joined[idx] == 0 {
		return false
	}
	t.joined[idx] = 0
	for i, e := range t.entries {
		if e.Index == idx {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			if i < t.sorted {
				t.sorted--
			}
			break
		}
	}
	return true
}

// IndexOf returns the index held by id.
func (t *Table) IndexOf(id NodeID) (Index, bool) {
	if idx, ok := t.search(id, t.sorted); ok {
		return idx, true
	}
	for _, e := range t.entries[t.sorted:] {
		if e.ID == id {
			return e.Index, true
		}
	}
	return 0, false
}

// NodeAt returns the identity holding index idx, or 0.
func (t *Table) NodeAt(idx Index) NodeID {
	if int(idx) >= len(t.joined) {
		return 0
	}
	return t.joined[idx]
}

// Reset re-sorts the identity map and rebuilds the free stack. It is run by
// the initiator at the end of every round.
func (t *Table) Reset() {
	t.entries = t.entries[:0]
	for i, id := range t.joined {
		if id != 0 {
			t.entries = append(t.entries, Member{ID: id, Index: Index(i)})
		}
	}
	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].ID < t.entries[j].ID
	})
	t.sorted = len(t.entries)

	// index 0 belongs to the initiator and is never handed out
	t.free = t.free[:0]
	for i := len(t.joined) - 1; i > 0; i-- {
		if t.joined[i] == 0 {
			t.free = append(t.free, Index(i))
		}
	}
}

// Members returns the live members ordered by index.
func (t *Table) Members() []Member {
	res := make([]Member, 0, len(t.entries))
	for i, id := range t.joined {
		if id != 0 {
			res = append(res, Member{ID: id, Index: Index(i)})
		}
	}
	return res
}

// Mask returns the set of indices in use.
func (t *Table) Mask() *bitset.Set {
	m := bitset.New(len(t.joined))
	for i, id := range t.joined {
		if id != 0 {
			m.Set(i)
		}
	}
	return m
}

func (t *Table) search(id NodeID, n int) (Index, bool) {
	i := sort.Search(n, func(i int) bool {
		return t.entries[i].ID >= id
	})
	if i < n && t.entries[i].ID == id {
		return t.entries[i].Index, true
	}
	return 0, false
}
