// Package join implements the membership layer of the merge-commit protocol:
// the join-delta record carried in every packet, the initiator's member table,
// and the per-node swarm state that tracks a node's compact index.
package join

import (
	"encoding/binary"
	"fmt"

	"github.com/mosaicnetworks/chaos/src/common"
)

// NodeID is the permanent identity of a node. 0 means no node.
type NodeID uint16

// Index is the compact, round-scoped index of a live member.
type Index uint8

const (
	// DefaultNodeListLen is the default number of join requests a single round
	// can carry.
	DefaultNodeListLen = 10
	// MaxNodeListLen is bounded by the 5 bit slot counter of the commit byte.
	MaxNodeListLen = 31
)

// Data is the join-delta record. Its encoding is packed little-endian:
//
//	config      uint16
//	node_count  uint8
//	commit byte slot_count:5 | overflow:1 | commit:2 (LSB first)
//	slots       [L]uint16
//	indices     [L]uint8
//	rejoin slot uint16
//	rejoin idx  uint8
type Data struct {
	Config    uint16
	NodeCount uint8
	SlotCount uint8
	Overflow  bool
	Commit    uint8

	Slots   []NodeID
	Indices []Index

	RejoinSlot  NodeID
	RejoinIndex Index
}

// NewData returns an empty record with room for listLen join requests.
func NewData(listLen int) *Data {
	return &Data{
		Slots:   make([]NodeID, listLen),
		Indices: make([]Index, listLen),
	}
}

// DataSize returns the encoded size of a record with listLen slots.
func DataSize(listLen int) int {
	return 2 + 1 + 1 + 3*listLen + 3
}

// ListLen returns the slot capacity.
func (d *Data) ListLen() int {
	return len(d.Slots)
}

// Size returns the encoded size of d.
func (d *Data) Size() int {
	return DataSize(d.ListLen())
}

// Pending returns the identities currently in the join list.
func (d *Data) Pending() []NodeID {
	return d.Slots[:d.SlotCount]
}

// Marshal writes d into dst, which must hold at least d.Size() bytes.
func (d *Data) Marshal(dst []byte) error {
	l := d.ListLen()
	if len(dst) < d.Size() {
		return common.NewChaosErr("join", common.InvalidPacket,
			fmt.Sprintf("join record needs %d bytes, got %d", d.Size(), len(dst)))
	}

	binary.LittleEndian.PutUint16(dst[0:], d.Config)
	dst[2] = d.NodeCount
	dst[3] = d.commitByte()

	off := 4
	for i := 0; i < l; i++ {
		binary.LittleEndian.PutUint16(dst[off+2*i:], uint16(d.Slots[i]))
	}
	off += 2 * l
	for i := 0; i < l; i++ {
		dst[off+i] = byte(d.Indices[i])
	}
	off += l
	binary.LittleEndian.PutUint16(dst[off:], uint16(d.RejoinSlot))
	dst[off+2] = byte(d.RejoinIndex)

	return nil
}

// Unmarshal reads d from src using d's slot capacity.
func (d *Data) Unmarshal(src []byte) error {
	l := d.ListLen()
	if len(src) < d.Size() {
		return common.NewChaosErr("join", common.InvalidPacket,
			fmt.Sprintf("join record needs %d bytes, got %d", d.Size(), len(src)))
	}

	d.Config = binary.LittleEndian.Uint16(src[0:])
	d.NodeCount = src[2]
	d.setCommitByte(src[3])
	if int(d.SlotCount) > l {
		return common.NewChaosErr("join", common.InvalidPacket,
			fmt.Sprintf("slot count %d exceeds list length %d", d.SlotCount, l))
	}

	off := 4
	for i := 0; i < l; i++ {
		d.Slots[i] = NodeID(binary.LittleEndian.Uint16(src[off+2*i:]))
	}
	off += 2 * l
	for i := 0; i < l; i++ {
		d.Indices[i] = Index(src[off+i])
	}
	off += l
	d.RejoinSlot = NodeID(binary.LittleEndian.Uint16(src[off:]))
	d.RejoinIndex = Index(src[off+2])

	return nil
}

func (d *Data) commitByte() byte {
	b := d.SlotCount & 0x1f
	if d.Overflow {
		b |= 1 << 5
	}
	b |= (d.Commit & 0x3) << 6
	return b
}

func (d *Data) setCommitByte(b byte) {
	d.SlotCount = b & 0x1f
	d.Overflow = b&(1<<5) != 0
	d.Commit = (b >> 6) & 0x3
}

// CopyFrom overwrites d with o. Both must have the same slot capacity.
func (d *Data) CopyFrom(o *Data) {
	slots, indices := d.Slots, d.Indices
	*d = *o
	d.Slots, d.Indices = slots, indices
	copy(d.Slots, o.Slots)
	copy(d.Indices, o.Indices)
}

// Copy returns a deep copy of d.
func (d *Data) Copy() *Data {
	c := NewData(d.ListLen())
	c.CopyFrom(d)
	return c
}

// Equal reports whether d and o encode to the same bytes.
func (d *Data) Equal(o *Data) bool {
	if d.ListLen() != o.ListLen() ||
		d.Config != o.Config ||
		d.NodeCount != o.NodeCount ||
		d.commitByte() != o.commitByte() ||
		d.RejoinSlot != o.RejoinSlot ||
		d.RejoinIndex != o.RejoinIndex {
		return false
	}
	for i := range d.Slots {
		if d.Slots[i] != o.Slots[i] || d.Indices[i] != o.Indices[i] {
			return false
		}
	}
	return true
}

// IndexOfPending returns the index assigned to id by a commit, if id is in
// the join list.
func (d *Data) IndexOfPending(id NodeID) (Index, bool) {
	for i := 0; i < int(d.SlotCount); i++ {
		if d.Slots[i] == id {
			return d.Indices[i], true
		}
	}
	return 0, false
}
