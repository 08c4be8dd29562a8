package mergecommit

import (
	"fmt"

	"github.com/mosaicnetworks/chaos/src/bitset"
	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/join"
)

// Phase of a round. Phases only move forward.
type Phase uint8

const (
	// PhaseMerge collects proposals and join/leave requests.
	PhaseMerge Phase = 4
	// PhaseCommit floods the initiator's decision.
	PhaseCommit Phase = 8
)

// String ...
func (p Phase) String() string {
	switch p {
	case PhaseMerge:
		return "MERGE"
	case PhaseCommit:
		return "COMMIT"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Layout locates the fields of a packet:
//
//	reserved | join record | value | phase | flags | leaves
type Layout struct {
	MaxNodeCount int
	ListLen      int
	ValueSize    int
	FlagsLen     int
}

// NewLayout returns the layout of packets carrying values of valueSize bytes.
func NewLayout(p Params, valueSize int) Layout {
	return Layout{
		MaxNodeCount: p.MaxNodeCount,
		ListLen:      p.NodeListLen,
		ValueSize:    valueSize,
		FlagsLen:     p.FlagsLength(),
	}
}

func (l Layout) joinOffset() int {
	return 1
}

func (l Layout) valueOffset() int {
	return l.joinOffset() + join.DataSize(l.ListLen)
}

func (l Layout) phaseOffset() int {
	return l.valueOffset() + l.ValueSize
}

func (l Layout) flagsOffset() int {
	return l.phaseOffset() + 1
}

func (l Layout) leavesOffset() int {
	return l.flagsOffset() + l.FlagsLen
}

// Size returns the encoded packet size.
func (l Layout) Size() int {
	return l.leavesOffset() + l.FlagsLen
}

// Packet is the datum flooded in every slot of a round.
type Packet struct {
	layout Layout

	Reserved uint8
	Join     *join.Data
	Value    []byte
	Phase    Phase
	Flags    *bitset.Set
	Leaves   *bitset.Set
}

// NewPacket returns an empty MERGE packet with layout l.
func NewPacket(l Layout) *Packet {
	return &Packet{
		layout: l,
		Join:   join.NewData(l.ListLen),
		Value:  make([]byte, l.ValueSize),
		Phase:  PhaseMerge,
		Flags:  bitset.New(l.MaxNodeCount),
		Leaves: bitset.New(l.MaxNodeCount),
	}
}

// Layout ...
func (p *Packet) Layout() Layout {
	return p.layout
}

// Encode writes the packet into dst, which must hold Layout().Size() bytes.
func (p *Packet) Encode(dst []byte) error {
	l := p.layout
	if len(dst) < l.Size() {
		return invalidPacket("packet needs %d bytes, got %d", l.Size(), len(dst))
	}
	dst[0] = p.Reserved
	if err := p.Join.Marshal(dst[l.joinOffset():]); err != nil {
		return err
	}
	copy(dst[l.valueOffset():l.phaseOffset()], p.Value)
	dst[l.phaseOffset()] = byte(p.Phase)
	copy(dst[l.flagsOffset():l.leavesOffset()], p.Flags.Bytes())
	copy(dst[l.leavesOffset():l.Size()], p.Leaves.Bytes())
	return nil
}

// Bytes returns the encoded packet.
func (p *Packet) Bytes() []byte {
	buf := make([]byte, p.layout.Size())
	p.Encode(buf)
	return buf
}

// Decode reads the packet from src. On error p is left partially updated.
func (p *Packet) Decode(src []byte) error {
	l := p.layout
	if len(src) < l.Size() {
		return invalidPacket("packet needs %d bytes, got %d", l.Size(), len(src))
	}
	phase := Phase(src[l.phaseOffset()])
	if phase != PhaseMerge && phase != PhaseCommit {
		return invalidPacket("unknown phase %d", phase)
	}

	p.Reserved = src[0]
	if err := p.Join.Unmarshal(src[l.joinOffset():]); err != nil {
		return err
	}
	copy(p.Value, src[l.valueOffset():l.phaseOffset()])
	p.Phase = phase

	flags, err := bitset.FromBytes(l.MaxNodeCount, src[l.flagsOffset():l.leavesOffset()])
	if err != nil {
		return invalidPacket("%v", err)
	}
	leaves, err := bitset.FromBytes(l.MaxNodeCount, src[l.leavesOffset():l.Size()])
	if err != nil {
		return invalidPacket("%v", err)
	}
	p.Flags, p.Leaves = flags, leaves
	return nil
}

// CopyFrom overwrites p with o. Both must share the same layout.
func (p *Packet) CopyFrom(o *Packet) {
	p.Reserved = o.Reserved
	p.Join.CopyFrom(o.Join)
	copy(p.Value, o.Value)
	p.Phase = o.Phase
	p.Flags = o.Flags.Copy()
	p.Leaves = o.Leaves.Copy()
}

func invalidPacket(format string, args ...interface{}) error {
	return common.NewChaosErr("mergecommit", common.InvalidPacket, fmt.Sprintf(format, args...))
}
