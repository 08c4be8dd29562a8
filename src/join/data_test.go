package join

import (
	"testing"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataLayout(t *testing.T) {
	d := NewData(2)
	d.Config = 0x0102
	d.NodeCount = 3
	d.SlotCount = 2
	d.Overflow = true
	d.Commit = 1
	d.Slots[0] = 0x0a0b
	d.Slots[1] = 0x0c0d
	d.Indices[0] = 4
	d.Indices[1] = 5
	d.RejoinSlot = 0x0e0f
	d.RejoinIndex = 6

	buf := make([]byte, DataSize(2))
	require.NoError(t, d.Marshal(buf))

	expected := []byte{
		0x02, 0x01, // config
		3,                      // node count
		2 | 1<<5 | 1<<6,        // slot count, overflow, commit
		0x0b, 0x0a, 0x0d, 0x0c, // slots
		4, 5, // indices
		0x0f, 0x0e, 6, // rejoin
	}
	assert.Equal(t, expected, buf)

	back := NewData(2)
	require.NoError(t, back.Unmarshal(buf))
	if !back.Equal(d) {
		t.Fatalf("decoded record differs: %+v vs %+v", back, d)
	}
}

func TestDataUnmarshalErrors(t *testing.T) {
	d := NewData(DefaultNodeListLen)

	err := d.Unmarshal(make([]byte, 3))
	if !common.Is(err, common.InvalidPacket) {
		t.Fatalf("expected InvalidPacket, got %v", err)
	}

	buf := make([]byte, DataSize(DefaultNodeListLen))
	buf[3] = 31 // slot count above list length
	err = d.Unmarshal(buf)
	if !common.Is(err, common.InvalidPacket) {
		t.Fatalf("expected InvalidPacket, got %v", err)
	}
}

func TestDataCopy(t *testing.T) {
	d := NewData(3)
	d.SlotCount = 1
	d.Slots[0] = 7

	c := d.Copy()
	c.Slots[0] = 8

	assert.Equal(t, NodeID(7), d.Slots[0])
	idx, ok := d.IndexOfPending(7)
	assert.True(t, ok)
	assert.Equal(t, Index(0), idx)
	_, ok = d.IndexOfPending(8)
	assert.False(t, ok)
}
