package store

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// RoundRecord is the summary of one round as seen by one node.
//
// Seq is a monotonic counter maintained by the node; Round is the 16-bit round
// number carried on the air, which wraps.
type RoundRecord struct {
	Seq            int64
	Round          uint16
	Value          []byte
	Committed      bool
	CompletionSlot int
	OffSlot        int
	DidTX          bool
	HasIndex       bool
	Index          uint8
	NodeCount      uint8
	Config         uint16
	Joined         bool
	Left           bool
	Admitted       []uint16 `json:",omitempty"`
	Evicted        []uint16 `json:",omitempty"`
}

// recordHandle encodes map keys in a stable order so that equal records have
// equal bytes.
var recordHandle = func() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}()

// Marshal encodes the record in canonical JSON.
func (r *RoundRecord) Marshal() ([]byte, error) {
	var b bytes.Buffer
	if err := codec.NewEncoder(&b, recordHandle).Encode(r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a record written by Marshal.
func (r *RoundRecord) Unmarshal(data []byte) error {
	return codec.NewDecoderBytes(data, recordHandle).Decode(r)
}
