// Package flood defines the contract between the round engine and the
// synchronous flooding primitive that drives it, and provides an in-memory
// lockstep medium used to run whole swarms inside one process.
//
// The primitive executes one round as a sequence of slots. In every slot it
// either transmits the node's buffer or listens, then calls the node's
// Processor exactly once with the outcome. The Processor mutates the transmit
// buffer in place and returns the radio state for the next slot.
package flood

import "context"

// RadioState is the state of a node's radio in a slot.
type RadioState uint8

const (
	// Init is the virtual first state of the round initiator.
	Init RadioState = iota
	// RX listens.
	RX
	// TX transmits the local buffer.
	TX
	// Off ends the round for the node.
	Off
)

// String ...
func (s RadioState) String() string {
	switch s {
	case Init:
		return "Init"
	case RX:
		return "RX"
	case TX:
		return "TX"
	case Off:
		return "Off"
	default:
		return "Unknown"
	}
}

// Slot is the outcome of one slot as reported to a Processor.
type Slot struct {
	Round uint16
	Index uint16
	// State is the radio state the slot was executed in.
	State RadioState
	// Success is set when an RX slot received an intact packet.
	Success bool
	// RX holds the received packet. It is only valid during the call.
	RX []byte
	// TX is the local transmit buffer, mutated in place.
	TX []byte
}

// Processor is the per-slot callback of a round.
type Processor interface {
	Process(slot Slot) RadioState
	Initiator() bool
}

// Params describe one round.
type Params struct {
	Round    uint16
	AppID    uint8
	MaxSlots int
}

// Flooder runs one round of the flooding primitive. tx is the seed packet and
// is used as the node's transmit buffer for the whole round. Flood returns
// when the node's radio is off or the slot budget is exhausted.
type Flooder interface {
	Flood(ctx context.Context, params Params, tx []byte, proc Processor) error
}
