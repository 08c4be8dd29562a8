package flood

import (
	"fmt"
	"math/rand"
	"sync"
)

// Participant is one node taking part in a simulated round.
type Participant struct {
	TX   []byte
	Proc Processor
}

// Channel decides what a listening node receives in a slot.
type Channel interface {
	// Receive returns the position in transmitters of the packet that reaches
	// the listener, or -1 when the reception fails.
	Receive(listener int, transmitters []int) int
}

// LossyChannel delivers one randomly chosen concurrent transmission per slot,
// or nothing with probability Loss. Concurrent transmissions of Chaos carry
// near-identical packets and are captured rather than collided.
type LossyChannel struct {
	sync.Mutex
	loss float64
	rng  *rand.Rand
}

// NewLossyChannel ...
func NewLossyChannel(loss float64, seed int64) *LossyChannel {
	return &LossyChannel{
		loss: loss,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Receive implements the Channel interface.
func (c *LossyChannel) Receive(listener int, transmitters []int) int {
	if len(transmitters) == 0 {
		return -1
	}
	c.Lock()
	defer c.Unlock()
	if c.loss > 0 && c.rng.Float64() < c.loss {
		return -1
	}
	return c.rng.Intn(len(transmitters))
}

type simNode struct {
	state RadioState
	rx    []byte
	done  bool
}

// Simulate runs one round for all participants in lockstep. In every slot the
// buffers of the transmitting nodes are snapshotted before any Processor runs,
// so that a slot behaves as a single radio event.
func Simulate(params Params, participants []Participant, ch Channel) error {
	if len(participants) == 0 {
		return fmt.Errorf("flood: no participants")
	}
	size := len(participants[0].TX)
	for i, p := range participants {
		if len(p.TX) != size {
			return fmt.Errorf("flood: participant %d buffer is %d bytes, expected %d", i, len(p.TX), size)
		}
	}

	nodes := make([]simNode, len(participants))
	for i, p := range participants {
		nodes[i].rx = make([]byte, size)
		nodes[i].state = RX
		if p.Proc.Initiator() {
			nodes[i].state = Init
		}
	}

	snapshot := make([][]byte, len(participants))
	for i := range snapshot {
		snapshot[i] = make([]byte, size)
	}

	active := len(participants)
	for slot := 0; slot < params.MaxSlots && active > 0; slot++ {
		transmitters := []int{}
		for i := range nodes {
			if !nodes[i].done && nodes[i].state == TX {
				copy(snapshot[i], participants[i].TX)
				transmitters = append(transmitters, i)
			}
		}

		for i := range nodes {
			n := &nodes[i]
			if n.done {
				continue
			}

			s := Slot{
				Round: params.Round,
				Index: uint16(slot),
				State: n.state,
				TX:    participants[i].TX,
			}

			switch n.state {
			case TX:
				s.Success = true
			case RX:
				if pick := ch.Receive(i, transmitters); pick >= 0 {
					copy(n.rx, snapshot[transmitters[pick]])
					s.Success = true
					s.RX = n.rx
				}
			}

			n.state = participants[i].Proc.Process(s)
			if n.state == Off {
				n.done = true
				active--
			}
		}
	}

	return nil
}
