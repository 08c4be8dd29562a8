package mergecommit

import (
	"fmt"

	"github.com/mosaicnetworks/chaos/src/bitset"
	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/join"
)

const (
	// DefaultMaxNodeCount ...
	DefaultMaxNodeCount = 16
	// DefaultRoundMaxSlots ...
	DefaultRoundMaxSlots = 350
	// DefaultNTxComplete ...
	DefaultNTxComplete = 9
	// DefaultRestartMin ...
	DefaultRestartMin = 6
	// DefaultRestartMax ...
	DefaultRestartMax = 10
)

// Params are the protocol constants of a swarm. Every node of a swarm must use
// the same MaxNodeCount and NodeListLen or their packets are mutually
// unintelligible.
type Params struct {
	// MaxNodeCount bounds the number of simultaneous members and sizes the
	// flags and leaves trailers.
	MaxNodeCount int
	// NodeListLen bounds the number of join requests per round.
	NodeListLen int
	// RoundMaxSlots is the slot budget of a round.
	RoundMaxSlots int
	// MaxCommitSlot is the slot from which the initiator commits once every
	// member has set its flag.
	MaxCommitSlot int
	// CommitThreshold, when positive, lets the initiator commit this many slots
	// after the last change of the join list.
	CommitThreshold int
	// NTxComplete is the number of transmissions of a complete packet before
	// a node switches its radio off.
	NTxComplete int
	// RestartMin and RestartMax bound the randomized number of failed
	// receptions after which a node retransmits anyway.
	RestartMin int
	RestartMax int
	// ReliableFinalFlood keeps a node on until it has received a complete
	// packet from a peer.
	ReliableFinalFlood bool
	// AdvancedStats records per-slot statistics.
	AdvancedStats bool
	// Seed is mixed with the node identity to seed the retry jitter.
	Seed int64
}

// DefaultParams ...
func DefaultParams() Params {
	return Params{
		MaxNodeCount:       DefaultMaxNodeCount,
		NodeListLen:        join.DefaultNodeListLen,
		RoundMaxSlots:      DefaultRoundMaxSlots,
		MaxCommitSlot:      DefaultRoundMaxSlots / 3,
		CommitThreshold:    0,
		NTxComplete:        DefaultNTxComplete,
		RestartMin:         DefaultRestartMin,
		RestartMax:         DefaultRestartMax,
		ReliableFinalFlood: true,
	}
}

// FlagsLength returns the length in bytes of the flags trailer. The leaves
// trailer has the same length.
func (p Params) FlagsLength() int {
	return bitset.ByteLen(p.MaxNodeCount)
}

// Validate checks that the parameters can work together.
func (p Params) Validate() error {
	switch {
	case p.MaxNodeCount < 1 || p.MaxNodeCount > 256:
		return invalidConfig("max node count %d out of [1, 256]", p.MaxNodeCount)
	case p.NodeListLen < 1 || p.NodeListLen > join.MaxNodeListLen:
		return invalidConfig("node list length %d out of [1, %d]", p.NodeListLen, join.MaxNodeListLen)
	case p.RoundMaxSlots < 2 || p.RoundMaxSlots > 1<<16:
		return invalidConfig("round max slots %d out of [2, 65536]", p.RoundMaxSlots)
	case p.MaxCommitSlot < 1 || p.MaxCommitSlot >= p.RoundMaxSlots:
		return invalidConfig("max commit slot %d out of [1, %d)", p.MaxCommitSlot, p.RoundMaxSlots)
	case p.CommitThreshold < 0:
		return invalidConfig("negative commit threshold %d", p.CommitThreshold)
	case p.NTxComplete < 1:
		return invalidConfig("n tx complete %d must be positive", p.NTxComplete)
	case p.RestartMin < 0 || p.RestartMax <= p.RestartMin:
		return invalidConfig("restart range [%d, %d) is empty", p.RestartMin, p.RestartMax)
	}
	return nil
}

func invalidConfig(format string, args ...interface{}) error {
	return common.NewChaosErr("mergecommit", common.InvalidConfig, fmt.Sprintf(format, args...))
}
