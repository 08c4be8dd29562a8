package mergecommit

import (
	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/join"
)

// SlotStats is the state of a node at the end of one slot. It is only
// recorded when Params.AdvancedStats is set.
type SlotStats struct {
	Slot         int
	HasIndex     bool
	Index        uint8
	NodeCount    uint8
	Phase        Phase
	FlagProgress int
}

// Outcome is the result of a round as seen by one node.
type Outcome struct {
	Round uint16
	// Value is the agreed value if Phase is PhaseCommit, the node's last
	// merged proposal otherwise.
	Value  []byte
	Phase  Phase
	Flags  []byte
	Leaves []byte
	// CompletionSlot is the first slot at which the node saw every member's
	// flag in the COMMIT phase, 0 if it never did.
	CompletionSlot int
	OffSlot        int
	DidTX          bool
	// Joined and Left report membership changes of the node itself.
	Joined bool
	Left   bool

	HasIndex  bool
	Index     uint8
	NodeCount uint8
	Config    uint16

	// Admitted, Evicted and Overflowed are only set on the initiator, for
	// rounds in which it committed.
	Admitted   []join.Member
	Evicted    []join.Member
	Overflowed []join.NodeID

	Stats []SlotStats
}

// Committed reports whether the round reached the COMMIT phase.
func (o *Outcome) Committed() bool {
	return o.Phase == PhaseCommit
}

// Err returns a NonConvergence error for rounds that did not complete, and nil
// otherwise. Non-convergence is an expected outcome of lossy rounds.
func (o *Outcome) Err() error {
	if o.Committed() && o.CompletionSlot > 0 {
		return nil
	}
	return common.NewChaosErr("mergecommit", common.NonConvergence,
		"round ended in "+o.Phase.String()+" without full coverage")
}
