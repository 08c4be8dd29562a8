// Package mergecommit implements the merge-commit round engine: a two-phase
// epidemic agreement executed once per round on top of a synchronous flood.
//
// During MERGE every node merges the proposals it hears into its own with a
// Reducer, sets its flag, and merges join and leave requests. Once the
// initiator has seen every member's flag late enough in the round it commits:
// it admits the pending joins, evicts the leaving members, and switches the
// packet to COMMIT. The COMMIT packet overwrites every MERGE packet it meets,
// so the initiator's decision spreads through the whole swarm, and every node
// acknowledges it with its flag. A node switches its radio off after a few
// transmissions of a complete COMMIT packet.
package mergecommit

import (
	"bytes"
	"context"

	"github.com/mosaicnetworks/chaos/src/bitset"
	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/flood"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/sirupsen/logrus"
)

// Reducer merges two competing proposals into one. Merge must be pure and
// idempotent, and must return the same value for (a, b) and (b, a).
type Reducer interface {
	Size() int
	Merge(a, b []byte) []byte
}

// Engine runs merge-commit rounds for one node. It implements
// flood.Processor. An Engine is not safe for concurrent use; the flood
// primitive calls Process sequentially.
type Engine struct {
	params  Params
	layout  Layout
	reducer Reducer
	state   *join.State
	flooder flood.Flooder
	restart *restartPolicy

	logger *logrus.Entry

	round     uint16
	tx, rx    *Packet
	joinMasks *bitset.Set

	send                bool
	didTX               bool
	hasInitialJoinMasks bool
	gotValidRX          bool
	complete            bool
	rxProgress          bool
	txCountComplete     int
	invalidRX           int
	offSlot             int
	completionSlot      int
	deltaAtSlot         int
	joined              bool
	left                bool
	finished            bool

	commit *join.CommitResult
	final  *Outcome
	stats  []SlotStats
}

// NewEngine creates an Engine. The flooder may be nil for callers driving the
// engine through Begin, Process and End themselves.
func NewEngine(params Params,
	reducer Reducer,
	state *join.State,
	flooder flood.Flooder,
	logger *logrus.Entry) (*Engine, error) {

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if state.Capacity() != params.MaxNodeCount {
		return nil, invalidConfig("membership capacity %d does not match max node count %d",
			state.Capacity(), params.MaxNodeCount)
	}

	if logger == nil {
		l := logrus.New()
		l.Level = logrus.InfoLevel
		logger = logrus.NewEntry(l)
	}

	layout := NewLayout(params, reducer.Size())

	return &Engine{
		params:    params,
		layout:    layout,
		reducer:   reducer,
		state:     state,
		flooder:   flooder,
		restart:   newRestartPolicy(params.RestartMin, params.RestartMax, params.Seed+int64(state.ID())),
		logger:    logger.WithField("node", state.ID()),
		tx:        NewPacket(layout),
		rx:        NewPacket(layout),
		joinMasks: bitset.New(params.MaxNodeCount),
		offSlot:   params.RoundMaxSlots,
	}, nil
}

// Layout returns the packet layout used by the engine.
func (e *Engine) Layout() Layout {
	return e.layout
}

// State returns the membership state driven by the engine.
func (e *Engine) State() *join.State {
	return e.state
}

// RoundBegin runs one round through the flooder. value is the node's proposal;
// the agreed or last merged value is returned in the Outcome. Running out of
// slots is not an error: check Outcome.Phase and Outcome.CompletionSlot.
func (e *Engine) RoundBegin(ctx context.Context, round uint16, appID uint8, value []byte) (*Outcome, error) {
	if e.flooder == nil {
		return nil, invalidConfig("no flooder")
	}

	buf, err := e.Begin(round, value)
	if err != nil {
		return nil, err
	}

	params := flood.Params{
		Round:    round,
		AppID:    appID,
		MaxSlots: e.params.RoundMaxSlots,
	}
	if err := e.flooder.Flood(ctx, params, buf, e); err != nil {
		return nil, err
	}

	return e.End(), nil
}

// Begin resets the round-local state and returns the seed packet for round.
func (e *Engine) Begin(round uint16, value []byte) ([]byte, error) {
	if len(value) != e.layout.ValueSize {
		return nil, invalidPacket("value is %d bytes, expected %d", len(value), e.layout.ValueSize)
	}

	e.round = round
	e.send = false
	e.didTX = false
	e.hasInitialJoinMasks = false
	e.gotValidRX = false
	e.complete = false
	e.rxProgress = false
	e.txCountComplete = 0
	e.invalidRX = 0
	e.offSlot = e.params.RoundMaxSlots
	e.completionSlot = 0
	e.deltaAtSlot = 0
	e.joined = false
	e.left = false
	e.finished = false
	e.commit = nil
	e.final = nil
	e.stats = nil
	if e.params.AdvancedStats {
		e.stats = make([]SlotStats, 0, e.params.RoundMaxSlots)
	}

	e.restart.redraw()

	e.tx = NewPacket(e.layout)
	copy(e.tx.Value, value)
	e.joinMasks.Reset()

	idx, hasIndex := e.state.Index()
	if hasIndex {
		e.tx.Join.NodeCount = e.state.NodeCount()
		e.tx.Flags.Set(int(idx))
		if e.state.IsInitiator() {
			e.tx.Join.Config = e.state.Config()
		}
	}

	switch {
	case e.state.IsInitiator():
		// every free index is marked as leaving
		e.joinMasks = e.state.JoinMask()
		e.hasInitialJoinMasks = true
		e.tx.Leaves = e.joinMasks.Not()
	case e.state.WantsToLeave():
		e.tx.Leaves.Set(int(idx))
	case e.state.WantsToJoin():
		e.tx.Join.Slots[0] = e.state.ID()
		e.tx.Join.SlotCount = 1
	}

	e.logger.WithFields(logrus.Fields{
		"round":     round,
		"has_index": hasIndex,
		"index":     idx,
		"wanted":    e.state.Wanted(),
		"config":    e.state.Config(),
	}).Debug("Round begin")

	return e.tx.Bytes(), nil
}

// Initiator implements the flood.Processor interface.
func (e *Engine) Initiator() bool {
	return e.state.IsInitiator()
}

// Process implements the flood.Processor interface. It is called once per slot.
func (e *Engine) Process(s flood.Slot) flood.RadioState {
	next := flood.RX
	slot := int(s.Index)

	switch {
	case e.state.IsInitiator() && s.State == flood.Init:
		// seed the flood without counting a complete transmission
		next = flood.TX
		e.gotValidRX = true

	case s.State == flood.RX:
		if s.Success && e.decode(s.RX) {
			e.receive(slot)
			if e.send {
				next = flood.TX
				if e.complete {
					e.txCountComplete++
				}
			}
		} else if e.gotValidRX {
			e.invalidRX++
			if e.invalidRX > e.restart.threshold {
				next = flood.TX
				e.invalidRX = 0
				if e.complete {
					e.txCountComplete++
				}
				e.restart.redraw()
			}
		}

	case s.State == flood.TX &&
		(e.rxProgress || !e.params.ReliableFinalFlood) &&
		e.txCountComplete >= e.params.NTxComplete:
		next = flood.Off
	}

	if next == flood.TX {
		e.didTX = true
	}

	if e.params.AdvancedStats {
		e.recordStats(slot)
	}

	if s.TX != nil {
		e.tx.Encode(s.TX)
	}

	if (slot >= e.params.RoundMaxSlots-1 || next == flood.Off) && !e.finished {
		e.finish(slot)
		next = flood.Off
	}

	return next
}

func (e *Engine) decode(buf []byte) bool {
	if err := e.rx.Decode(buf); err != nil {
		e.logger.WithError(err).Debug("Dropping packet")
		return false
	}
	return true
}

// receive merges e.rx into e.tx.
func (e *Engine) receive(slot int) {
	e.gotValidRX = true
	e.send = false

	tx, rx := e.tx, e.rx

	if idx, hasIndex := e.state.Index(); hasIndex && !e.state.IsInitiator() {
		if !e.state.CheckConfig(rx.Join.Config) {
			// we missed a commit; forward only and ask to join again
			tx.Flags.Clear(int(idx))
			tx.Leaves.Clear(int(idx))
			e.state.Demote()

			e.logger.WithFields(logrus.Fields{
				"round":  e.round,
				"slot":   slot,
				"mine":   e.state.Config(),
				"theirs": rx.Join.Config,
				"index":  idx,
			}).Debug(common.ConfigMismatch.String())
		}
	}
	e.state.SetConfig(rx.Join.Config)
	tx.Join.Config = e.state.Config()

	switch {
	case tx.Phase == rx.Phase:
		e.mergeSamePhase(slot)
	case tx.Phase < rx.Phase:
		e.adopt(slot)
	default:
		// pull the peer forward
		e.send = true
	}
}

func (e *Engine) mergeSamePhase(slot int) {
	tx, rx := e.tx, e.rx

	if !e.hasInitialJoinMasks {
		e.joinMasks = rx.Leaves.Not()
		e.joinMasks.Or(tx.Flags)
		e.joinMasks.Or(rx.Flags)
		e.hasInitialJoinMasks = true
	}

	if tx.Leaves.Union(rx.Leaves) {
		e.send = true
	}
	if tx.Flags.Union(rx.Flags) {
		e.send = true
	}
	// only nodes in this round raise flags, including a member acknowledging
	// the COMMIT that evicts it
	e.joinMasks.Or(tx.Flags)

	flagsComplete := tx.Flags.Equal(e.joinMasks)
	rxComplete := rx.Flags.Equal(e.joinMasks)

	switch tx.Phase {
	case PhaseMerge:
		e.mergeRejoin()
		e.mergeValue()

		changed, delta := join.MergeData(tx.Join, rx.Join)
		if changed {
			e.send = true
		}
		if delta {
			e.deltaAtSlot = slot
		}

		if !e.state.IsInitiator() {
			return
		}
		if flagsComplete && e.commitDue(slot) {
			e.commitPhase(slot)
		} else if delta && tx.Join.RejoinSlot == 0 {
			if id, idx, ok := e.state.RejoinCandidate(tx.Join); ok {
				tx.Join.RejoinSlot = id
				tx.Join.RejoinIndex = idx
				e.send = true
			}
		}

	case PhaseCommit:
		if flagsComplete {
			e.send = true
			if !e.complete {
				e.completionSlot = slot
			}
			e.complete = true
			e.rxProgress = e.rxProgress || rxComplete
		}
	}
}

// mergeRejoin propagates the index the initiator hands back to a member that
// lost it, and claims it when it is ours.
func (e *Engine) mergeRejoin() {
	tx, rx := e.tx.Join, e.rx.Join

	if tx.RejoinSlot != rx.RejoinSlot {
		e.send = true
		if tx.RejoinSlot == 0 {
			tx.RejoinSlot = rx.RejoinSlot
			tx.RejoinIndex = rx.RejoinIndex
		}
	}

	if !e.state.IsInitiator() && !e.state.HasIndex() && tx.RejoinSlot == e.state.ID() {
		e.state.Assign(tx.RejoinIndex)
		e.tx.Flags.Set(int(tx.RejoinIndex))

		e.logger.WithFields(logrus.Fields{
			"round": e.round,
			"index": tx.RejoinIndex,
		}).Debug("Rejoined")
	}
}

// mergeValue runs the reducer. Forwarders hold no claim of their own and just
// relay the latest value they heard.
func (e *Engine) mergeValue() {
	tx, rx := e.tx, e.rx

	if e.state.HasIndex() {
		if bytes.Equal(tx.Value, rx.Value) {
			return
		}
		merged := e.reducer.Merge(tx.Value, rx.Value)
		copy(tx.Value, merged)
		e.send = true
		return
	}

	if !bytes.Equal(tx.Value, rx.Value) {
		copy(tx.Value, rx.Value)
		e.send = true
	}
}

func (e *Engine) commitDue(slot int) bool {
	if slot >= e.params.MaxCommitSlot {
		return true
	}
	return e.params.CommitThreshold > 0 &&
		e.deltaAtSlot > 0 &&
		slot >= e.deltaAtSlot+e.params.CommitThreshold
}

// commitPhase is the initiator's MERGE to COMMIT transition.
func (e *Engine) commitPhase(slot int) {
	tx := e.tx
	idx, _ := e.state.Index()

	tx.Flags.Reset()
	tx.Flags.Set(int(idx))
	tx.Phase = PhaseCommit

	res := e.state.Commit(tx.Join, tx.Leaves)
	e.commit = &res
	e.joinMasks.Or(tx.Leaves.Not())
	e.send = true

	e.logger.WithFields(logrus.Fields{
		"round":      e.round,
		"slot":       slot,
		"admitted":   len(res.Admitted),
		"evicted":    len(res.Evicted),
		"overflowed": len(res.Overflowed),
		"node_count": e.state.NodeCount(),
	}).Debug("Commit")
}

// adopt overwrites the local packet with a more advanced one.
func (e *Engine) adopt(slot int) {
	tx := e.tx
	tx.CopyFrom(e.rx)

	e.state.SetNodeCount(tx.Join.NodeCount)
	e.joinMasks.Or(tx.Leaves.Not())

	id := e.state.ID()
	idx, hasIndex := e.state.Index()
	if !hasIndex || tx.Leaves.Test(int(idx)) {
		// a fresh index wins over a leave request on the old one
		if assigned, ok := tx.Join.IndexOfPending(id); ok && (!hasIndex || assigned != idx) {
			wanted := e.state.Wanted()
			e.state.Assign(assigned)
			if wanted == join.Join {
				e.state.SetWanted(join.Stay)
			}
			idx, hasIndex = assigned, true
			e.joined = true

			e.logger.WithFields(logrus.Fields{
				"round": e.round,
				"slot":  slot,
				"index": idx,
			}).Debug("Joined")
		}
	}

	if hasIndex {
		tx.Flags.Set(int(idx))
		if tx.Leaves.Test(int(idx)) {
			e.state.DropIndex()
			if e.state.Wanted() == join.Leave {
				e.state.SetWanted(join.Stay)
			}
			e.left = true

			e.logger.WithFields(logrus.Fields{
				"round": e.round,
				"slot":  slot,
				"index": idx,
			}).Debug("Left")
		}
	} else if e.state.WantsToJoin() {
		tx.Join.Overflow = true
	}

	e.send = true
}

func (e *Engine) finish(slot int) {
	e.offSlot = slot

	idx, hasIndex := e.state.Index()
	out := &Outcome{
		Round:          e.round,
		Value:          append([]byte{}, e.tx.Value...),
		Phase:          e.tx.Phase,
		Flags:          append([]byte{}, e.tx.Flags.Bytes()...),
		Leaves:         append([]byte{}, e.tx.Leaves.Bytes()...),
		CompletionSlot: e.completionSlot,
		OffSlot:        slot,
		Joined:         e.joined,
		Left:           e.left,
		HasIndex:       hasIndex,
		Index:          uint8(idx),
		NodeCount:      e.state.NodeCount(),
		Stats:          e.stats,
	}
	if e.commit != nil {
		out.Admitted = e.commit.Admitted
		out.Evicted = e.commit.Evicted
		out.Overflowed = e.commit.Overflowed
	}

	if e.state.IsInitiator() {
		e.state.EndRound()
	}
	if out.Phase == PhaseCommit {
		e.state.IncreaseConfig()
	}
	out.Config = e.state.Config()

	e.final = out
	e.finished = true

	e.logger.WithFields(logrus.Fields{
		"round":      e.round,
		"phase":      out.Phase,
		"completion": out.CompletionSlot,
		"off":        out.OffSlot,
		"joined":     out.Joined,
		"left":       out.Left,
	}).Debug("Round end")
}

// End returns the outcome of the current round, closing it first if the flood
// stopped calling Process before the round ended.
func (e *Engine) End() *Outcome {
	if !e.finished {
		e.finish(e.params.RoundMaxSlots - 1)
	}
	e.final.DidTX = e.didTX
	return e.final
}

func (e *Engine) recordStats(slot int) {
	idx, hasIndex := e.state.Index()
	e.stats = append(e.stats, SlotStats{
		Slot:         slot,
		HasIndex:     hasIndex,
		Index:        uint8(idx),
		NodeCount:    e.state.NodeCount(),
		Phase:        e.tx.Phase,
		FlagProgress: e.tx.Flags.Count(),
	})
}

// IsPending reports whether the engine takes part in round. Merge-commit runs
// in every round.
func (e *Engine) IsPending(round uint16) bool {
	return true
}

// OffSlot returns the slot at which the last round ended for this node.
func (e *Engine) OffSlot() int {
	return e.offSlot
}

// HasJoined reports whether the node obtained an index in the last round.
func (e *Engine) HasJoined() bool {
	return e.joined
}

// HasLeft reports whether the node's leave request was committed in the last
// round.
func (e *Engine) HasLeft() bool {
	return e.left
}

// DidTX reports whether the node transmitted in the last round.
func (e *Engine) DidTX() bool {
	return e.didTX
}

// FlagsLength returns the length of the flags trailer in bytes.
func (e *Engine) FlagsLength() int {
	return e.params.FlagsLength()
}

// Agreed reports whether the node saw the whole swarm acknowledge the commit
// of the last round.
func (e *Engine) Agreed() bool {
	return e.completionSlot > 0
}
