package mergecommit

import (
	"context"
	"sync"
	"testing"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/flood"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/reducer"
	"github.com/mosaicnetworks/chaos/src/tiles"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initiatorID = join.NodeID(100)

func testParams(maxNodes int) Params {
	p := DefaultParams()
	p.MaxNodeCount = maxNodes
	p.RoundMaxSlots = 150
	p.MaxCommitSlot = 50
	return p
}

type swarm struct {
	t       *testing.T
	params  Params
	engines []*Engine
}

// newSwarm creates an initiator followed by one joining node per id.
func newSwarm(t *testing.T, params Params, r Reducer, ids ...join.NodeID) *swarm {
	s := &swarm{t: t, params: params}
	s.add(join.NewInitiatorState(initiatorID, params.MaxNodeCount), r)
	for _, id := range ids {
		s.add(join.NewState(id, params.MaxNodeCount), r)
	}
	return s
}

func (s *swarm) add(state *join.State, r Reducer) {
	logger := common.NewTestEntry(s.t, logrus.DebugLevel, "chaos")
	e, err := NewEngine(s.params, r, state, nil, logger)
	require.NoError(s.t, err)
	s.engines = append(s.engines, e)
}

// round runs one round with the engines at the given positions, or all of
// them when none is given.
func (s *swarm) round(n uint16, values [][]byte, ch flood.Channel, which ...int) []*Outcome {
	if len(which) == 0 {
		for i := range s.engines {
			which = append(which, i)
		}
	}
	participants := make([]flood.Participant, len(which))
	for i, w := range which {
		buf, err := s.engines[w].Begin(n, values[w])
		require.NoError(s.t, err)
		participants[i] = flood.Participant{TX: buf, Proc: s.engines[w]}
	}

	err := flood.Simulate(flood.Params{Round: n, MaxSlots: s.params.RoundMaxSlots}, participants, ch)
	require.NoError(s.t, err)

	outs := make([]*Outcome, len(which))
	for i, w := range which {
		outs[i] = s.engines[w].End()
	}
	return outs
}

func zeros(n, size int) [][]byte {
	res := make([][]byte, n)
	for i := range res {
		res[i] = make([]byte, size)
	}
	return res
}

func lossless() flood.Channel {
	return flood.NewLossyChannel(0, 1)
}

func TestInitiatorAndTwoJoiners(t *testing.T) {
	s := newSwarm(t, testParams(4), reducer.Max{N: 2}, 7, 9)

	outs := s.round(1, zeros(3, 2), lossless())

	for i, o := range outs {
		assert.Equal(t, PhaseCommit, o.Phase, "node %d", i)
		assert.NotZero(t, o.CompletionSlot, "node %d", i)
		assert.Equal(t, uint8(3), o.NodeCount, "node %d", i)
	}
	assert.True(t, outs[1].Joined)
	assert.True(t, outs[2].Joined)
	assert.Equal(t, []join.Member{{ID: 7, Index: 1}, {ID: 9, Index: 2}}, outs[0].Admitted)

	indices := map[join.Index]bool{}
	for _, e := range s.engines {
		idx, ok := e.State().Index()
		require.True(t, ok)
		indices[idx] = true
	}
	assert.Equal(t, map[join.Index]bool{0: true, 1: true, 2: true}, indices)
	idx, _ := s.engines[0].State().Index()
	assert.Equal(t, join.Index(0), idx)

	table := s.engines[0].State().Table()
	assert.Equal(t, 3, table.Count())
	assert.Equal(t, []join.Member{{ID: 100, Index: 0}, {ID: 7, Index: 1}, {ID: 9, Index: 2}}, table.Members())

	// every node closed the round in COMMIT and moved to the next config
	for _, e := range s.engines {
		assert.Equal(t, uint16(1), e.State().Config())
	}
}

func TestMembershipOverflow(t *testing.T) {
	s := newSwarm(t, testParams(2), reducer.Max{N: 1}, 7, 9)

	outs := s.round(1, zeros(3, 1), lossless())

	assert.Equal(t, []join.NodeID{9}, outs[0].Overflowed)
	assert.True(t, outs[1].Joined)
	assert.False(t, outs[2].Joined)
	assert.False(t, s.engines[2].State().HasIndex())
}

func TestSwarmConvergesOnMax(t *testing.T) {
	s := newSwarm(t, testParams(8), reducer.Max{N: 2}, 11, 12, 13, 14)
	s.round(1, zeros(5, 2), lossless())

	values := [][]byte{{1, 0}, {3, 7}, {2, 9}, {3, 1}, {0, 0}}
	outs := s.round(2, values, lossless())

	for i, o := range outs {
		assert.Equal(t, PhaseCommit, o.Phase, "node %d", i)
		assert.Equal(t, []byte{3, 7}, o.Value, "node %d", i)
		assert.Equal(t, outs[0].Flags, o.Flags, "node %d", i)
		assert.True(t, o.DidTX, "node %d", i)
	}
}

func TestTileReservationConverges(t *testing.T) {
	grid := tiles.Grid{Width: 3, Height: 3, MaxNodes: 4}
	r := tiles.Reducer{Grid: grid, Policy: tiles.ByPriority}
	s := newSwarm(t, testParams(4), r, 21, 22)
	s.round(1, zeros(3, grid.Size()), lossless())

	values := make([][]byte, 3)
	for i, e := range s.engines {
		idx, _ := e.State().Index()
		p := grid.NewPlan()
		p.Reserve(tiles.Path{4}, tiles.Owner(uint8(idx)))
		p.Claims[idx] = uint16(5 + 2*i)
		values[i] = p.Bytes()
	}

	outs := s.round(2, values, lossless())
	for _, o := range outs {
		require.Equal(t, PhaseCommit, o.Phase)
		assert.Equal(t, outs[0].Value, o.Value)
	}

	plan, err := grid.Decode(outs[0].Value)
	require.NoError(t, err)
	idx, _ := s.engines[2].State().Index()
	assert.Equal(t, tiles.Owner(uint8(idx)), plan.Tiles[4], "highest priority wins the tile")
}

func TestRoundWithoutFullCoverage(t *testing.T) {
	s := newSwarm(t, testParams(4), reducer.Max{N: 1}, 7, 9)
	s.round(1, zeros(3, 1), lossless())

	// node 9 stays silent: flags only ever cover 2 of 3 members
	outs := s.round(2, zeros(3, 1), lossless(), 0, 1)

	for _, o := range outs {
		assert.Equal(t, PhaseMerge, o.Phase)
		assert.Equal(t, 0, o.CompletionSlot)
		assert.Equal(t, s.params.RoundMaxSlots-1, o.OffSlot)
		if !common.Is(o.Err(), common.NonConvergence) {
			t.Fatalf("expected NonConvergence, got %v", o.Err())
		}
	}
	assert.False(t, s.engines[0].Agreed())
	assert.Equal(t, uint16(1), s.engines[0].State().Config(), "config only moves on commit")
}

func TestLeave(t *testing.T) {
	s := newSwarm(t, testParams(4), reducer.Max{N: 1}, 7, 9)
	s.round(1, zeros(3, 1), lossless())

	s.engines[1].State().SetWanted(join.Leave)
	outs := s.round(2, zeros(3, 1), lossless())

	assert.True(t, outs[1].Left)
	assert.True(t, s.engines[1].HasLeft())
	assert.False(t, s.engines[1].State().HasIndex())
	assert.Equal(t, []join.Member{{ID: 7, Index: 1}}, outs[0].Evicted)
	assert.Equal(t, uint8(2), outs[0].NodeCount)
	_, ok := s.engines[0].State().Table().IndexOf(7)
	assert.False(t, ok)

	// the freed index goes to the next joiner
	s.engines[1].State().SetWanted(join.Join)
	outs = s.round(3, zeros(3, 1), lossless())
	assert.True(t, outs[1].Joined)
	idx, ok := s.engines[1].State().Index()
	assert.True(t, ok)
	assert.Equal(t, join.Index(1), idx)
}

func TestConfigMismatchRejoin(t *testing.T) {
	s := newSwarm(t, testParams(4), reducer.Max{N: 1}, 7, 9)
	s.round(1, zeros(3, 1), lossless())
	before, _ := s.engines[2].State().Index()

	// node 9 believes it is a member of another configuration
	s.engines[2].State().SetConfig(99)
	outs := s.round(2, zeros(3, 1), lossless())

	assert.False(t, s.engines[2].State().HasIndex())
	assert.True(t, s.engines[2].State().RejoinNeeded())
	assert.Equal(t, PhaseMerge, outs[0].Phase)

	// next round it asks to join and gets its index back before the commit
	outs = s.round(3, zeros(3, 1), lossless())
	for _, o := range outs {
		assert.Equal(t, PhaseCommit, o.Phase)
	}
	idx, ok := s.engines[2].State().Index()
	require.True(t, ok)
	assert.Equal(t, before, idx)
	assert.False(t, s.engines[2].State().RejoinNeeded())
	assert.Empty(t, outs[0].Admitted)
}

// phaseWatch checks that the phase in a node's transmit buffer never
// decreases within a round.
type phaseWatch struct {
	*Engine
	t    *testing.T
	last Phase
}

func (w *phaseWatch) Process(s flood.Slot) flood.RadioState {
	next := w.Engine.Process(s)
	phase := Phase(s.TX[w.Engine.Layout().phaseOffset()])
	if phase < w.last {
		w.t.Fatalf("phase went from %s to %s at slot %d", w.last, phase, s.Index)
	}
	w.last = phase
	return next
}

func TestPhaseMonotonicUnderLoss(t *testing.T) {
	s := newSwarm(t, testParams(8), reducer.Max{N: 1}, 2, 3, 4, 5, 6)
	ch := flood.NewLossyChannel(0.3, 5)

	for round := uint16(1); round <= 4; round++ {
		participants := make([]flood.Participant, len(s.engines))
		for i, e := range s.engines {
			buf, err := e.Begin(round, []byte{byte(i)})
			require.NoError(t, err)
			participants[i] = flood.Participant{TX: buf, Proc: &phaseWatch{Engine: e, t: t, last: PhaseMerge}}
		}
		require.NoError(t, flood.Simulate(flood.Params{Round: round, MaxSlots: s.params.RoundMaxSlots}, participants, ch))

		outs := make([]*Outcome, len(s.engines))
		for i, e := range s.engines {
			outs[i] = e.End()
		}
		checkUniqueIndices(t, s)

		// nodes that reached COMMIT agree on the value
		var agreed []byte
		for _, o := range outs {
			if !o.Committed() {
				continue
			}
			if agreed == nil {
				agreed = o.Value
			}
			assert.Equal(t, agreed, o.Value)
		}
	}
}

func checkUniqueIndices(t *testing.T, s *swarm) {
	t.Helper()
	seen := map[join.Index]join.NodeID{}
	for _, m := range s.engines[0].State().Table().Members() {
		if other, ok := seen[m.Index]; ok {
			t.Fatalf("index %d held by %d and %d", m.Index, other, m.ID)
		}
		seen[m.Index] = m.ID
	}
}

func TestAdvancedStats(t *testing.T) {
	params := testParams(4)
	params.AdvancedStats = true
	s := newSwarm(t, params, reducer.Max{N: 1}, 7)

	outs := s.round(1, zeros(2, 1), lossless())

	stats := outs[0].Stats
	require.NotEmpty(t, stats)
	assert.Equal(t, outs[0].OffSlot+1, len(stats))
	assert.Equal(t, PhaseMerge, stats[0].Phase)
	assert.Equal(t, PhaseCommit, stats[len(stats)-1].Phase)
	assert.Equal(t, 2, stats[len(stats)-1].FlagProgress)
}

func TestRoundBeginThroughMedium(t *testing.T) {
	params := testParams(4)
	medium := flood.NewMedium(lossless(), common.NewTestEntry(t, logrus.DebugLevel, "medium"))

	states := []*join.State{
		join.NewInitiatorState(initiatorID, params.MaxNodeCount),
		join.NewState(7, params.MaxNodeCount),
	}
	engines := make([]*Engine, len(states))
	for i, st := range states {
		e, err := NewEngine(params, reducer.Max{N: 1}, st, medium.Attach(), common.NewTestEntry(t, logrus.DebugLevel, "chaos"))
		require.NoError(t, err)
		engines[i] = e
	}

	var wg sync.WaitGroup
	outs := make([]*Outcome, len(engines))
	errs := make([]error, len(engines))
	for i, e := range engines {
		wg.Add(1)
		go func(i int, e *Engine) {
			defer wg.Done()
			outs[i], errs[i] = e.RoundBegin(context.Background(), 1, 0, []byte{byte(i)})
		}(i, e)
	}
	wg.Wait()

	for i := range engines {
		require.NoError(t, errs[i])
		assert.Equal(t, PhaseCommit, outs[i].Phase)
		// the joiner forwards until it holds an index, so its proposal is dropped
		assert.Equal(t, []byte{0}, outs[i].Value)
	}
	assert.True(t, engines[1].HasJoined())
	assert.True(t, engines[1].IsPending(2))
	assert.Equal(t, outs[1].OffSlot, engines[1].OffSlot())
	assert.Equal(t, 1, engines[0].FlagsLength())
}

func TestBeginRejectsWrongValueSize(t *testing.T) {
	e, err := NewEngine(testParams(4), reducer.Max{N: 2}, join.NewInitiatorState(1, 4), nil, nil)
	require.NoError(t, err)

	_, err = e.Begin(1, []byte{1})
	if !common.Is(err, common.InvalidPacket) {
		t.Fatalf("expected InvalidPacket, got %v", err)
	}

	_, err = NewEngine(testParams(4), reducer.Max{N: 2}, join.NewInitiatorState(1, 8), nil, nil)
	if !common.Is(err, common.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}

	// without a flooder the engine can only be driven slot by slot
	_, err = e.RoundBegin(context.Background(), 1, 0, []byte{0, 0})
	if !common.Is(err, common.InvalidConfig) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
}
