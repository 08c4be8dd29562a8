package node

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/flood"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/mergecommit"
	_state "github.com/mosaicnetworks/chaos/src/node/state"
	"github.com/mosaicnetworks/chaos/src/store"
	"github.com/mosaicnetworks/chaos/src/telemetry"
	"github.com/sirupsen/logrus"
)

// membership requests, applied at the start of the next round
const (
	noRequest int32 = iota
	joinRequest
	leaveRequest
)

type closer interface {
	Close()
}

// Node defines a chaos node
type Node struct {
	// The node's state is accessed by the run loop and by callers of Leave,
	// Join and Shutdown.
	_state.Manager

	conf    *Config
	logger  *logrus.Entry
	id      join.NodeID
	moniker string

	engine  *mergecommit.Engine
	flooder flood.Flooder
	store   store.Store
	metrics *telemetry.Metrics
	app     Application

	// roundLock is held for the duration of a round.
	roundLock sync.Mutex
	request   int32
	seq       int64

	statsLock  sync.RWMutex
	start      time.Time
	rounds     int
	committed  int
	incomplete int
	last       *mergecommit.Outcome
	runErr     error
}

// NewNode is a factory method that returns a Node instance. The initiator
// holds index 0 and coordinates membership; every swarm has exactly one.
// metrics may be nil.
func NewNode(conf *Config,
	id join.NodeID,
	moniker string,
	initiator bool,
	flooder flood.Flooder,
	reducer mergecommit.Reducer,
	store store.Store,
	app Application,
	metrics *telemetry.Metrics,
) (*Node, error) {

	if id == 0 {
		return nil, common.NewChaosErr("node", common.InvalidConfig, "node id 0 is reserved")
	}

	var st *join.State
	if initiator {
		st = join.NewInitiatorState(id, conf.Params.MaxNodeCount)
	} else {
		st = join.NewState(id, conf.Params.MaxNodeCount)
	}

	logger := conf.Logger.WithFields(logrus.Fields{
		"this_id": id,
		"moniker": moniker,
	})

	engine, err := mergecommit.NewEngine(conf.Params, reducer, st, flooder, logger)
	if err != nil {
		return nil, err
	}

	node := &Node{
		conf:    conf,
		logger:  logger,
		id:      id,
		moniker: moniker,
		engine:  engine,
		flooder: flooder,
		store:   store,
		metrics: metrics,
		app:     app,
		seq:     store.LastRound() + 1,
	}

	return node, nil
}

// Init sets the initial state of the node.
func (n *Node) Init() error {
	if n.engine.Initiator() {
		n.logger.Debug("Initiator => Member")
		n.SetState(_state.Member)
	} else {
		n.logger.Debug("Not a member yet => Joining")
		n.SetState(_state.Joining)
	}
	n.start = time.Now()
	return nil
}

// ID returns the 16-bit identity of the node.
func (n *Node) ID() join.NodeID {
	return n.id
}

// Moniker returns the name of the node.
func (n *Node) Moniker() string {
	return n.moniker
}

// Initiator reports whether the node coordinates membership.
func (n *Node) Initiator() bool {
	return n.engine.Initiator()
}

// RunRounds runs count rounds, pausing Config.RoundInterval between them. It
// returns early when the node is shut down or the context is done.
func (n *Node) RunRounds(ctx context.Context, count int) error {
	for i := 0; i < count; i++ {
		if n.GetState() == _state.Shutdown {
			return nil
		}

		if _, err := n.RunRound(ctx); err != nil {
			if n.GetState() == _state.Shutdown {
				return nil
			}
			return err
		}

		if n.conf.RoundInterval > 0 && i < count-1 {
			select {
			case <-time.After(n.conf.RoundInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// RunAsync calls RunRounds in a separate goroutine. Wait returns its error.
func (n *Node) RunAsync(ctx context.Context, count int) {
	n.logger.WithField("rounds", count).Debug("RunAsync")

	ok := n.GoFunc(func() {
		if err := n.RunRounds(ctx, count); err != nil {
			n.statsLock.Lock()
			n.runErr = err
			n.statsLock.Unlock()
		}
	})
	if !ok {
		n.logger.Warn("Too many routines, RunAsync ignored")
	}
}

// Wait blocks until the rounds started by RunAsync are done.
func (n *Node) Wait() error {
	n.WaitRoutines()

	n.statsLock.RLock()
	defer n.statsLock.RUnlock()
	return n.runErr
}

// RunRound runs a single round and processes its outcome.
func (n *Node) RunRound(ctx context.Context) (*mergecommit.Outcome, error) {
	n.roundLock.Lock()
	defer n.roundLock.Unlock()

	if n.GetState() == _state.Shutdown {
		return nil, common.NewChaosErr("node", common.Closed, fmt.Sprintf("node %d is shut down", n.id))
	}

	n.applyRequest()

	round := uint16(n.seq)
	proposal := n.app.Proposal(round)

	outcome, err := n.engine.RoundBegin(ctx, round, n.conf.AppID, proposal)
	if err != nil {
		n.logger.WithError(err).Debug("RoundBegin")
		return nil, err
	}

	if err := n.processOutcome(outcome); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// Leave asks the swarm to release the node's index. The request is carried by
// the next rounds until a commit evicts the node, which then keeps forwarding.
func (n *Node) Leave() error {
	if n.engine.Initiator() {
		return common.NewChaosErr("node", common.InvalidConfig, "the initiator cannot leave")
	}
	atomic.StoreInt32(&n.request, leaveRequest)
	n.SetState(_state.Leaving)
	n.logger.Debug("Leave requested")
	return nil
}

// Join asks for an index again after a Leave.
func (n *Node) Join() error {
	if n.engine.Initiator() {
		return nil
	}
	atomic.StoreInt32(&n.request, joinRequest)
	n.SetState(_state.Joining)
	n.logger.Debug("Join requested")
	return nil
}

// Shutdown releases the radio and closes the store. A round in progress is
// aborted if it has not started on the medium yet.
func (n *Node) Shutdown() {
	if n.GetState() == _state.Shutdown {
		return
	}
	n.logger.Debug("Shutdown")
	n.SetState(_state.Shutdown)

	if c, ok := n.flooder.(closer); ok {
		c.Close()
	}

	n.WaitRoutines()

	n.roundLock.Lock()
	defer n.roundLock.Unlock()

	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}
}

func (n *Node) applyRequest() {
	st := n.engine.State()
	switch atomic.SwapInt32(&n.request, noRequest) {
	case leaveRequest:
		st.SetWanted(join.Leave)
	case joinRequest:
		st.SetWanted(join.Join)
	}
}

func (n *Node) processOutcome(o *mergecommit.Outcome) error {
	n.updateState(o)

	n.statsLock.Lock()
	n.rounds++
	if o.Committed() {
		n.committed++
		if o.CompletionSlot == 0 {
			n.incomplete++
		}
	}
	n.last = o
	n.statsLock.Unlock()

	if n.metrics != nil {
		n.metrics.ObserveRound(telemetry.Label(uint16(n.id)), o)
	}

	n.logger.WithFields(logrus.Fields{
		"round":      o.Round,
		"phase":      o.Phase,
		"completion": o.CompletionSlot,
		"off":        o.OffSlot,
		"node_count": o.NodeCount,
		"config":     o.Config,
		"state":      n.GetState(),
	}).Debug("Round")

	rec := &store.RoundRecord{
		Seq:            n.seq,
		Round:          o.Round,
		Value:          o.Value,
		Committed:      o.Committed(),
		CompletionSlot: o.CompletionSlot,
		OffSlot:        o.OffSlot,
		DidTX:          o.DidTX,
		HasIndex:       o.HasIndex,
		Index:          o.Index,
		NodeCount:      o.NodeCount,
		Config:         o.Config,
		Joined:         o.Joined,
		Left:           o.Left,
		Admitted:       memberIDs(o.Admitted),
		Evicted:        memberIDs(o.Evicted),
	}
	n.seq++
	if err := n.store.SetRound(rec); err != nil {
		return err
	}

	if o.Committed() {
		if err := n.app.Commit(o); err != nil {
			n.logger.WithError(err).Error("Application commit")
			return err
		}
	}

	return nil
}

// updateState derives the node state from the membership state. A request
// that has not been applied yet keeps the state it set.
func (n *Node) updateState(o *mergecommit.Outcome) {
	if n.GetState() == _state.Shutdown || atomic.LoadInt32(&n.request) != noRequest {
		return
	}

	st := n.engine.State()
	var next _state.State
	switch {
	case st.HasIndex() && st.Wanted() == join.Leave:
		next = _state.Leaving
	case st.HasIndex():
		next = _state.Member
	case st.Wanted() == join.Leave:
		next = _state.Forwarding
	default:
		next = _state.Joining
	}

	if prev := n.GetState(); prev != next {
		n.logger.WithFields(logrus.Fields{
			"from":  prev,
			"to":    next,
			"round": o.Round,
		}).Debug("State change")
	}
	n.SetState(next)
}

func memberIDs(members []join.Member) []uint16 {
	if len(members) == 0 {
		return nil
	}
	ids := make([]uint16, len(members))
	for i, m := range members {
		ids[i] = uint16(m.ID)
	}
	return ids
}

// LastOutcome returns the outcome of the last round, or nil.
func (n *Node) LastOutcome() *mergecommit.Outcome {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()
	return n.last
}

// Store returns the round history of the node.
func (n *Node) Store() store.Store {
	return n.store
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()

	timeElapsed := time.Since(n.start)

	var roundsPerSecond float64
	if secs := timeElapsed.Seconds(); secs > 0 {
		roundsPerSecond = float64(n.rounds) / secs
	}

	index, hasIndex := "nil", false
	nodeCount, config := "0", "0"
	lastCompletion := "0"
	if n.last != nil {
		hasIndex = n.last.HasIndex
		if hasIndex {
			index = strconv.Itoa(int(n.last.Index))
		}
		nodeCount = strconv.Itoa(int(n.last.NodeCount))
		config = strconv.Itoa(int(n.last.Config))
		lastCompletion = strconv.Itoa(n.last.CompletionSlot)
	}

	s := map[string]string{
		"id":                   strconv.Itoa(int(n.id)),
		"moniker":              n.moniker,
		"state":                n.GetState().String(),
		"initiator":            strconv.FormatBool(n.engine.Initiator()),
		"index":                index,
		"node_count":           nodeCount,
		"config":               config,
		"rounds":               strconv.Itoa(n.rounds),
		"committed_rounds":     strconv.Itoa(n.committed),
		"incomplete_rounds":    strconv.Itoa(n.incomplete),
		"last_completion_slot": lastCompletion,
		"last_round":           strconv.FormatInt(n.store.LastRound(), 10),
		"rounds_per_second":    strconv.FormatFloat(roundsPerSecond, 'f', 2, 64),
	}
	return s
}

// Stats is an alias of GetStats.
func (n *Node) Stats() map[string]string {
	return n.GetStats()
}
