// Package dummy implements a tile-reservation application used to exercise a
// Chaos swarm.
//
// Every member repeatedly picks a random route across a tile grid and asks the
// swarm to reserve its tiles. Conflicting requests are arbitrated by the tiles
// reducer while the round merges. When a committed plan grants the whole route,
// the member holds it for a few rounds and then releases it.
package dummy

import (
	"math/rand"
	"sync"

	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/mosaicnetworks/chaos/src/tiles"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHoldRounds is the number of committed rounds a granted route is
	// held before it is released.
	DefaultHoldRounds = 3

	// heldClaim is the priority of a route that is already held. Holders are
	// served before new requests so that a grant is never taken back.
	heldClaim = 0xFFFF
)

// App is the dummy application. It implements the node.Application interface.
type App struct {
	sync.Mutex

	grid       tiles.Grid
	policy     tiles.Policy
	holdRounds int
	rng        *rand.Rand
	logger     *logrus.Entry

	hasIndex bool
	index    uint8

	wanted   tiles.Path
	priority uint16
	arrival  uint16
	held     tiles.Path
	heldFor  int

	committed [][]byte
	granted   int
	denied    int
}

// NewApp creates a dummy application. The grid must pass Grid.Validate.
func NewApp(grid tiles.Grid, policy tiles.Policy, seed int64, logger *logrus.Entry) (*App, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	app := &App{
		grid:       grid,
		policy:     policy,
		holdRounds: DefaultHoldRounds,
		rng:        rand.New(rand.NewSource(seed)),
		logger:     logger.WithField("component", "dummy"),
		committed:  [][]byte{},
	}

	app.logger.Debug("Init Dummy App")

	return app, nil
}

// Reducer returns the reducer the swarm must use with this application.
func (a *App) Reducer() tiles.Reducer {
	return tiles.Reducer{Grid: a.grid, Policy: a.policy}
}

// Proposal implements the node.Application interface. Nodes without an index
// propose an empty plan; the engine does not reduce their value anyway.
func (a *App) Proposal(round uint16) []byte {
	a.Lock()
	defer a.Unlock()

	plan := a.grid.NewPlan()
	if !a.hasIndex {
		return plan.Bytes()
	}
	owner := tiles.Owner(a.index)

	switch {
	case len(a.held) > 0:
		plan.Reserve(a.held, owner)
		plan.Claims[a.index] = a.heldClaim()
	default:
		if len(a.wanted) == 0 {
			a.pickRoute(round)
		}
		plan.Reserve(a.wanted, owner)
		plan.Claims[a.index] = a.claim()
	}

	return plan.Bytes()
}

// Commit implements the node.Application interface.
func (a *App) Commit(o *mergecommit.Outcome) error {
	a.Lock()
	defer a.Unlock()

	a.committed = append(a.committed, o.Value)

	if !o.HasIndex {
		a.reset()
		a.hasIndex = false
		return nil
	}
	if !a.hasIndex || a.index != o.Index {
		// a new index invalidates whatever was held under the old one
		a.reset()
	}
	a.hasIndex = true
	a.index = o.Index

	plan, err := a.grid.Decode(o.Value)
	if err != nil {
		return err
	}
	owner := tiles.Owner(a.index)

	if len(a.held) > 0 {
		a.heldFor++
		if a.heldFor >= a.holdRounds {
			a.logger.WithField("path", a.held).Debug("Release")
			a.reset()
		}
		return nil
	}

	if len(a.wanted) == 0 {
		return nil
	}

	if plan.PathReserved(a.wanted, owner) {
		a.logger.WithFields(logrus.Fields{
			"round": o.Round,
			"path":  a.wanted,
		}).Debug("Granted")
		a.granted++
		a.held = a.wanted
		a.wanted = nil
		a.heldFor = 0
	} else {
		a.denied++
	}

	return nil
}

// Held returns the route currently held, if any.
func (a *App) Held() tiles.Path {
	a.Lock()
	defer a.Unlock()
	return a.held
}

// Stats returns the number of granted and denied requests.
func (a *App) Stats() (granted, denied int) {
	a.Lock()
	defer a.Unlock()
	return a.granted, a.denied
}

// GetCommittedValues returns the agreed values seen so far.
func (a *App) GetCommittedValues() [][]byte {
	a.Lock()
	defer a.Unlock()
	return a.committed
}

func (a *App) pickRoute(round uint16) {
	g := a.grid
	x0, y0 := a.rng.Intn(g.Width), a.rng.Intn(g.Height)
	x1, y1 := a.rng.Intn(g.Width), a.rng.Intn(g.Height)
	a.wanted = g.Route(x0, y0, x1, y1)
	a.priority = uint16(1 + a.rng.Intn(heldClaim-1))
	// arrival 0 means none
	a.arrival = round + 1
	if a.arrival == 0 {
		a.arrival = 1
	}
}

func (a *App) claim() uint16 {
	if a.policy == tiles.ByArrival {
		return a.arrival
	}
	return a.priority
}

func (a *App) heldClaim() uint16 {
	if a.policy == tiles.ByArrival {
		return 1
	}
	return heldClaim
}

func (a *App) reset() {
	a.wanted = nil
	a.held = nil
	a.heldFor = 0
}
