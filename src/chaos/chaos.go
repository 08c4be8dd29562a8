// Package chaos assembles a simulated Chaos swarm: an in-memory radio medium,
// one node per configured member with its store and dummy application, shared
// metrics and the optional HTTP service.
package chaos

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/config"
	"github.com/mosaicnetworks/chaos/src/dummy"
	"github.com/mosaicnetworks/chaos/src/flood"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/node"
	"github.com/mosaicnetworks/chaos/src/service"
	"github.com/mosaicnetworks/chaos/src/store"
	"github.com/mosaicnetworks/chaos/src/telemetry"
	"github.com/mosaicnetworks/chaos/src/version"
	"github.com/sirupsen/logrus"
)

// Chaos is a simulated swarm.
type Chaos struct {
	Config  *config.Config
	Medium  *flood.Medium
	Nodes   []*node.Node
	Apps    []*dummy.App
	Metrics *telemetry.Metrics
	Service *service.Service

	logger *logrus.Entry
}

// NewChaos ...
func NewChaos(config *config.Config) *Chaos {
	engine := &Chaos{
		Config: config,
		logger: config.Logger(),
	}

	return engine
}

// Moniker returns the name of the i-th node. Node 0 is the initiator.
func Moniker(i int) string {
	return fmt.Sprintf("node%d", i)
}

func (c *Chaos) initMedium() error {
	if c.Config.Loss < 0 || c.Config.Loss > 1 {
		return common.NewChaosErr("chaos", common.InvalidConfig,
			fmt.Sprintf("loss %v is not a probability", c.Config.Loss))
	}

	channel := flood.NewLossyChannel(c.Config.Loss, c.Config.Seed)
	c.Medium = flood.NewMedium(channel, c.logger)

	return nil
}

func (c *Chaos) initStore(moniker string) (store.Store, error) {
	if !c.Config.Store {
		c.logger.WithField("moniker", moniker).Debug("created new in-mem store")

		return store.NewInmemStore(c.Config.CacheSize), nil
	}

	if err := os.MkdirAll(c.Config.DatabaseDir, 0700); err != nil {
		return nil, err
	}
	path := filepath.Join(c.Config.DatabaseDir, moniker)

	c.logger.WithField("path", path).Debug("Attempting to load or create database")

	return store.LoadOrCreateBadgerStore(c.Config.CacheSize, path)
}

func (c *Chaos) initNodes() error {
	if c.Config.Nodes < 1 {
		return common.NewChaosErr("chaos", common.InvalidConfig, "a swarm needs at least one node")
	}

	nodeConf := node.NewConfig(1,
		c.Config.RoundInterval,
		c.Config.Params(),
		c.logger.Logger,
	)

	if err := nodeConf.Params.Validate(); err != nil {
		return err
	}
	if err := c.Config.Grid().Validate(); err != nil {
		return err
	}

	ids := map[join.NodeID]string{}
	for i := 0; i < c.Config.Nodes; i++ {
		moniker := Moniker(i)

		id := join.NodeID(common.NodeIDFromMoniker(moniker))
		if other, ok := ids[id]; ok {
			return common.NewChaosErr("chaos", common.InvalidConfig,
				fmt.Sprintf("%s and %s share identity %d", other, moniker, id))
		}
		ids[id] = moniker

		st, err := c.initStore(moniker)
		if err != nil {
			return err
		}

		app, err := dummy.NewApp(c.Config.Grid(), c.Config.TilePolicy(), c.Config.Seed+int64(i), c.logger.WithField("moniker", moniker))
		if err != nil {
			st.Close()
			return err
		}

		n, err := node.NewNode(nodeConf,
			id,
			moniker,
			i == 0,
			c.Medium.Attach(),
			app.Reducer(),
			st,
			app,
			c.Metrics,
		)
		if err != nil {
			st.Close()
			return err
		}

		if err := n.Init(); err != nil {
			return fmt.Errorf("failed to initialize node: %s", err)
		}

		c.Nodes = append(c.Nodes, n)
		c.Apps = append(c.Apps, app)
	}

	c.logger.WithFields(logrus.Fields{
		"nodes":  len(c.Nodes),
		"radios": c.Medium.Radios(),
	}).Debug("NODES")

	return nil
}

func (c *Chaos) initService() error {
	if !c.Config.NoService && c.Config.ServiceAddr != "" {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Nodes, c.Metrics, c.logger)
	}
	return nil
}

// Init creates the medium, the nodes and the service.
func (c *Chaos) Init() error {
	c.Metrics = telemetry.NewMetrics("chaos")
	c.Metrics.SetBuildInfo(version.Version)

	if err := c.initMedium(); err != nil {
		return err
	}

	if err := c.initNodes(); err != nil {
		c.Shutdown()
		return err
	}

	if err := c.initService(); err != nil {
		c.Shutdown()
		return err
	}

	return nil
}

// Run runs Config.Rounds rounds on every node. When Config.LeaveAfter is set,
// the last node asks to leave after that many rounds.
func (c *Chaos) Run(ctx context.Context) error {
	if c.Service != nil {
		go c.Service.Serve()
	}

	start := time.Now()

	rounds := c.Config.Rounds
	if after := c.Config.LeaveAfter; after > 0 && after < rounds && len(c.Nodes) > 1 {
		if err := c.runAll(ctx, after); err != nil {
			return err
		}

		leaver := c.Nodes[len(c.Nodes)-1]
		c.logger.WithField("moniker", leaver.Moniker()).Info("Leaving")
		if err := leaver.Leave(); err != nil {
			return err
		}

		rounds -= after
	}

	if err := c.runAll(ctx, rounds); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"rounds":   c.Config.Rounds,
		"duration": time.Since(start),
	}).Info("Done")

	return nil
}

func (c *Chaos) runAll(ctx context.Context, rounds int) error {
	for _, n := range c.Nodes {
		n.RunAsync(ctx, rounds)
	}

	var firstErr error
	for _, n := range c.Nodes {
		if err := n.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown stops the service and every node.
func (c *Chaos) Shutdown() {
	if c.Service != nil {
		if err := c.Service.Close(); err != nil {
			c.logger.WithError(err).Error("Closing service")
		}
	}
	for _, n := range c.Nodes {
		n.Shutdown()
	}
}

// NodeSummary sums up the rounds of one node.
type NodeSummary struct {
	Moniker   string
	ID        uint16
	State     string
	Index     string
	Rounds    string
	Committed string
	Granted   int
	Denied    int
}

// Summary sums up a run.
type Summary struct {
	Nodes []NodeSummary
	// Disagreements counts rounds in which two nodes that completed the
	// COMMIT phase hold different values.
	Disagreements int
}

// Summary must be called after Run and before Shutdown.
func (c *Chaos) Summary() Summary {
	res := Summary{}

	for i, n := range c.Nodes {
		stats := n.GetStats()
		granted, denied := c.Apps[i].Stats()
		res.Nodes = append(res.Nodes, NodeSummary{
			Moniker:   n.Moniker(),
			ID:        uint16(n.ID()),
			State:     stats["state"],
			Index:     stats["index"],
			Rounds:    stats["rounds"],
			Committed: stats["committed_rounds"],
			Granted:   granted,
			Denied:    denied,
		})
	}

	if len(c.Nodes) == 0 {
		return res
	}

	last := c.Nodes[0].Store().LastRound()
	for seq := int64(0); seq <= last; seq++ {
		var agreed []byte
		for _, n := range c.Nodes {
			rec, err := n.Store().GetRound(seq)
			if err != nil || !rec.Committed || rec.CompletionSlot == 0 {
				continue
			}
			if agreed == nil {
				agreed = rec.Value
			} else if !bytes.Equal(agreed, rec.Value) {
				res.Disagreements++
				break
			}
		}
	}

	return res
}
