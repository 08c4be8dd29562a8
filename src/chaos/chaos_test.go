package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/config"
	"github.com/mosaicnetworks/chaos/src/node/state"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, nodes, rounds int) *config.Config {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.Nodes = nodes
	conf.Rounds = rounds
	conf.NoService = true
	conf.MaxNodeCount = 8
	conf.RoundMaxSlots = 150
	conf.MaxCommitSlot = 50
	return conf
}

func run(t *testing.T, conf *config.Config) *Chaos {
	engine := NewChaos(conf)
	require.NoError(t, engine.Init())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, engine.Run(ctx))

	return engine
}

func TestSwarmWithLeave(t *testing.T) {
	conf := testConfig(t, 4, 5)
	conf.LeaveAfter = 2

	engine := run(t, conf)
	defer engine.Shutdown()

	summary := engine.Summary()
	assert.Equal(t, 0, summary.Disagreements)
	require.Len(t, summary.Nodes, 4)

	for i, n := range engine.Nodes[:3] {
		assert.Equal(t, state.Member, n.GetState(), "node %d", i)
	}
	assert.Equal(t, state.Forwarding, engine.Nodes[3].GetState())

	for _, s := range summary.Nodes {
		assert.Equal(t, "5", s.Rounds, s.Moniker)
		assert.Equal(t, "5", s.Committed, s.Moniker)
	}
	assert.Equal(t, "nil", summary.Nodes[3].Index)
	assert.Equal(t, "0", summary.Nodes[0].Index)
}

func TestSwarmUnderLoss(t *testing.T) {
	conf := testConfig(t, 5, 6)
	conf.Loss = 0.3
	conf.Seed = 42

	engine := run(t, conf)
	defer engine.Shutdown()

	assert.Equal(t, 0, engine.Summary().Disagreements)
}

func TestSwarmBadgerStore(t *testing.T) {
	conf := testConfig(t, 2, 3)
	conf.Store = true
	conf.SetDataDir(t.TempDir())

	engine := run(t, conf)
	assert.Equal(t, int64(2), engine.Nodes[0].Store().LastRound())
	engine.Shutdown()

	// the history continues where it stopped
	engine = run(t, conf)
	defer engine.Shutdown()
	assert.Equal(t, int64(5), engine.Nodes[0].Store().LastRound())

	rec, err := engine.Nodes[1].Store().GetRound(1)
	require.NoError(t, err)
	assert.True(t, rec.Committed)
}

func TestInvalidConfig(t *testing.T) {
	conf := testConfig(t, 0, 1)
	assert.Error(t, NewChaos(conf).Init())

	conf = testConfig(t, 2, 1)
	conf.Loss = 1.5
	assert.Error(t, NewChaos(conf).Init())

	conf = testConfig(t, 2, 1)
	conf.RestartMin = 10
	conf.RestartMax = 5
	assert.Error(t, NewChaos(conf).Init())

	// valid for the protocol, but index 255 has no tile owner byte
	conf = testConfig(t, 2, 1)
	conf.MaxNodeCount = 256
	err := NewChaos(conf).Init()
	assert.True(t, common.Is(err, common.InvalidConfig), "got %v", err)
}
