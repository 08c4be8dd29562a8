package config

import (
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/chaos/src/tiles"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	conf := NewDefaultConfig()
	p := conf.Params()

	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 16, p.MaxNodeCount)
	assert.Equal(t, 10, p.NodeListLen)
	assert.Equal(t, 350, p.RoundMaxSlots)
	assert.Equal(t, 116, p.MaxCommitSlot)
	assert.Equal(t, 0, p.CommitThreshold)
	assert.Equal(t, 9, p.NTxComplete)
	assert.True(t, p.ReliableFinalFlood)

	conf.MaxCommitSlot = 20
	assert.Equal(t, 20, conf.Params().MaxCommitSlot)
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/chaos")
	assert.Equal(t, filepath.Join("/tmp/chaos", DefaultBadgerFile), conf.DatabaseDir)

	conf.DatabaseDir = "/somewhere/else"
	conf.SetDataDir("/tmp/other")
	assert.Equal(t, "/somewhere/else", conf.DatabaseDir)
}

func TestGridAndPolicy(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	g := conf.Grid()
	assert.Equal(t, 16, g.NumTiles())
	assert.Equal(t, conf.MaxNodeCount, g.MaxNodes)

	assert.Equal(t, tiles.ByPriority, conf.TilePolicy())
	conf.Policy = "arrival"
	assert.Equal(t, tiles.ByArrival, conf.TilePolicy())

	assert.Equal(t, "chaos", conf.Logger().Data["prefix"])
	assert.Equal(t, logrus.WarnLevel, LogLevel("warn"))
}
