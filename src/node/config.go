package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/sirupsen/logrus"
)

// Config contains the settings of a node.
type Config struct {
	// AppID is carried in the flood parameters and tells applications sharing
	// a medium apart.
	AppID uint8 `mapstructure:"app-id"`
	// RoundInterval is the pause between two rounds in RunRounds.
	RoundInterval time.Duration `mapstructure:"round-interval"`
	Params        mergecommit.Params
	Logger        *logrus.Logger
}

// NewConfig ...
func NewConfig(appID uint8,
	roundInterval time.Duration,
	params mergecommit.Params,
	logger *logrus.Logger) *Config {

	return &Config{
		AppID:         appID,
		RoundInterval: roundInterval,
		Params:        params,
		Logger:        logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		AppID:  1,
		Params: mergecommit.DefaultParams(),
		Logger: logger,
	}
}

// TestConfig returns a config with a short round budget and a logger that
// writes to the test log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Params.RoundMaxSlots = 150
	config.Params.MaxCommitSlot = 50
	config.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return config
}
