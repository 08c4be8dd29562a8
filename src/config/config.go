package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/chaos/src/common"
	"github.com/mosaicnetworks/chaos/src/join"
	"github.com/mosaicnetworks/chaos/src/mergecommit"
	"github.com/mosaicnetworks/chaos/src/tiles"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigName is the base name of the optional configuration file
	DefaultConfigName = "chaos"
)

// Default configuration values.
const (
	DefaultLogLevel      = "debug"
	DefaultServiceAddr   = "127.0.0.1:8000"
	DefaultNodes         = 5
	DefaultRounds        = 10
	DefaultLoss          = 0.0
	DefaultSeed          = 1
	DefaultRoundInterval = 0 * time.Millisecond
	DefaultCacheSize     = 500
	DefaultStore         = false
	DefaultGridWidth     = 4
	DefaultGridHeight    = 4
	DefaultPolicy        = "priority"
)

// Config contains all the configuration properties of a Chaos swarm.
type Config struct {
	// DataDir is the top-level directory containing Chaos configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates debug and info logs into this file.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Nodes is the number of simulated nodes, initiator included.
	Nodes int `mapstructure:"nodes"`

	// Rounds is the number of rounds to run.
	Rounds int `mapstructure:"rounds"`

	// Loss is the probability that a reception fails in the simulated medium.
	Loss float64 `mapstructure:"loss"`

	// Seed seeds the simulated medium, the retry jitter and the applications.
	Seed int64 `mapstructure:"seed"`

	// RoundInterval is the pause between two rounds.
	RoundInterval time.Duration `mapstructure:"round-interval"`

	// LeaveAfter, when positive, makes the last node leave the swarm after
	// this many rounds.
	LeaveAfter int `mapstructure:"leave-after"`

	// Store activates persistant storage of the round history.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the number of rounds kept by the in-memory store.
	CacheSize int `mapstructure:"cache-size"`

	// MaxNodeCount bounds the number of simultaneous members.
	MaxNodeCount int `mapstructure:"max-nodes"`

	// NodeListLen bounds the number of join requests per round.
	NodeListLen int `mapstructure:"node-list-len"`

	// RoundMaxSlots is the slot budget of a round.
	RoundMaxSlots int `mapstructure:"max-slots"`

	// MaxCommitSlot is the earliest slot at which the initiator commits. 0
	// means a third of RoundMaxSlots.
	MaxCommitSlot int `mapstructure:"commit-slot"`

	// CommitThreshold lets the initiator commit this many slots after the
	// last join list change. 0 disables it.
	CommitThreshold int `mapstructure:"commit-threshold"`

	// NTxComplete is the number of complete transmissions before a node turns
	// its radio off.
	NTxComplete int `mapstructure:"n-tx-complete"`

	// RestartMin and RestartMax bound the randomized retransmission threshold.
	RestartMin int `mapstructure:"restart-min"`
	RestartMax int `mapstructure:"restart-max"`

	// ReliableFinalFlood keeps nodes on until they heard a complete packet.
	ReliableFinalFlood bool `mapstructure:"reliable-final-flood"`

	// AdvancedStats records per-slot statistics.
	AdvancedStats bool `mapstructure:"advanced-stats"`

	// GridWidth and GridHeight size the tile grid of the dummy application.
	GridWidth  int `mapstructure:"grid-width"`
	GridHeight int `mapstructure:"grid-height"`

	// Policy is the tile arbitration policy, "priority" or "arrival".
	Policy string `mapstructure:"policy"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	params := mergecommit.DefaultParams()

	config := &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           DefaultLogLevel,
		ServiceAddr:        DefaultServiceAddr,
		Nodes:              DefaultNodes,
		Rounds:             DefaultRounds,
		Loss:               DefaultLoss,
		Seed:               DefaultSeed,
		RoundInterval:      DefaultRoundInterval,
		Store:              DefaultStore,
		DatabaseDir:        DefaultDatabaseDir(),
		CacheSize:          DefaultCacheSize,
		MaxNodeCount:       params.MaxNodeCount,
		NodeListLen:        params.NodeListLen,
		RoundMaxSlots:      params.RoundMaxSlots,
		MaxCommitSlot:      0,
		CommitThreshold:    params.CommitThreshold,
		NTxComplete:        params.NTxComplete,
		RestartMin:         params.RestartMin,
		RestartMax:         params.RestartMax,
		ReliableFinalFlood: params.ReliableFinalFlood,
		AdvancedStats:      params.AdvancedStats,
		GridWidth:          DefaultGridWidth,
		GridHeight:         DefaultGridHeight,
		Policy:             DefaultPolicy,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level Chaos directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Params returns the protocol parameters.
func (c *Config) Params() mergecommit.Params {
	commitSlot := c.MaxCommitSlot
	if commitSlot == 0 {
		commitSlot = c.RoundMaxSlots / 3
	}
	listLen := c.NodeListLen
	if listLen == 0 {
		listLen = join.DefaultNodeListLen
	}
	return mergecommit.Params{
		MaxNodeCount:       c.MaxNodeCount,
		NodeListLen:        listLen,
		RoundMaxSlots:      c.RoundMaxSlots,
		MaxCommitSlot:      commitSlot,
		CommitThreshold:    c.CommitThreshold,
		NTxComplete:        c.NTxComplete,
		RestartMin:         c.RestartMin,
		RestartMax:         c.RestartMax,
		ReliableFinalFlood: c.ReliableFinalFlood,
		AdvancedStats:      c.AdvancedStats,
		Seed:               c.Seed,
	}
}

// Grid returns the tile grid of the dummy application.
func (c *Config) Grid() tiles.Grid {
	return tiles.Grid{
		Width:    c.GridWidth,
		Height:   c.GridHeight,
		MaxNodes: c.MaxNodeCount,
	}
}

// TilePolicy parses Policy.
func (c *Config) TilePolicy() tiles.Policy {
	if c.Policy == "arrival" {
		return tiles.ByArrival
	}
	return tiles.ByPriority
}

// Logger returns a formatted logrus Entry, with prefix set to "chaos".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "chaos")
}

// SetLogger replaces the logger returned by Logger.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Chaos config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Chaos")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Chaos")
		} else {
			return filepath.Join(home, ".chaos")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
