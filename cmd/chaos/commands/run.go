package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/mosaicnetworks/chaos/src/chaos"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that runs a simulated swarm
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a simulated swarm",
		PreRunE: loadConfig,
		RunE:    runChaos,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runChaos(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := chaos.NewChaos(&_config.Chaos)

	if err := engine.Init(); err != nil {
		_config.Chaos.Logger().Error("Cannot initialize engine:", err)
		return err
	}
	defer engine.Shutdown()

	if err := engine.Run(ctx); err != nil {
		_config.Chaos.Logger().Error("Run:", err)
		return err
	}

	if _config.Summary {
		printSummary(engine.Summary())
	}

	return nil
}

func printSummary(s chaos.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "MONIKER\tID\tSTATE\tINDEX\tROUNDS\tCOMMITTED\tGRANTED\tDENIED")
	for _, n := range s.Nodes {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			n.Moniker, n.ID, n.State, n.Index, n.Rounds, n.Committed, n.Granted, n.Denied)
	}
	w.Flush()
	fmt.Printf("disagreements: %d\n", s.Disagreements)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	c := _config.Chaos

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", c.LogFile, "Also write info and debug logs to this file")
	cmd.Flags().Bool("summary", _config.Summary, "Print a summary when done")

	// Swarm
	cmd.Flags().IntP("nodes", "n", c.Nodes, "Number of nodes, initiator included")
	cmd.Flags().IntP("rounds", "r", c.Rounds, "Number of rounds")
	cmd.Flags().Float64("loss", c.Loss, "Probability that a reception fails")
	cmd.Flags().Int64("seed", c.Seed, "Seed of the simulated medium and applications")
	cmd.Flags().Duration("round-interval", c.RoundInterval, "Pause between rounds")
	cmd.Flags().Int("leave-after", c.LeaveAfter, "Make the last node leave after this many rounds")

	// Service
	cmd.Flags().Bool("no-service", c.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", c.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", c.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", c.CacheSize, "Number of rounds kept in memory")

	// Protocol
	cmd.Flags().Int("max-nodes", c.MaxNodeCount, "Maximum number of members")
	cmd.Flags().Int("node-list-len", c.NodeListLen, "Maximum number of join requests per round")
	cmd.Flags().Int("max-slots", c.RoundMaxSlots, "Slots per round")
	cmd.Flags().Int("commit-slot", c.MaxCommitSlot, "Earliest commit slot (0: a third of max-slots)")
	cmd.Flags().Int("commit-threshold", c.CommitThreshold, "Commit this many slots after the last join change (0: off)")
	cmd.Flags().Int("n-tx-complete", c.NTxComplete, "Complete transmissions before switching off")
	cmd.Flags().Int("restart-min", c.RestartMin, "Lower bound of the retransmission threshold")
	cmd.Flags().Int("restart-max", c.RestartMax, "Upper bound (excluded) of the retransmission threshold")
	cmd.Flags().Bool("reliable-final-flood", c.ReliableFinalFlood, "Stay on until a complete packet was heard")
	cmd.Flags().Bool("advanced-stats", c.AdvancedStats, "Record per-slot statistics")

	// Application
	cmd.Flags().Int("grid-width", c.GridWidth, "Width of the tile grid")
	cmd.Flags().Int("grid-height", c.GridHeight, "Height of the tile grid")
	cmd.Flags().String("policy", c.Policy, "Tile arbitration policy: priority or arrival")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Chaos.SetDataDir(_config.Chaos.DataDir)

	_config.Chaos.SetLogger(newLogger(_config.Chaos.LogLevel, _config.Chaos.LogFile))

	c := _config.Chaos
	logFields := logrus.Fields{
		"chaos.DataDir":            c.DataDir,
		"chaos.LogLevel":           c.LogLevel,
		"chaos.Nodes":              c.Nodes,
		"chaos.Rounds":             c.Rounds,
		"chaos.Loss":               c.Loss,
		"chaos.Seed":               c.Seed,
		"chaos.RoundInterval":      c.RoundInterval,
		"chaos.LeaveAfter":         c.LeaveAfter,
		"chaos.NoService":          c.NoService,
		"chaos.ServiceAddr":        c.ServiceAddr,
		"chaos.Store":              c.Store,
		"chaos.CacheSize":          c.CacheSize,
		"chaos.MaxNodeCount":       c.MaxNodeCount,
		"chaos.NodeListLen":        c.NodeListLen,
		"chaos.RoundMaxSlots":      c.RoundMaxSlots,
		"chaos.MaxCommitSlot":      c.MaxCommitSlot,
		"chaos.CommitThreshold":    c.CommitThreshold,
		"chaos.NTxComplete":        c.NTxComplete,
		"chaos.ReliableFinalFlood": c.ReliableFinalFlood,
		"chaos.Policy":             c.Policy,
	}

	if c.Store {
		logFields["chaos.DatabaseDir"] = c.DatabaseDir
	}

	_config.Chaos.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/chaos.toml (.json, .yaml also work)
	viper.SetConfigName("chaos")               // name of config file (without extension)
	viper.AddConfigPath(_config.Chaos.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Chaos.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Chaos.Logger().Debugf("No config file found in: %s", _config.Chaos.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
