package commands

import (
	"fmt"

	"github.com/mosaicnetworks/chaos/src/version"
	"github.com/spf13/cobra"
)

// VersionCmd prints the version, and the commit when it was set at build time.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		if version.GitCommit != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "commit:", version.GitCommit)
		}
	},
}
