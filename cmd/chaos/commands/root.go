package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Chaos
var RootCmd = &cobra.Command{
	Use:              "chaos",
	Short:            "chaos merge-commit consensus simulator",
	TraverseChildren: true,
}
