package commands

import (
	"github.com/mosaicnetworks/chaos/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Chaos   config.Config `mapstructure:",squash"`
	Summary bool          `mapstructure:"summary"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Chaos:   *config.NewDefaultConfig(),
		Summary: true,
	}
}
