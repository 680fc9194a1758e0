package commands

import (
	"github.com/spf13/cobra"

	"github.com/meshnetworks/relay/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for relay
var RootCmd = &cobra.Command{
	Use:              "relay",
	Short:            "relay broadcast node",
	TraverseChildren: true,
}
