package commands

import (
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/spf13/cobra"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for gravityctl
var RootCmd = &cobra.Command{
	Use:              "gravityctl",
	Short:            "gravity devnet cluster harness",
	TraverseChildren: true,
}
