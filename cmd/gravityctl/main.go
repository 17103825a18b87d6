package main

import (
	"os"

	cmd "github.com/Richard1048576/gravity-sdk/cmd/gravityctl/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewKeygenCmd(),
		cmd.NewGenesisCmd(),
		cmd.NewUpCmd(),
		cmd.NewDownCmd(),
		cmd.NewStatusCmd(),
		cmd.NewNodeCmd(),
		cmd.NewCheckCmd(),
		cmd.NewFundCmd(),
		cmd.NewFuzzCmd(),
		cmd.NewHistoryCmd())

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
