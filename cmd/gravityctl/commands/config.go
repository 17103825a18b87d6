package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddConfigFlags adds the flags every cluster command shares.
func AddConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for harness data")
	cmd.Flags().String("cluster", _config.ClusterFile, "Path of the cluster topology file")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.LogDir, "Directory for per-level log files")
	cmd.Flags().DurationP("converge-timeout", "t", _config.ConvergeTimeout, "Convergence deadline")
	cmd.Flags().Duration("converge-interval", _config.ConvergeInterval, "Pause between convergence iterations")
	cmd.Flags().Duration("probe-timeout", _config.ProbeTimeout, "Single RPC/HTTP probe deadline")
}

// loadConfig is the PreRunE of every command: flags first, then an optional
// gravityctl.toml in the data directory.
func loadConfig(cmd *cobra.Command, args []string) error {
	return bindFlagsLoadViper(cmd)
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/gravityctl.toml (.json, .yaml also work)
	viper.SetConfigName("gravityctl")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// If --datadir was explicitely set, this updates the default journal dir
	// to live inside the new datadir
	_config.SetDataDir(_config.DataDir)

	return nil
}
