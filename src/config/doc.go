// Package config defines the configuration for the cluster harness.
//
// Regardless of how the harness is started, directly from Go code or as the
// gravityctl command line tool, it uses the Config object defined in this
// package to store and forward configuration options. On top of these options,
// the harness relies on a data directory, defined by Config.DataDir, where it
// keeps its own artifacts:
//
//  gravityctl.toml // (optional) a config file overriding the defaults below.
//  journal/        // the badger database recording fuzz run history.
//  priv_key        // a plain text file containing a raw private key (cf. gravityctl keygen).
//
// The cluster topology itself lives in a separate cluster.toml, shared with
// the node deployment scripts, whose location is given by Config.ClusterFile.
package config
