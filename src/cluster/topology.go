package cluster

import (
	"fmt"
	"path/filepath"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/spf13/viper"
)

// NodeConfig is one [[nodes]] entry of the cluster topology file.
type NodeConfig struct {
	ID       string `mapstructure:"id"`
	Role     string `mapstructure:"role"`
	Host     string `mapstructure:"host"`
	RPCPort  int    `mapstructure:"rpc_port"`
	HTTPPort int    `mapstructure:"http_port"`
	P2PPort  int    `mapstructure:"p2p_port"`
	VFNPort  int    `mapstructure:"vfn_port"`
	DataDir  string `mapstructure:"data_dir"`
}

// GenesisConfig is the [genesis] table of the topology file. Faucet lists the
// accounts to pre-fund, and Secrets the private keys the faucet addresses are
// matched against. Both are optional: without secrets the standard devnet
// keys are the matching pool.
type GenesisConfig struct {
	Faucet  []string `mapstructure:"faucet"`
	Secrets []string `mapstructure:"secrets"`

	// EpochIntervalMicros overrides the default epoch duration baked into the
	// genesis document.
	EpochIntervalMicros uint64 `mapstructure:"epoch_interval_micros"`
}

// Topology is the parsed cluster.toml: the base directory, the ordered node
// list, and the genesis parameters. Node order in the file is the order
// convergence loops use when choosing which nodes to start or stop.
type Topology struct {
	BaseDir string
	Nodes   []NodeConfig
	Genesis GenesisConfig
}

// LoadTopology reads and validates a cluster topology file. The file is
// shared with the deployment scripts, so it is located by explicit path
// rather than searched for.
func LoadTopology(path string) (*Topology, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading cluster file %s: %v", path, err)
	}

	var raw struct {
		Cluster struct {
			BaseDir string `mapstructure:"base_dir"`
		} `mapstructure:"cluster"`
		Nodes   []NodeConfig  `mapstructure:"nodes"`
		Genesis GenesisConfig `mapstructure:"genesis"`
	}

	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("parsing cluster file %s: %v", path, err)
	}

	topo := &Topology{
		BaseDir: raw.Cluster.BaseDir,
		Nodes:   raw.Nodes,
		Genesis: raw.Genesis,
	}

	if err := topo.validate(); err != nil {
		return nil, err
	}

	// Relative node directories hang off the base directory; nodes without an
	// explicit directory get <base_dir>/<id>.
	for i := range topo.Nodes {
		n := &topo.Nodes[i]
		if n.DataDir == "" {
			n.DataDir = filepath.Join(topo.BaseDir, n.ID)
		} else if !filepath.IsAbs(n.DataDir) {
			n.DataDir = filepath.Join(topo.BaseDir, n.DataDir)
		}
		if n.Host == "" {
			n.Host = "127.0.0.1"
		}
	}

	return topo, nil
}

func (t *Topology) validate() error {
	if len(t.Nodes) == 0 {
		return common.NewOpError("LoadTopology", common.UsageError, "cluster file defines no nodes")
	}

	seen := map[string]bool{}
	for _, n := range t.Nodes {
		if n.ID == "" {
			return common.NewOpError("LoadTopology", common.UsageError, "node with empty id")
		}
		if seen[n.ID] {
			return common.NewOpErrorf("LoadTopology", common.UsageError, "duplicate node id %s", n.ID)
		}
		seen[n.ID] = true

		switch n.Role {
		case "genesis", "validator":
		case "":
			return common.NewOpErrorf("LoadTopology", common.UsageError, "node %s has no role", n.ID)
		default:
			return common.NewOpErrorf("LoadTopology", common.UsageError, "node %s has unknown role %s", n.ID, n.Role)
		}

		if n.RPCPort == 0 {
			return common.NewOpErrorf("LoadTopology", common.UsageError, "node %s has no rpc_port", n.ID)
		}
	}

	return nil
}
