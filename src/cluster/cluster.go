// Package cluster assembles the cluster's nodes under one convergence
// authority. It loads the topology file, resolves the faucet accounts, and
// drives the cluster toward declared targets with observe-diff-act loops.
package cluster

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/faucet"
	"github.com/Richard1048576/gravity-sdk/src/genesis"
	"github.com/Richard1048576/gravity-sdk/src/node"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/Richard1048576/gravity-sdk/src/proc"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Cluster owns the set of nodes under one convergence authority, plus the
// faucet accounts of the devnet. The node set is built once at load time and
// never changes during a run; only the nodes' states do.
type Cluster struct {
	conf    *config.Config
	topo    *Topology
	nodes   []*node.Node
	byID    map[string]*node.Node
	faucets []faucet.Account
	runner  *proc.Runner
	logger  *logrus.Entry
}

// Load builds a cluster from the topology file named by the configuration.
// Node order in the file is preserved: it decides which nodes scale-up and
// scale-down touch first.
func Load(conf *config.Config) (*Cluster, error) {
	topo, err := LoadTopology(conf.ClusterFile)
	if err != nil {
		return nil, err
	}

	logger := conf.Logger().WithField("prefix", "cluster")

	nodes := make([]*node.Node, 0, len(topo.Nodes))
	byID := make(map[string]*node.Node, len(topo.Nodes))

	for _, nc := range topo.Nodes {
		n, err := node.New(conf, node.Params{
			ID:        nc.ID,
			Role:      node.Role(nc.Role),
			Host:      nc.Host,
			RPCURL:    fmt.Sprintf("http://%s:%d", nc.Host, nc.RPCPort),
			HTTPURL:   fmt.Sprintf("http://%s:%d", nc.Host, nc.HTTPPort),
			P2PPort:   nc.P2PPort,
			VFNPort:   nc.VFNPort,
			DataDir:   nc.DataDir,
			ScriptDir: nc.DataDir,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building node %s: %v", nc.ID, err)
		}

		nodes = append(nodes, n)
		byID[n.ID] = n
	}

	faucets, err := faucet.Accounts(topo.Genesis.Faucet, topo.Genesis.Secrets)
	if err != nil {
		return nil, err
	}

	return &Cluster{
		conf:    conf,
		topo:    topo,
		nodes:   nodes,
		byID:    byID,
		faucets: faucets,
		runner:  proc.NewRunner(logger),
		logger:  logger,
	}, nil
}

// Topology returns the parsed cluster file the cluster was built from.
func (c *Cluster) Topology() *Topology {
	return c.topo
}

// Nodes returns the cluster's nodes in configuration order.
func (c *Cluster) Nodes() []*node.Node {
	return c.nodes
}

// Node returns the node with the given id, or a usage error.
func (c *Cluster) Node(id string) (*node.Node, error) {
	n, ok := c.byID[id]
	if !ok {
		return nil, common.NewOpErrorf("Node", common.UsageError, "unknown node id %s", id)
	}
	return n, nil
}

// Faucets returns the resolved faucet accounts.
func (c *Cluster) Faucets() []faucet.Account {
	return c.faucets
}

// Observation is one node's state as seen during a single observation pass.
type Observation struct {
	Node   *node.Node
	State  state.State
	Height uint64
}

// observe probes every node concurrently and returns one observation per
// node, in configuration order. Observations are only valid for the iteration
// that made them: acting on a previous iteration's pass is what the
// convergence loops exist to avoid.
func (c *Cluster) observe(ctx context.Context) []Observation {
	obs := make([]Observation, len(c.nodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range c.nodes {
		i, n := i, n
		g.Go(func() error {
			st, height := n.State(gctx)
			obs[i] = Observation{Node: n, State: st, Height: height}
			return nil
		})
	}
	g.Wait()

	return obs
}

// Status runs one observation pass over the whole cluster and returns the
// per-node rows.
func (c *Cluster) Status(ctx context.Context) []Observation {
	return c.observe(ctx)
}

// Start runs the cluster-level start script at the base directory. It brings
// the whole deployment up in one shot, as opposed to the per-node
// convergence of SetFullLive.
func (c *Cluster) Start(ctx context.Context) error {
	script := filepath.Join(c.topo.BaseDir, node.StartScript)
	return c.runner.Run(ctx, script, c.topo.BaseDir, "--config", c.conf.ClusterFile)
}

// Stop runs the cluster-level stop script at the base directory.
func (c *Cluster) Stop(ctx context.Context) error {
	script := filepath.Join(c.topo.BaseDir, node.StopScript)
	return c.runner.Run(ctx, script, c.topo.BaseDir)
}

// Purge force-kills every process running the node binary. It is the cleanup
// of last resort for nodes that lost their PID files.
func (c *Cluster) Purge(ctx context.Context) (int, error) {
	return proc.KillByName(ctx, c.conf.NodeBin, c.logger)
}

// Identity loads the on-disk validator identity of the given node.
func (c *Cluster) Identity(id string) (*genesis.Identity, error) {
	n, err := c.Node(id)
	if err != nil {
		return nil, err
	}
	return genesis.LoadIdentity(genesis.IdentityPath(n.DataDir))
}

// Fund transfers amount wei from the primary faucet account to the given
// node's validator account, and waits for the transfer to be mined. Nodes
// need a funded account before a join command can bond stake.
func (c *Cluster) Fund(ctx context.Context, id string, amount *big.Int) (ethcommon.Hash, error) {
	if len(c.faucets) == 0 {
		return ethcommon.Hash{}, common.NewOpError("Fund", common.UsageError, "no faucet accounts configured")
	}

	n, err := c.Node(id)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	ident, err := c.Identity(id)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	to := ethcommon.HexToAddress(ident.EthAddress())

	hash, err := faucet.SendEther(ctx, n.RPC(), c.faucets[0], to, amount)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"node":   id,
		"to":     to.Hex(),
		"amount": amount,
		"tx":     hash.Hex(),
	}).Info("Funding node account")

	if _, err := faucet.WaitMined(ctx, n.RPC(), hash, c.conf.PollInterval, c.conf.BlockWait); err != nil {
		return hash, err
	}

	return hash, nil
}
