// Package node drives a single cluster node: it derives the node's state from
// fresh probes, and walks it through start, stop and restart via the
// deployment scripts.
package node

import (
	"context"
	"path/filepath"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/chain"
	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/Richard1048576/gravity-sdk/src/proc"
	"github.com/Richard1048576/gravity-sdk/src/status"
	"github.com/sirupsen/logrus"
)

// Script names expected in a node's script directory.
const (
	StartScript = "start.sh"
	StopScript  = "stop.sh"
)

// Role tells whether a node is part of the initial validator set or a
// candidate that joins and leaves during fuzzing.
type Role string

const (
	// RoleGenesis nodes form the initial validator set and never leave it.
	RoleGenesis Role = "genesis"
	// RoleValidator nodes are candidates for join/leave churn.
	RoleValidator Role = "validator"
)

// Params identifies one node of the cluster.
type Params struct {
	ID        string
	Role      Role
	Host      string
	RPCURL    string
	HTTPURL   string
	P2PPort   int
	VFNPort   int
	DataDir   string
	ScriptDir string
}

// Node is a handle on one cluster node. It holds no state of its own beyond
// identity and wiring: the node's condition is derived freshly on every
// observation.
type Node struct {
	ID        string
	Role      Role
	Host      string
	RPCURL    string
	HTTPURL   string
	P2PPort   int
	VFNPort   int
	DataDir   string
	ScriptDir string

	conf    *config.Config
	rpc     *chain.Client
	api     *status.Client
	pidfile *proc.PIDFile
	runner  *proc.Runner
	logger  *logrus.Entry
}

// New creates a node handle. The RPC client is constructed eagerly but only
// connects on first use.
func New(conf *config.Config, params Params, logger *logrus.Entry) (*Node, error) {
	rpc, err := chain.Dial(context.Background(), params.RPCURL)
	if err != nil {
		return nil, err
	}

	nodeLogger := logger.WithField("node", params.ID)

	return &Node{
		ID:        params.ID,
		Role:      params.Role,
		Host:      params.Host,
		RPCURL:    params.RPCURL,
		HTTPURL:   params.HTTPURL,
		P2PPort:   params.P2PPort,
		VFNPort:   params.VFNPort,
		DataDir:   params.DataDir,
		ScriptDir: params.ScriptDir,
		conf:      conf,
		rpc:       rpc,
		api:       status.NewClient(params.HTTPURL, conf.ProbeTimeout),
		pidfile:   proc.NewPIDFile(filepath.Join(params.DataDir, proc.DefaultPIDFile)),
		runner:    proc.NewRunner(nodeLogger),
		logger:    nodeLogger,
	}, nil
}

// RPC returns the node's execution RPC client.
func (n *Node) RPC() *chain.Client {
	return n.rpc
}

// API returns the node's consensus status client.
func (n *Node) API() *status.Client {
	return n.api
}

// Height asks the node for its current block height, bounded by the probe
// timeout.
func (n *Node) Height(ctx context.Context) (uint64, error) {
	probeCtx, cancel := context.WithTimeout(ctx, n.conf.ProbeTimeout)
	defer cancel()

	return n.rpc.BlockNumber(probeCtx)
}

// State derives the node's current state from fresh probes. A reachable RPC
// endpoint means Running, and the returned height is the probed one. An
// unreachable endpoint with a live process behind the PID file means Stale.
// Otherwise the node is Stopped. A probe that failed for external reasons
// reports Unknown.
func (n *Node) State(ctx context.Context) (state.State, uint64) {
	height, err := n.Height(ctx)
	if err == nil {
		return state.Running, height
	}

	if ctx.Err() != nil {
		return state.Unknown, 0
	}

	n.logger.WithError(err).Debug("RPC probe failed")

	alive, err := n.pidfile.Alive(ctx)
	if err != nil {
		n.logger.WithError(err).Debug("PID probe failed")
		return state.Unknown, 0
	}

	if alive {
		return state.Stale, 0
	}

	return state.Stopped, 0
}

// Start brings the node up. Starting a Running node is a no-op that reports
// success. A Stale node is stopped first so the start script finds a clean
// slate. The start is only successful once the RPC endpoint answers.
//
// Script failures are logged and reported as false so convergence loops can
// retry. A missing start script is treated the same way: the node may live on
// a remote host the harness does not manage. Only cancellation comes back as
// an error.
func (n *Node) Start(ctx context.Context) (bool, error) {
	st, _ := n.State(ctx)

	switch st {
	case state.Running:
		n.logger.Debug("Node already running")
		return true, nil
	case state.Stale:
		n.logger.WithField("state", state.Stale).Info("Node is wedged, stopping it before start")
		if ok, err := n.Stop(ctx); err != nil {
			return false, err
		} else if !ok {
			n.logger.Warn("Could not stop wedged node, attempting start anyway")
		}
	}

	n.logger.WithField("state", state.Starting).Info("Starting node")

	script := filepath.Join(n.ScriptDir, StartScript)
	if err := n.runner.Run(ctx, script, n.ScriptDir, "--config", n.conf.ClusterFile); err != nil {
		switch {
		case common.IsUsageError(err):
			n.logger.WithField("script", script).Warn("No start script, remote node?")
			return false, nil
		case common.IsActionFailed(err):
			n.logger.WithError(err).Error("Start script failed")
			return false, nil
		}
		return false, err
	}

	if !n.WaitForRPC(ctx, n.conf.RPCWait) {
		n.logger.Error("Node did not open its RPC endpoint in time")
		return false, ctx.Err()
	}

	n.logger.WithField("state", state.Running).Info("Node started")

	return true, nil
}

// Stop brings the node down through its stop script. Stopping a Stopped node
// is a no-op that reports success, and a missing stop script reports false
// like a failed one. After the script runs, the node gets a
// short grace before the state is derived again; only an observed Stopped
// counts as success.
func (n *Node) Stop(ctx context.Context) (bool, error) {
	st, _ := n.State(ctx)

	if st == state.Stopped {
		n.logger.Debug("Node already stopped")
		return true, nil
	}

	n.logger.WithField("state", state.Stopping).Info("Stopping node")

	script := filepath.Join(n.ScriptDir, StopScript)
	if err := n.runner.Run(ctx, script, n.ScriptDir); err != nil {
		switch {
		case common.IsUsageError(err):
			n.logger.WithField("script", script).Warn("No stop script, remote node?")
			return false, nil
		case common.IsActionFailed(err):
			n.logger.WithError(err).Error("Stop script failed")
			return false, nil
		}
		return false, err
	}

	if err := common.Sleep(ctx, n.conf.StopGrace); err != nil {
		return false, err
	}

	st, _ = n.State(ctx)
	if st != state.Stopped {
		n.logger.WithField("state", st).Error("Node still up after stop script")
		return false, nil
	}

	n.logger.WithField("state", state.Stopped).Info("Node stopped")

	return true, nil
}

// Restart stops the node, waits a beat, and starts it again.
func (n *Node) Restart(ctx context.Context) (bool, error) {
	if ok, err := n.Stop(ctx); err != nil || !ok {
		return ok, err
	}

	if err := common.Sleep(ctx, n.conf.RestartGap); err != nil {
		return false, err
	}

	return n.Start(ctx)
}

// WaitForRPC polls the RPC endpoint until it answers or the timeout passes.
func (n *Node) WaitForRPC(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}

		if _, err := n.Height(ctx); err == nil {
			return true
		}

		if err := common.Sleep(ctx, n.conf.PollInterval); err != nil {
			return false
		}
	}

	return false
}

// WaitForBlockIncrease watches the node until its height grows by at least
// delta, or the block wait deadline passes. A node whose baseline cannot even
// be read reports failure immediately: there is no point waiting for
// progress on an unreachable node.
func (n *Node) WaitForBlockIncrease(ctx context.Context, delta uint64) (bool, error) {
	baseline, err := n.Height(ctx)
	if err != nil {
		n.logger.WithError(err).Error("Cannot read baseline height")
		return false, nil
	}

	target := baseline + delta

	n.logger.WithFields(logrus.Fields{
		"baseline": baseline,
		"target":   target,
	}).Debug("Waiting for block increase")

	deadline := time.Now().Add(n.conf.BlockWait)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		height, err := n.Height(ctx)
		if err == nil && height >= target {
			n.logger.WithField("height", height).Debug("Block height increased")
			return true, nil
		}
		if err != nil {
			n.logger.WithError(err).Debug("Height probe failed, retrying")
		}

		if err := common.Sleep(ctx, n.conf.PollInterval); err != nil {
			return false, err
		}
	}

	n.logger.WithFields(logrus.Fields{
		"baseline": baseline,
		"target":   target,
	}).Error("No block increase before deadline")

	return false, nil
}
