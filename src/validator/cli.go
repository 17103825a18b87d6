// Package validator drives the chain's validator-set machinery from the
// outside: the admin commands that submit join and leave requests, and the
// epoch-gated reconciler that fuzzes set membership and checks the chain's
// transitions against its own predictions.
package validator

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// JoinParams are the arguments of a validator join command.
type JoinParams struct {
	PrivateKey              string
	StakeAmount             string
	ValidatorAddress        string
	ConsensusPublicKey      string
	ValidatorNetworkAddress string
	FullnodeNetworkAddress  string
	AptosAddress            string
	Moniker                 string
}

// LeaveParams are the arguments of a validator leave command.
type LeaveParams struct {
	PrivateKey       string
	ValidatorAddress string
}

// ValidatorInfo is one entry of the externally reported validator list.
type ValidatorInfo struct {
	AptosAddress string `json:"aptos_address"`
	VotingPower  uint64 `json:"voting_power"`
	Moniker      string `json:"moniker"`
}

// ListResult is the validator list as the chain reports it: the active set
// plus the two pending transitions waiting for the next epoch.
type ListResult struct {
	ActiveValidators []ValidatorInfo `json:"active_validators"`
	PendingInactive  []ValidatorInfo `json:"pending_inactive"`
	PendingActive    []ValidatorInfo `json:"pending_active"`
}

// Admin submits validator-set commands and queries the reported set. The
// production implementation shells out to the admin binary; tests substitute
// their own.
type Admin interface {
	Join(ctx context.Context, params JoinParams) error
	Leave(ctx context.Context, params LeaveParams) error
	List(ctx context.Context) (*ListResult, error)
}

// CLI is the Admin implementation backed by the external admin binary.
type CLI struct {
	path   string
	rpcURL string
	logger *logrus.Entry
}

// NewCLI creates an admin client invoking the binary at path against the
// given RPC endpoint.
func NewCLI(path, rpcURL string, logger *logrus.Entry) *CLI {
	return &CLI{
		path:   path,
		rpcURL: rpcURL,
		logger: logger.WithField("prefix", "admin"),
	}
}

// run invokes the admin binary and returns its stdout. A non-zero exit is an
// ActionFailed error carrying the trimmed stderr, because the command's own
// verdict is authoritative for whether the intent took effect.
func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.WithField("args", strings.Join(args, " ")).Debug("Running admin command")

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, common.NewOpErrorf("AdminCommand", common.ActionFailed, "%s: %s", args[0], detail)
	}

	return stdout.Bytes(), nil
}

// Join submits a validator join command.
func (c *CLI) Join(ctx context.Context, params JoinParams) error {
	args := []string{
		"validator", "join",
		"--rpc-url", c.rpcURL,
		"--private-key", params.PrivateKey,
		"--stake-amount", params.StakeAmount,
		"--validator-address", params.ValidatorAddress,
		"--consensus-public-key", params.ConsensusPublicKey,
		"--validator-network-address", params.ValidatorNetworkAddress,
		"--fullnode-network-address", params.FullnodeNetworkAddress,
		"--aptos-address", params.AptosAddress,
	}
	if params.Moniker != "" {
		args = append(args, "--moniker", params.Moniker)
	}

	_, err := c.run(ctx, args...)
	return err
}

// Leave submits a validator leave command.
func (c *CLI) Leave(ctx context.Context, params LeaveParams) error {
	_, err := c.run(ctx,
		"validator", "leave",
		"--rpc-url", c.rpcURL,
		"--private-key", params.PrivateKey,
		"--validator-address", params.ValidatorAddress,
	)
	return err
}

// List queries the reported validator set.
func (c *CLI) List(ctx context.Context) (*ListResult, error) {
	out, err := c.run(ctx, "validator", "list", "--rpc-url", c.rpcURL)
	if err != nil {
		return nil, err
	}

	result := new(ListResult)
	if err := codec.NewDecoderBytes(out, new(codec.JsonHandle)).Decode(result); err != nil {
		return nil, common.NewOpErrorf("AdminCommand", common.ActionFailed, "list: bad JSON: %v", err)
	}

	return result, nil
}
