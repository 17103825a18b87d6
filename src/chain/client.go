// Package chain provides a thin client for the execution-side JSON-RPC
// interface of a node. It only covers the handful of methods the harness
// needs: liveness probing through block height, and the plumbing for funding
// accounts.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotFound is returned by TransactionReceipt when the transaction is not
// mined yet.
var ErrNotFound = errors.New("not found")

// Client wraps a JSON-RPC connection to a node's execution endpoint.
type Client struct {
	c *rpc.Client
}

// Dial connects a client to the given URL.
func Dial(ctx context.Context, rawurl string) (*Client, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

// NewClient creates a client that uses the given RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{c}
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.c.Close()
}

// BlockNumber returns the most recent block number. It doubles as the
// liveness probe: a node that answers it is Running.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	err := c.c.CallContext(ctx, &result, "eth_blockNumber")
	return uint64(result), err
}

// ChainID retrieves the current chain ID for transaction replay protection.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	err := c.c.CallContext(ctx, &result, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// BalanceAt returns the wei balance of the given account at the latest block.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	var result hexutil.Big
	err := c.c.CallContext(ctx, &result, "eth_getBalance", account, "latest")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// PendingNonceAt returns the account nonce of the given account in the
// pending state. This is the nonce that should be used for the next
// transaction.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var result hexutil.Uint64
	err := c.c.CallContext(ctx, &result, "eth_getTransactionCount", account, "pending")
	return uint64(result), err
}

// SuggestGasPrice retrieves the currently suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	err := c.c.CallContext(ctx, &result, "eth_gasPrice")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// SendTransaction injects a signed transaction into the pending pool.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	data, err := tx.MarshalBinary()
	if err != nil {
		return err
	}
	return c.c.CallContext(ctx, nil, "eth_sendRawTransaction", hexutil.Encode(data))
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ErrNotFound while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	err := c.c.CallContext(ctx, &r, "eth_getTransactionReceipt", txHash)
	if err == nil && r == nil {
		return nil, ErrNotFound
	}
	return r, err
}
