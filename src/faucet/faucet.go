// Package faucet resolves the devnet's pre-funded accounts and moves ether
// out of them, so candidate validators have stake to bond before a join.
package faucet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/chain"
	gcommon "github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// devKeys are the standard devnet private keys every local tool ships with.
// They are the fallback matching pool when the cluster file lists faucet
// addresses without secrets.
var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
}

// transferGas is the intrinsic gas of a plain value transfer.
const transferGas = 21000

// Account is a faucet account: an address and the key that controls it.
type Account struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Accounts resolves faucet addresses to accounts by matching each address
// against the addresses derived from the secrets pool, falling back to the
// standard devnet keys. An address no key derives to is a usage error: a
// faucet without its key is useless.
func Accounts(addresses []string, secrets []string) ([]Account, error) {
	pool := map[common.Address]*ecdsa.PrivateKey{}

	for _, hex := range append(append([]string{}, secrets...), devKeys...) {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hex, "0x"))
		if err != nil {
			return nil, gcommon.NewOpErrorf("Accounts", gcommon.UsageError, "bad faucet secret: %v", err)
		}
		pool[crypto.PubkeyToAddress(key.PublicKey)] = key
	}

	accounts := make([]Account, 0, len(addresses))
	for _, addr := range addresses {
		a := common.HexToAddress(addr)
		key, ok := pool[a]
		if !ok {
			return nil, gcommon.NewOpErrorf("Accounts", gcommon.UsageError,
				"no known key for faucet address %s", a.Hex())
		}
		accounts = append(accounts, Account{Address: a, Key: key})
	}

	return accounts, nil
}

// SendEther signs and submits a plain value transfer from the given account.
func SendEther(ctx context.Context, client *chain.Client, from Account, to common.Address, amount *big.Int) (common.Hash, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, from.Address)
	if err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTransaction(nonce, to, amount, transferGas, gasPrice, nil)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), from.Key)
	if err != nil {
		return common.Hash{}, err
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	return signed.Hash(), nil
}

// WaitMined polls for the transaction's receipt until it lands or the
// timeout passes.
func WaitMined(ctx context.Context, client *chain.Client, hash common.Hash, interval, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if err != chain.ErrNotFound {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, gcommon.NewOpErrorf("WaitMined", gcommon.DeadlineExhausted,
				"transaction %s not mined after %s", hash.Hex(), timeout)
		}

		if err := gcommon.Sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
