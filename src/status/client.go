// Package status provides a client for the consensus-side HTTP API of a node:
// ledger info, DKG state, quorum certificates, and per-epoch validator
// counts. The execution-side JSON-RPC interface lives in the chain package.
package status

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/ugorji/go/codec"
)

// LedgerInfo is the consensus view of the chain head.
type LedgerInfo struct {
	Epoch       uint64 `json:"epoch"`
	Round       uint64 `json:"round"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
}

// ValidatorCount is the size of the validator set at a given epoch.
type ValidatorCount struct {
	Epoch uint64 `json:"epoch"`
	Count int    `json:"validator_count"`
}

// StatusError is a non-200 response from the status API. The epoch endpoints
// return 404 for epochs the node does not serve yet, which callers may want
// to treat differently from a node that is down.
type StatusError struct {
	Code int
	Body string
}

// Error ...
func (e *StatusError) Error() string {
	return fmt.Sprintf("status api: HTTP %d, %s", e.Code, e.Body)
}

// IsStatusCode checks that an error is a StatusError with the given code.
func IsStatusCode(err error, code int) bool {
	statusErr, ok := err.(*StatusError)
	return ok && statusErr.Code == code
}

// Client queries the consensus status API of a single node.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a status client for the given base URL. The timeout
// bounds every request, including reading the body.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

// LatestLedgerInfo returns the node's current consensus head.
func (c *Client) LatestLedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	li := new(LedgerInfo)
	if err := c.get(ctx, "/consensus/latest_ledger_info", li); err != nil {
		return nil, err
	}
	return li, nil
}

// CurrentEpoch returns the epoch of the node's current consensus head.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	li, err := c.LatestLedgerInfo(ctx)
	if err != nil {
		return 0, err
	}
	return li.Epoch, nil
}

// LedgerInfo returns the last ledger info of the given epoch.
func (c *Client) LedgerInfo(ctx context.Context, epoch uint64) (*LedgerInfo, error) {
	li := new(LedgerInfo)
	if err := c.get(ctx, fmt.Sprintf("/consensus/ledger_info/%d", epoch), li); err != nil {
		return nil, err
	}
	return li, nil
}

// Block returns the raw consensus block at the given epoch and round.
func (c *Client) Block(ctx context.Context, epoch, round uint64) (map[string]interface{}, error) {
	block := map[string]interface{}{}
	if err := c.get(ctx, fmt.Sprintf("/consensus/block/%d/%d", epoch, round), &block); err != nil {
		return nil, err
	}
	return block, nil
}

// QuorumCert returns the quorum certificate at the given epoch and round.
func (c *Client) QuorumCert(ctx context.Context, epoch, round uint64) (map[string]interface{}, error) {
	qc := map[string]interface{}{}
	if err := c.get(ctx, fmt.Sprintf("/consensus/qc/%d/%d", epoch, round), &qc); err != nil {
		return nil, err
	}
	return qc, nil
}

// ValidatorCount returns the validator set size at the given epoch.
func (c *Client) ValidatorCount(ctx context.Context, epoch uint64) (*ValidatorCount, error) {
	vc := new(ValidatorCount)
	if err := c.get(ctx, fmt.Sprintf("/consensus/validator_count/%d", epoch), vc); err != nil {
		return nil, err
	}
	return vc, nil
}

// ValidatorCountCurrent returns the validator set size at the node's current
// epoch. Nodes only serve an epoch's count once it is sealed, so a miss on
// the current epoch falls back to the previous one.
func (c *Client) ValidatorCountCurrent(ctx context.Context) (*ValidatorCount, error) {
	epoch, err := c.CurrentEpoch(ctx)
	if err != nil {
		return nil, err
	}

	vc, err := c.ValidatorCount(ctx, epoch)
	if err != nil && epoch > 0 {
		if _, ok := err.(*StatusError); ok {
			return c.ValidatorCount(ctx, epoch-1)
		}
	}
	return vc, err
}

// DKGStatus returns the raw DKG state of the node.
func (c *Client) DKGStatus(ctx context.Context) (map[string]interface{}, error) {
	st := map[string]interface{}{}
	if err := c.get(ctx, "/dkg/status", &st); err != nil {
		return nil, err
	}
	return st, nil
}

// Randomness returns the on-chain randomness for a block number.
func (c *Client) Randomness(ctx context.Context, blockNumber uint64) (map[string]interface{}, error) {
	r := map[string]interface{}{}
	if err := c.get(ctx, fmt.Sprintf("/dkg/randomness/%d", blockNumber), &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := ioutil.ReadAll(resp.Body)
		return &StatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		}
	}

	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(resp.Body, jh)

	return dec.Decode(out)
}
