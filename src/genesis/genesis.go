package genesis

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ugorji/go/codec"
)

// DefaultEpochIntervalMicros is two hours, the epoch duration the devnet
// ships with unless the cluster file overrides it.
const DefaultEpochIntervalMicros = 7200000000

// Validator is one founding validator entry of the genesis document.
type Validator struct {
	AccountAddress          string `json:"account_address"`
	ConsensusPublicKey      string `json:"consensus_public_key"`
	NetworkPublicKey        string `json:"network_public_key"`
	ValidatorNetworkAddress string `json:"validator_network_address"`
	FullnodeNetworkAddress  string `json:"fullnode_network_address"`
	VotingPower             uint64 `json:"voting_power"`
}

// Document is the genesis document shared by every node of the cluster. Only
// the founding (genesis-role) nodes appear in it; the others join through the
// validator admin commands once the chain is live.
type Document struct {
	ChainID                 uint64      `json:"chain_id"`
	EpochIntervalMicros     uint64      `json:"epoch_interval_micros"`
	AllowValidatorSetChange bool        `json:"allow_validator_set_change"`
	Validators              []Validator `json:"validators"`
}

// ValidatorInput is what Build needs to know about one founding node.
type ValidatorInput struct {
	ID       string
	Host     string
	P2PPort  int
	VFNPort  int
	Identity *Identity
}

// BuildParams collects the genesis inputs: the founding nodes with their
// identities, and the optional overrides from the cluster file.
type BuildParams struct {
	ChainID             uint64
	EpochIntervalMicros uint64
	Founders            []ValidatorInput
}

// Build assembles the genesis document. Every founder contributes one
// validator entry with equal voting power; the set-change flag is always on,
// since exercising set changes is the whole point of the harness.
func Build(params BuildParams) (*Document, error) {
	if len(params.Founders) == 0 {
		return nil, fmt.Errorf("genesis needs at least one founding node")
	}

	interval := params.EpochIntervalMicros
	if interval == 0 {
		interval = DefaultEpochIntervalMicros
	}

	doc := &Document{
		ChainID:                 params.ChainID,
		EpochIntervalMicros:     interval,
		AllowValidatorSetChange: true,
	}

	for _, f := range params.Founders {
		if f.Identity == nil {
			return nil, fmt.Errorf("founder %s has no identity", f.ID)
		}

		doc.Validators = append(doc.Validators, Validator{
			AccountAddress:          f.Identity.AptosAddress(),
			ConsensusPublicKey:      f.Identity.ConsensusPublicKey,
			NetworkPublicKey:        f.Identity.NetworkPublicKey,
			ValidatorNetworkAddress: NoiseAddress(f.Host, f.P2PPort, f.Identity.NetworkPublicKey),
			FullnodeNetworkAddress:  NoiseAddress(f.Host, f.VFNPort, f.Identity.NetworkPublicKey),
			VotingPower:             1,
		})
	}

	return doc, nil
}

// Marshal renders the document as canonical JSON, so two runs over the same
// inputs produce byte-identical genesis files.
func (d *Document) Marshal() ([]byte, error) {
	jh := new(codec.JsonHandle)
	jh.Canonical = true

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, jh)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}

	return buf, nil
}

// Write marshals the document to <dir>/genesis.json.
func (d *Document) Write(dir string) (string, error) {
	buf, err := d.Marshal()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "genesis.json")
	if err := ioutil.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}

	return path, nil
}
