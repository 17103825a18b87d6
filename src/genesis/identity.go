// Package genesis handles the chain's bootstrap artifacts: the per-node
// validator identities written by the deployment scripts, and the genesis
// document aggregated from them.
package genesis

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IdentityFile is the name of the identity file inside a node's config
// directory.
const IdentityFile = "identity.yaml"

// IdentityPath returns the identity file location for a node data directory.
func IdentityPath(dataDir string) string {
	return filepath.Join(dataDir, "config", IdentityFile)
}

// Identity is a node's on-disk validator identity, written by the deployment
// scripts when the node is initialised. The account keys live on the
// execution side; the consensus and network keys on the consensus side.
type Identity struct {
	AccountAddress      string `yaml:"account_address"`
	AccountPrivateKey   string `yaml:"account_private_key"`
	ConsensusPrivateKey string `yaml:"consensus_private_key"`
	ConsensusPublicKey  string `yaml:"consensus_public_key"`
	NetworkPrivateKey   string `yaml:"network_private_key"`
	NetworkPublicKey    string `yaml:"network_public_key"`
}

// LoadIdentity reads and validates an identity file.
func LoadIdentity(path string) (*Identity, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity %s: %v", path, err)
	}

	ident := new(Identity)
	if err := yaml.Unmarshal(buf, ident); err != nil {
		return nil, fmt.Errorf("parsing identity %s: %v", path, err)
	}

	if err := ident.Validate(); err != nil {
		return nil, fmt.Errorf("identity %s: %v", path, err)
	}

	return ident, nil
}

// Validate checks the fields other components rely on. Private keys are not
// required: a harness driving a remote node may only hold the public half.
func (i *Identity) Validate() error {
	if i.AccountAddress == "" {
		return fmt.Errorf("missing account_address")
	}
	if i.ConsensusPublicKey == "" {
		return fmt.Errorf("missing consensus_public_key")
	}
	if i.NetworkPublicKey == "" {
		return fmt.Errorf("missing network_public_key")
	}
	return nil
}

// AptosAddress returns the bare 64-hex account address, the form the
// validator admin commands and the validator list use.
func (i *Identity) AptosAddress() string {
	return strings.ToLower(strings.TrimPrefix(i.AccountAddress, "0x"))
}

// EthAddress returns the account address truncated to its low 20 bytes, the
// form the execution side uses.
func (i *Identity) EthAddress() string {
	addr := i.AptosAddress()
	if len(addr) > 40 {
		addr = addr[len(addr)-40:]
	}
	return "0x" + addr
}

// NoiseAddress builds the noise-ik multiaddr a validator advertises for the
// given host, port and network public key.
func NoiseAddress(host string, port int, networkPK string) string {
	return fmt.Sprintf("/ip4/%s/tcp/%d/noise-ik/%s/handshake/0", host, port, networkPK)
}
