package genesis

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testIdentity(addr string) *Identity {
	return &Identity{
		AccountAddress:     addr,
		AccountPrivateKey:  "0x" + strings.Repeat("11", 32),
		ConsensusPublicKey: "0x" + strings.Repeat("22", 48),
		NetworkPublicKey:   "0x" + strings.Repeat("33", 32),
	}
}

func TestLoadIdentity(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatalf("err: %v", err)
	}

	raw := `account_address: "0xABCDEF0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
account_private_key: "0x1111"
consensus_private_key: "0x2222"
consensus_public_key: "0x3333"
network_private_key: "0x4444"
network_public_key: "0x5555"
`
	path := IdentityPath(dir)
	if err := ioutil.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	ident, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if ident.ConsensusPublicKey != "0x3333" {
		t.Fatalf("consensus key: got %s", ident.ConsensusPublicKey)
	}
	if ident.NetworkPublicKey != "0x5555" {
		t.Fatalf("network key: got %s", ident.NetworkPublicKey)
	}

	// Aptos form: bare hex, lowercased.
	want := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	if got := ident.AptosAddress(); got != want {
		t.Fatalf("aptos address: got %s, want %s", got, want)
	}

	// Eth form: low 20 bytes, 0x-prefixed.
	if got := ident.EthAddress(); got != "0x"+want[24:] {
		t.Fatalf("eth address: got %s, want 0x%s", got, want[24:])
	}
}

func TestLoadIdentityRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatalf("err: %v", err)
	}

	// No consensus key.
	raw := `account_address: "0xabcd"
network_public_key: "0x5555"
`
	path := IdentityPath(dir)
	if err := ioutil.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := LoadIdentity(path); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestLoadIdentityMissingFile(t *testing.T) {
	if _, err := LoadIdentity(IdentityPath(t.TempDir())); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestNoiseAddress(t *testing.T) {
	got := NoiseAddress("10.0.0.7", 20001, "0xbeef")
	want := "/ip4/10.0.0.7/tcp/20001/noise-ik/0xbeef/handshake/0"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBuild(t *testing.T) {
	doc, err := Build(BuildParams{
		ChainID: 1337,
		Founders: []ValidatorInput{
			{
				ID:       "node0",
				Host:     "127.0.0.1",
				P2PPort:  20000,
				VFNPort:  21000,
				Identity: testIdentity("0x" + strings.Repeat("aa", 32)),
			},
			{
				ID:       "node1",
				Host:     "127.0.0.1",
				P2PPort:  20001,
				VFNPort:  21001,
				Identity: testIdentity("0x" + strings.Repeat("bb", 32)),
			},
		},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if doc.ChainID != 1337 {
		t.Fatalf("chain id: got %d", doc.ChainID)
	}
	if doc.EpochIntervalMicros != DefaultEpochIntervalMicros {
		t.Fatalf("epoch interval: got %d, want default %d", doc.EpochIntervalMicros, DefaultEpochIntervalMicros)
	}
	if !doc.AllowValidatorSetChange {
		t.Fatal("set changes must be allowed")
	}
	if len(doc.Validators) != 2 {
		t.Fatalf("validators: got %d, want 2", len(doc.Validators))
	}

	v := doc.Validators[0]
	if v.AccountAddress != strings.Repeat("aa", 32) {
		t.Fatalf("account address: got %s", v.AccountAddress)
	}
	if v.VotingPower != 1 {
		t.Fatalf("voting power: got %d, want 1", v.VotingPower)
	}
	if v.ValidatorNetworkAddress != NoiseAddress("127.0.0.1", 20000, v.NetworkPublicKey) {
		t.Fatalf("validator network address: got %s", v.ValidatorNetworkAddress)
	}
	if v.FullnodeNetworkAddress != NoiseAddress("127.0.0.1", 21000, v.NetworkPublicKey) {
		t.Fatalf("fullnode network address: got %s", v.FullnodeNetworkAddress)
	}
}

func TestBuildEpochIntervalOverride(t *testing.T) {
	doc, err := Build(BuildParams{
		EpochIntervalMicros: 60000000,
		Founders: []ValidatorInput{
			{ID: "node0", Host: "127.0.0.1", Identity: testIdentity("0xaa")},
		},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if doc.EpochIntervalMicros != 60000000 {
		t.Fatalf("epoch interval: got %d, want 60000000", doc.EpochIntervalMicros)
	}
}

func TestBuildRejectsEmptyFounders(t *testing.T) {
	if _, err := Build(BuildParams{ChainID: 1}); err == nil {
		t.Fatal("expected an error for zero founders")
	}
}

func TestBuildRejectsMissingIdentity(t *testing.T) {
	_, err := Build(BuildParams{
		Founders: []ValidatorInput{{ID: "node0"}},
	})
	if err == nil {
		t.Fatal("expected an error for a founder without identity")
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	build := func() []byte {
		doc, err := Build(BuildParams{
			ChainID: 7,
			Founders: []ValidatorInput{
				{ID: "node0", Host: "127.0.0.1", Identity: testIdentity("0xaa")},
			},
		})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		buf, err := doc.Marshal()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		return buf
	}

	if !bytes.Equal(build(), build()) {
		t.Fatal("two builds over the same inputs must be byte-identical")
	}
}

func TestWrite(t *testing.T) {
	doc, err := Build(BuildParams{
		ChainID: 7,
		Founders: []ValidatorInput{
			{ID: "node0", Host: "127.0.0.1", Identity: testIdentity("0xaa")},
		},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")

	path, err := doc.Write(dir)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if filepath.Base(path) != "genesis.json" {
		t.Fatalf("path: got %s", path)
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(string(buf), "\"chain_id\"") {
		t.Fatalf("unexpected content: %s", buf)
	}
}
