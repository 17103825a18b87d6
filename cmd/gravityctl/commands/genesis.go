package commands

import (
	"fmt"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/genesis"
	"github.com/Richard1048576/gravity-sdk/src/node"
	"github.com/spf13/cobra"
)

var genesisChainID uint64

// NewGenesisCmd returns the command that aggregates the founding nodes'
// identities into the genesis document.
func NewGenesisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "genesis",
		Short:   "Write the genesis document for the cluster",
		PreRunE: loadConfig,
		RunE:    writeGenesis,
	}
	AddGenesisFlags(cmd)
	return cmd
}

// AddGenesisFlags adds flags to the Genesis command
func AddGenesisFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().Uint64Var(&genesisChainID, "chain-id", 1337, "Chain id baked into genesis")
}

func writeGenesis(cmd *cobra.Command, args []string) error {
	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	founders := []genesis.ValidatorInput{}
	for _, n := range clu.Nodes() {
		if n.Role != node.RoleGenesis {
			continue
		}

		ident, err := clu.Identity(n.ID)
		if err != nil {
			return err
		}

		founders = append(founders, genesis.ValidatorInput{
			ID:       n.ID,
			Host:     n.Host,
			P2PPort:  n.P2PPort,
			VFNPort:  n.VFNPort,
			Identity: ident,
		})
	}

	doc, err := genesis.Build(genesis.BuildParams{
		ChainID:             genesisChainID,
		EpochIntervalMicros: clu.Topology().Genesis.EpochIntervalMicros,
		Founders:            founders,
	})
	if err != nil {
		return err
	}

	path, err := doc.Write(clu.Topology().BaseDir)
	if err != nil {
		return err
	}

	fmt.Printf("Genesis document written to: %s\n", path)

	return nil
}
