package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/gateway"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("walletbridge %s (protocol %d)\n", gateway.Version, protocol.ProtocolVersion)
		},
	}
}
