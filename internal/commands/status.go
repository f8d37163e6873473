package commands

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ldclabs/1paying/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := a.manager.Current()
	relayClient := a.manager.Relay()

	if jsonOutput {
		return output.PrintJSON(map[string]any{
			"anonymous":       id.IsAnonymous(),
			"authenticated":   id.IsAuthenticated(),
			"principal":       id.Principal().String(),
			"svmAddress":      id.SvmAddress,
			"evmAddress":      id.EvmAddress,
			"expiration":      id.ExpirationMS(),
			"supportNetworks": a.manager.SupportNetworks(),
			"relayConnected":  relayClient.Connected(),
			"relayAddress":    relayClient.Address(),
		})
	}

	if id.IsAnonymous() {
		output.Println("Not signed in (anonymous)")
	} else {
		output.Println("Signed in as %s", id.Principal().String())
		if id.SvmAddress != "" {
			output.Println("  Solana:   %s", id.SvmAddress)
		}
		if id.EvmAddress != "" {
			output.Println("  Ethereum: %s", id.EvmAddress)
		}
		output.Println("  Expires:  %s", output.FormatExpiration(id.ExpirationMS(), time.Now()))
	}
	output.Println("Networks: %s", strings.Join(a.manager.SupportNetworks(), ", "))
	if relayClient.Connected() {
		output.Println("Relay:    connected as %s", relayClient.Address())
	} else {
		output.Println("Relay:    not connected")
	}
	return nil
}
