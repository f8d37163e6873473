package commands

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/ldclabs/1paying/internal/output"
	"github.com/ldclabs/1paying/internal/wallet"
)

var (
	signinDeeplink  bool
	solanaKeypair   string
	solanaKeyBase58 string
	evmKeyHex       string
	evmKeystorePath string
	evmChainID      int64
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with a wallet",
	Long: `Sign in with a wallet and establish a delegated session.

With --deeplink the Phantom deep-link relay is used: a connect link is
printed for the wallet app and the command waits for approval.

Otherwise local keys sign directly: at least a Solana keypair, plus an
optional Ethereum key to bind an EVM address to the session.`,
	RunE: runSignin,
}

func init() {
	registerWalletFlags(signinCmd)
	rootCmd.AddCommand(signinCmd)
}

// registerWalletFlags adds the wallet source flags shared by the
// commands that need a signer.
func registerWalletFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&signinDeeplink, "deeplink", false, "Use the Phantom deep-link relay as the wallet")
	cmd.Flags().StringVar(&solanaKeypair, "solana-keypair", "", "Path to a Solana keypair file (JSON array or base58)")
	cmd.Flags().StringVar(&solanaKeyBase58, "solana-key", "", "Base58-encoded Solana private key")
	cmd.Flags().StringVar(&evmKeyHex, "evm-key", "", "Hex-encoded Ethereum private key")
	cmd.Flags().StringVar(&evmKeystorePath, "evm-keystore", "", "Path to a Web3 Secret Storage keystore file")
	cmd.Flags().Int64Var(&evmChainID, "evm-chain-id", 8453, "Chain ID the Ethereum key signs for")
}

func runSignin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := buildWallet(a)
	if err != nil {
		return err
	}

	id, err := a.manager.SignInWithWallet(cmd.Context(), w)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.PrintJSON(map[string]any{
			"principal":       id.Principal().String(),
			"svmAddress":      id.SvmAddress,
			"evmAddress":      id.EvmAddress,
			"expiration":      id.ExpirationMS(),
			"supportNetworks": a.manager.SupportNetworks(),
		})
	}

	output.Println("Signed in as %s", id.Principal().String())
	if id.SvmAddress != "" {
		output.Println("  Solana:   %s", id.SvmAddress)
	}
	if id.EvmAddress != "" {
		output.Println("  Ethereum: %s", id.EvmAddress)
	}
	output.Println("  Expires:  %s", output.FormatExpiration(id.ExpirationMS(), time.Now()))
	return nil
}

// buildWallet assembles the wallet the session flags describe.
func buildWallet(a *app) (wallet.Wallet, error) {
	if signinDeeplink {
		return wallet.NewRelayWallet(a.manager.Relay()), nil
	}

	var solKey solana.PrivateKey
	var err error
	switch {
	case solanaKeypair != "":
		solKey, err = wallet.LoadSolanaKeypair(solanaKeypair)
	case solanaKeyBase58 != "":
		solKey, err = wallet.LoadSolanaKeypairFromBase58(solanaKeyBase58)
	default:
		return nil, fmt.Errorf("no wallet source provided (use --deeplink, --solana-keypair, or --solana-key)")
	}
	if err != nil {
		return nil, err
	}

	var evmKey *ecdsa.PrivateKey
	if evmKeyHex != "" || evmKeystorePath != "" {
		evmKey, err = wallet.LoadEVMKey(evmKeystorePath, evmKeyHex, false)
		if err != nil {
			return nil, err
		}
	}
	return wallet.NewKeyWallet(solKey, evmKey, evmChainID), nil
}
