// Package commands implements the CLI commands using Cobra.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ldclabs/1paying/internal/logging"
	"github.com/ldclabs/1paying/internal/relay"
	"github.com/ldclabs/1paying/internal/signin"
	"github.com/ldclabs/1paying/internal/store"
)

// Version information (set at build time via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Service endpoints, overridable for self-hosted deployments.
const (
	defaultIssuerURL = "https://api.1pay.ing/identity"
	defaultICPURL    = "https://api.1pay.ing/icp"
	defaultDomain    = "1pay.ing"
)

// Global flags
var (
	verbose    bool
	jsonOutput bool
	statePath  string
	issuerURL  string
	icpURL     string
	relayURL   string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "onepay",
	Short: "Wallet sign-in and x402 payment authorization for 1Pay.ing",
	Long: `onepay signs you in with a Solana or Ethereum wallet and authorizes
x402 payments from the command line.

Commands:
  signin   Sign in with a wallet (local keys or Phantom deep link)
  pay      Authorize a payment from a payment link
  status   Show the current session
  logout   Drop the current session
  version  Show version information

Examples:
  # Sign in with a local Solana keypair
  onepay signin --solana-keypair ~/.config/solana/id.json

  # Sign in through the Phantom deep-link relay
  onepay signin --deeplink

  # Authorize a payment link
  onepay pay 'https://1pay.ing/?txid=...&msg=...' --solana-keypair ~/.config/solana/id.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "Path to the state database (default ~/.1paying/state.db)")
	rootCmd.PersistentFlags().StringVar(&issuerURL, "issuer-url", defaultIssuerURL, "Identity issuing service URL")
	rootCmd.PersistentFlags().StringVar(&icpURL, "icp-url", defaultICPURL, "ICP gateway URL")
	rootCmd.PersistentFlags().StringVar(&relayURL, "relay-url", relay.DefaultRelayURL, "Deep-link relay URL")
}

func logger() logging.Logger {
	if verbose {
		return logging.NewZapLogger("debug")
	}
	return logging.Noop{}
}

// app bundles the wired session state a command operates on.
type app struct {
	store   *store.BoltStore
	manager *signin.Manager
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// newApp opens the state database and restores the session. The store
// secret comes from ONEPAY_STATE_SECRET, with a fixed fallback: the
// database then only protects against casual inspection.
func newApp() (*app, error) {
	path := statePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".1paying", "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create state directory: %w", err)
	}

	secret := []byte(os.Getenv("ONEPAY_STATE_SECRET"))
	if len(secret) == 0 {
		secret = []byte("1paying/local-state")
	}

	st, err := store.OpenBolt(path, secret)
	if err != nil {
		return nil, fmt.Errorf("cannot open state database: %w", err)
	}

	manager, err := signin.NewManager(signin.Config{
		Store:  st,
		Issuer: signin.NewHTTPIssuer(issuerURL, nil),
		Domain: defaultDomain,
		Relay: relay.Config{
			RelayURL: relayURL,
			Logger:   logger(),
			OpenURL:  openDeepLink,
		},
		Logger: logger(),
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{store: st, manager: manager}, nil
}

// openDeepLink hands the wallet deep link to the user; on a headless
// CLI the phone scans or opens it manually.
func openDeepLink(url string) error {
	fmt.Fprintf(os.Stderr, "Open this link in your Phantom wallet:\n\n  %s\n\n", url)
	return nil
}
