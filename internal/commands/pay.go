package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ldclabs/1paying/internal/output"
	"github.com/ldclabs/1paying/internal/payment"
	"github.com/ldclabs/1paying/internal/x402"
)

var payIndex int

var payCmd = &cobra.Command{
	Use:   "pay <payment-link>",
	Short: "Authorize a payment from a signed payment link",
	Long: `Parse a signed payment link, pick a payment option the current
session supports, and sign the payment authorization.

The signed payload is printed as the X-PAYMENT header value; nothing is
submitted on-chain by this command.`,
	Args: cobra.ExactArgs(1),
	RunE: runPay,
}

func init() {
	payCmd.Flags().IntVar(&payIndex, "option", -1, "Index of the payment option to use (default: first supported)")
	registerWalletFlags(payCmd)
	rootCmd.AddCommand(payCmd)
}

func runPay(cmd *cobra.Command, args []string) error {
	link, err := x402.ParsePaymentLink(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := buildWallet(a)
	if err != nil {
		return err
	}
	if err := a.manager.CheckIdentity(cmd.Context(), w); err != nil {
		return err
	}

	options := output.DisplayOptions(link.Response.Accepts, a.manager.SupportNetworks())
	req, err := pickOption(link.Response.Accepts, options)
	if err != nil {
		if !jsonOutput {
			output.Println("Payment options:")
			output.PrintOptions(options)
		}
		return err
	}

	id := a.manager.Current()
	gateway := payment.NewICPGateway(icpURL, nil, id)
	builder := &payment.Builder{
		Wallet:   w,
		Identity: id,
		Approver: gateway,
		Canister: gateway,
		Logger:   logger(),
	}

	auth, err := builder.Authorize(cmd.Context(), link.Response.X402Version, req)
	if err != nil {
		return err
	}
	if signinDeeplink {
		if err := a.manager.PersistRelayState(); err != nil {
			return err
		}
	}

	if jsonOutput {
		return output.PrintJSON(map[string]any{
			"txid":    link.TxID,
			"header":  auth.Header,
			"payload": auth.Payload,
			"log":     auth.Log,
		})
	}

	output.Println("Authorized %s %s on %s to %s", req.Scheme, req.MaxAmountRequired, req.Network, req.PayTo)
	output.Println("  Log ID:    %s", auth.Log.ID)
	output.Println("  X-PAYMENT: %s", auth.Header)
	return nil
}

// pickOption selects the requested option, or the first one the session
// supports when none was requested.
func pickOption(accepts []x402.PaymentRequirements, options []output.OptionDisplay) (*x402.PaymentRequirements, error) {
	if payIndex >= 0 {
		if payIndex >= len(accepts) {
			return nil, fmt.Errorf("payment option %d out of range (have %d)", payIndex, len(accepts))
		}
		return &accepts[payIndex], nil
	}
	for i := range options {
		if options[i].Supported {
			return &accepts[i], nil
		}
	}
	return nil, fmt.Errorf("no supported payment option; sign in to enable more networks")
}
