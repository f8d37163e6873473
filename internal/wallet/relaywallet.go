package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/relay"
)

// RelayWallet adapts the Phantom deep-link relay client to the Wallet
// interface. It serves the Solana chain family only.
type RelayWallet struct {
	relay *relay.Client
}

// NewRelayWallet wraps a relay client.
func NewRelayWallet(r *relay.Client) *RelayWallet {
	return &RelayWallet{relay: r}
}

// Connect establishes the deep-link session if needed and reports the
// bound Solana address. Requesting the Ethereum family fails so the
// driver's capability fallback can degrade to Solana-only.
func (w *RelayWallet) Connect(ctx context.Context, chains ...Chain) ([]Address, error) {
	for _, chain := range chains {
		if chain != ChainSolana {
			return nil, errs.New(errs.KindPrecondition, "deeplink wallet only supports Solana, requested %s", chain)
		}
	}

	if err := w.relay.Connect(ctx); err != nil {
		return nil, err
	}
	return []Address{{Chain: ChainSolana, Address: w.relay.Address()}}, nil
}

// SignMessage routes the message through the encrypted relay channel.
func (w *RelayWallet) SignMessage(ctx context.Context, message string) ([]byte, string, error) {
	return w.relay.SignMessage(ctx, []byte(message))
}

// SignPersonalMessage is unsupported: the deep-link wallet exposes no
// Ethereum surface.
func (w *RelayWallet) SignPersonalMessage(context.Context, string, string) (string, error) {
	return "", errs.New(errs.KindPrecondition, "deeplink wallet cannot sign Ethereum messages")
}

// SignTypedData is unsupported for the same reason.
func (w *RelayWallet) SignTypedData(context.Context, apitypes.TypedData, string) (string, error) {
	return "", errs.New(errs.KindPrecondition, "deeplink wallet cannot sign Ethereum typed data")
}

// SignTransaction routes the transaction through the relay channel.
func (w *RelayWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	return w.relay.SignTransaction(ctx, tx)
}
