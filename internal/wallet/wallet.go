// Package wallet defines the wallet capability the sign-in driver and
// payment builder depend on, plus key loading and the local-key and
// deep-link implementations.
package wallet

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
)

// Chain tags an address by chain family.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
)

// Address is one wallet address tagged by chain family.
type Address struct {
	Chain   Chain
	Address string
	// ChainID is set for Ethereum addresses only.
	ChainID int64
}

// Wallet is the signing capability contract. Implementations may expose
// only one chain family; callers must tolerate the absence of the other.
// Any address returned by a signing call must match the address that was
// asked to sign; implementations reject mismatches.
type Wallet interface {
	// Connect discovers addresses for the requested chain families (all
	// available families when none are given). It fails when a requested
	// family cannot be served, so callers can retry with a reduced set.
	Connect(ctx context.Context, chains ...Chain) ([]Address, error)

	// SignMessage signs an arbitrary message with the Solana key and
	// reports the address that signed.
	SignMessage(ctx context.Context, message string) (sig []byte, signer string, err error)

	// SignPersonalMessage produces an EIP-191 personal signature, hex
	// encoded with 0x prefix, from the given Ethereum address.
	SignPersonalMessage(ctx context.Context, message, address string) (string, error)

	// SignTypedData produces an EIP-712 signature, hex encoded with 0x
	// prefix, from the given Ethereum address.
	SignTypedData(ctx context.Context, data apitypes.TypedData, address string) (string, error)

	// SignTransaction signs a not-yet-fully-signed Solana transaction
	// with the keys this wallet holds.
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// FindAddress returns the first address of the given chain family, or nil.
func FindAddress(addresses []Address, chain Chain) *Address {
	for i := range addresses {
		if addresses[i].Chain == chain {
			return &addresses[i]
		}
	}
	return nil
}
