package wallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"

	"github.com/ldclabs/1paying/internal/errs"
)

// KeyWallet signs with locally held keys. It stands in for an injected
// wallet extension when the client runs outside a browser: either or
// both chain families may be present depending on which keys were loaded.
type KeyWallet struct {
	evmKey     *ecdsa.PrivateKey
	evmChainID int64
	solKey     solana.PrivateKey
}

// NewKeyWallet builds a wallet from whichever keys are non-nil.
func NewKeyWallet(solKey solana.PrivateKey, evmKey *ecdsa.PrivateKey, evmChainID int64) *KeyWallet {
	return &KeyWallet{evmKey: evmKey, evmChainID: evmChainID, solKey: solKey}
}

// Connect reports the addresses for the requested chain families,
// failing when a requested family has no key loaded.
func (w *KeyWallet) Connect(_ context.Context, chains ...Chain) ([]Address, error) {
	if len(chains) == 0 {
		chains = []Chain{ChainSolana, ChainEthereum}
		var out []Address
		for _, chain := range chains {
			if addr, err := w.addressFor(chain); err == nil {
				out = append(out, addr)
			}
		}
		if len(out) == 0 {
			return nil, errs.New(errs.KindPrecondition, "no wallet keys loaded")
		}
		return out, nil
	}

	out := make([]Address, 0, len(chains))
	for _, chain := range chains {
		addr, err := w.addressFor(chain)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func (w *KeyWallet) addressFor(chain Chain) (Address, error) {
	switch chain {
	case ChainSolana:
		if w.solKey == nil {
			return Address{}, errs.New(errs.KindPrecondition, "no Solana key loaded")
		}
		return Address{Chain: ChainSolana, Address: w.solKey.PublicKey().String()}, nil
	case ChainEthereum:
		if w.evmKey == nil {
			return Address{}, errs.New(errs.KindPrecondition, "no Ethereum key loaded")
		}
		return Address{
			Chain:   ChainEthereum,
			Address: crypto.PubkeyToAddress(w.evmKey.PublicKey).Hex(),
			ChainID: w.evmChainID,
		}, nil
	}
	return Address{}, errs.New(errs.KindPrecondition, "unknown chain family: %s", chain)
}

// SignMessage signs with the Solana key and reports its address.
func (w *KeyWallet) SignMessage(_ context.Context, message string) ([]byte, string, error) {
	if w.solKey == nil {
		return nil, "", errs.New(errs.KindPrecondition, "no Solana key loaded")
	}
	sig, err := w.solKey.Sign([]byte(message))
	if err != nil {
		return nil, "", err
	}
	return sig[:], w.solKey.PublicKey().String(), nil
}

// SignPersonalMessage produces an EIP-191 personal signature.
func (w *KeyWallet) SignPersonalMessage(_ context.Context, message, address string) (string, error) {
	if err := w.checkEVMAddress(address); err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.evmKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignTypedData hashes and signs EIP-712 typed data.
func (w *KeyWallet) SignTypedData(_ context.Context, data apitypes.TypedData, address string) (string, error) {
	if err := w.checkEVMAddress(address); err != nil {
		return "", err
	}

	domainSeparator, err := data.HashStruct("EIP712Domain", data.Domain.Map())
	if err != nil {
		return "", err
	}
	messageHash, err := data.HashStruct(data.PrimaryType, data.Message)
	if err != nil {
		return "", err
	}

	// keccak256("\x19\x01" || domainSeparator || messageHash)
	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, messageHash...)
	hash := crypto.Keccak256Hash(rawData)

	sig, err := crypto.Sign(hash.Bytes(), w.evmKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignTransaction partially signs: only keys this wallet holds are
// applied; the fee payer's signature is added elsewhere.
func (w *KeyWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if w.solKey == nil {
		return nil, errs.New(errs.KindPrecondition, "no Solana key loaded")
	}

	owner := w.solKey.PublicKey()
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(owner) {
			return &w.solKey
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (w *KeyWallet) checkEVMAddress(address string) error {
	if w.evmKey == nil {
		return errs.New(errs.KindPrecondition, "no Ethereum key loaded")
	}
	have := crypto.PubkeyToAddress(w.evmKey.PublicKey).Hex()
	if !strings.EqualFold(have, address) {
		return errs.New(errs.KindAddressMismatch, "signer address %s does not match requested %s", have, address)
	}
	return nil
}
