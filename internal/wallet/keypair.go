package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// solanaKeypairLen is the full ed25519 keypair: 32-byte seed followed
// by the 32-byte public key, as the Solana CLI writes it.
const solanaKeypairLen = 64

// LoadSolanaKeypair loads a Solana keypair file in either the CLI's
// JSON byte-array format or as a base58 string.
func LoadSolanaKeypair(path string) (solana.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}

	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err == nil {
		return solanaKeyFromBytes(keyBytes)
	}

	decoded, err := base58.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid keypair format: not JSON array or base58 encoded")
	}
	return solanaKeyFromBytes(decoded)
}

// LoadSolanaKeypairFromBase58 parses a base58-encoded Solana keypair.
func LoadSolanaKeypairFromBase58(base58Key string) (solana.PrivateKey, error) {
	decoded, err := base58.Decode(strings.TrimSpace(base58Key))
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	return solanaKeyFromBytes(decoded)
}

func solanaKeyFromBytes(keyBytes []byte) (solana.PrivateKey, error) {
	if len(keyBytes) != solanaKeypairLen {
		return nil, fmt.Errorf("invalid keypair length: expected %d bytes, got %d", solanaKeypairLen, len(keyBytes))
	}
	return solana.PrivateKey(keyBytes), nil
}

// GetSolanaAddress returns the base58-encoded public key for a key.
func GetSolanaAddress(privateKey solana.PrivateKey) string {
	return privateKey.PublicKey().String()
}
