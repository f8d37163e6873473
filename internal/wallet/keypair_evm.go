package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/term"
)

// LoadEVMKey loads an Ethereum private key.
// Priority: keystore file → hex key → EVM_PRIVATE_KEY env → stdin.
func LoadEVMKey(keystorePath, hexKey string, fromStdin bool) (*ecdsa.PrivateKey, error) {
	if keystorePath != "" {
		return LoadEVMKeyFromKeystore(keystorePath)
	}
	if hexKey != "" {
		return LoadEVMKeyFromHex(hexKey)
	}
	if envKey := os.Getenv("EVM_PRIVATE_KEY"); envKey != "" {
		return LoadEVMKeyFromHex(envKey)
	}
	if fromStdin {
		return loadEVMKeyFromStdin()
	}
	return nil, fmt.Errorf("no private key source provided (use --evm-keystore, --evm-key, EVM_PRIVATE_KEY env, or pipe to stdin)")
}

// LoadEVMKeyFromKeystore decrypts a Web3 Secret Storage keystore file,
// prompting for its password.
func LoadEVMKeyFromKeystore(path string) (*ecdsa.PrivateKey, error) {
	keystoreJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}

	password, err := PromptPassword("Enter keystore password: ")
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	key, err := keystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore (wrong password?): %w", err)
	}
	return key.PrivateKey, nil
}

// LoadEVMKeyFromHex parses a hex-encoded private key, with or without
// the 0x prefix.
func LoadEVMKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))

	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex private key: %w", err)
	}
	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return privateKey, nil
}

func loadEVMKeyFromStdin() (*ecdsa.PrivateKey, error) {
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no private key piped to stdin")
	}

	var hexKey string
	if _, err := fmt.Scanln(&hexKey); err != nil {
		return nil, fmt.Errorf("failed to read private key from stdin: %w", err)
	}
	return LoadEVMKeyFromHex(hexKey)
}

// PromptPassword prompts for a password without echoing to the terminal.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

// GetEVMAddress returns the checksummed Ethereum address for a key.
func GetEVMAddress(privateKey *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
}
