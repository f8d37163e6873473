package x402

import (
	"fmt"
	"strings"

	"github.com/ldclabs/1paying/internal/errs"
)

// Family groups networks by the signing machinery they require.
type Family string

const (
	FamilyICP    Family = "icp"
	FamilySolana Family = "solana"
	FamilyEVM    Family = "evm"
)

// caip2EVMPrefix is the prefix for EVM chains in CAIP-2 format.
const caip2EVMPrefix = "eip155:"

// icpPrefix marks Internet Computer networks; an optional canister id
// suffix selects a dedicated ledger, e.g. "icp-druyg-tyaaa-aaaaq-aactq-cai".
const icpPrefix = "icp"

// solanaNetworkAliases maps Solana network names to their canonical form.
var solanaNetworkAliases = map[string]string{
	"solana":              "solana",
	"solana-mainnet":      "solana",
	"solana-mainnet-beta": "solana",
	"mainnet-beta":        "solana",
	"solana-devnet":       "solana-devnet",
	"devnet":              "solana-devnet",
	"solana-testnet":      "solana-testnet",
	"testnet":             "solana-testnet",
}

// networkNameToChainID maps EVM network names to their chain IDs.
var networkNameToChainID = map[string]int64{
	"ethereum":     1,
	"mainnet":      1,
	"base":         8453,
	"base-sepolia": 84532,
	"base-testnet": 84532,
	"sepolia":      11155111,
	"polygon":      137,
	"arbitrum":     42161,
	"optimism":     10,
}

// solanaClusters maps canonical Solana network names to wallet cluster tags.
var solanaClusters = map[string]string{
	"solana":         "mainnet-beta",
	"solana-devnet":  "devnet",
	"solana-testnet": "testnet",
}

// solanaRPCURLs maps canonical Solana network names to public RPC endpoints.
var solanaRPCURLs = map[string]string{
	"solana":         "https://api.mainnet-beta.solana.com",
	"solana-devnet":  "https://api.devnet.solana.com",
	"solana-testnet": "https://api.testnet.solana.com",
}

// NetworkFamily classifies a network identifier. Unknown networks return
// an UnsupportedNetwork error.
func NetworkFamily(network string) (Family, error) {
	switch {
	case IsICPNetwork(network):
		return FamilyICP, nil
	case IsSolanaNetwork(network):
		return FamilySolana, nil
	case IsEVMNetwork(network):
		return FamilyEVM, nil
	}
	return "", errs.New(errs.KindUnsupportedNetwork, "unknown network: %s", network)
}

// IsICPNetwork reports whether the network is an Internet Computer network.
func IsICPNetwork(network string) bool {
	return network == icpPrefix || strings.HasPrefix(network, icpPrefix+"-")
}

// IsSolanaNetwork reports whether the network is a Solana cluster name.
func IsSolanaNetwork(network string) bool {
	_, ok := solanaNetworkAliases[network]
	return ok
}

// IsEVMNetwork reports whether the network is an EVM-compatible chain,
// in CAIP-2 format (eip155:*) or as a common network name.
func IsEVMNetwork(network string) bool {
	if strings.HasPrefix(network, caip2EVMPrefix) && len(network) > len(caip2EVMPrefix) {
		return true
	}
	_, ok := networkNameToChainID[network]
	return ok
}

// NormalizeSolanaNetwork converts Solana network aliases to the canonical
// name. Returns the input unchanged when unknown.
func NormalizeSolanaNetwork(network string) string {
	if canonical, ok := solanaNetworkAliases[network]; ok {
		return canonical
	}
	return network
}

// SolanaCluster returns the wallet cluster tag for a Solana network.
func SolanaCluster(network string) string {
	if cluster, ok := solanaClusters[NormalizeSolanaNetwork(network)]; ok {
		return cluster
	}
	return "mainnet-beta"
}

// SolanaRPCURL returns the RPC endpoint for a Solana network, falling
// back to mainnet for unknown networks.
func SolanaRPCURL(network string) string {
	if url, ok := solanaRPCURLs[NormalizeSolanaNetwork(network)]; ok {
		return url
	}
	return solanaRPCURLs["solana"]
}

// ExtractChainID extracts the numeric chain ID from an EVM network
// string, in CAIP-2 format (eip155:8453) or as a common name (base).
func ExtractChainID(network string) (int64, error) {
	if strings.HasPrefix(network, caip2EVMPrefix) {
		var chainID int64
		if _, err := fmt.Sscanf(network, caip2EVMPrefix+"%d", &chainID); err != nil {
			return 0, errs.New(errs.KindUnsupportedNetwork, "invalid chain ID in network %s", network)
		}
		return chainID, nil
	}

	if chainID, ok := networkNameToChainID[network]; ok {
		return chainID, nil
	}

	return 0, errs.New(errs.KindUnsupportedNetwork, "unknown network: %s", network)
}
