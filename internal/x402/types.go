// Package x402 implements the x402 payment protocol types, network
// parsing, and payload construction.
package x402

import (
	"fmt"
	"math/big"
)

// Scheme identifiers.
const (
	SchemeExact = "exact"
	SchemeUpto  = "upto"
)

// PaymentRequirements describes one payment option a resource accepts.
// Externally supplied and treated as immutable input.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier ("exact" or "upto").
	Scheme string `json:"scheme" cbor:"scheme"`
	// Network is the blockchain network identifier, e.g. "solana",
	// "base-sepolia", or "icp-druyg-tyaaa-aaaaq-aactq-cai".
	Network string `json:"network" cbor:"network"`
	// MaxAmountRequired is the required amount in atomic units,
	// decimal-string encoded.
	MaxAmountRequired string `json:"maxAmountRequired" cbor:"maxAmountRequired"`
	// Asset is the token contract, mint, or ledger canister address.
	Asset string `json:"asset" cbor:"asset"`
	// PayTo is the recipient wallet address.
	PayTo string `json:"payTo" cbor:"payTo"`
	// Resource identifies the protected resource, e.g. its URL.
	Resource string `json:"resource" cbor:"resource"`
	// Description is a human-readable description of the resource.
	Description string `json:"description" cbor:"description"`
	// MimeType of the expected response.
	MimeType string `json:"mimeType,omitempty" cbor:"mimeType,omitempty"`
	// MaxTimeoutSeconds is the maximum time allowed for payment completion.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" cbor:"maxTimeoutSeconds"`
	// Extra holds scheme-specific fields such as the EVM contract
	// name/version or the Solana facilitator fee payer.
	Extra map[string]any `json:"extra,omitempty" cbor:"extra,omitempty"`
}

// Amount parses MaxAmountRequired as an unsigned integer.
func (p *PaymentRequirements) Amount() (*big.Int, error) {
	value := new(big.Int)
	if _, ok := value.SetString(p.MaxAmountRequired, 10); !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid payment amount: %q", p.MaxAmountRequired)
	}
	return value, nil
}

// GetExtraString retrieves a string value from the Extra map.
func (p *PaymentRequirements) GetExtraString(key string) string {
	if p.Extra == nil {
		return ""
	}
	if v, ok := p.Extra[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// PaymentRequirementsCompact is the single-letter-key wire form used in
// signed payment links. It converts losslessly to PaymentRequirements.
type PaymentRequirementsCompact struct {
	Scheme            string         `json:"s" cbor:"s"`
	Network           string         `json:"n" cbor:"n"`
	MaxAmountRequired string         `json:"mar" cbor:"mar"`
	Asset             string         `json:"a" cbor:"a"`
	PayTo             string         `json:"p" cbor:"p"`
	Resource          string         `json:"r" cbor:"r"`
	Description       string         `json:"d" cbor:"d"`
	MimeType          string         `json:"mt,omitempty" cbor:"mt,omitempty"`
	MaxTimeoutSeconds int            `json:"mts" cbor:"mts"`
	Extra             map[string]any `json:"ex,omitempty" cbor:"ex,omitempty"`
}

// Expand converts the compact form to the full form.
func (p *PaymentRequirementsCompact) Expand() PaymentRequirements {
	return PaymentRequirements{
		Scheme:            p.Scheme,
		Network:           p.Network,
		MaxAmountRequired: p.MaxAmountRequired,
		Asset:             p.Asset,
		PayTo:             p.PayTo,
		Resource:          p.Resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Extra:             p.Extra,
	}
}

// Compact converts the full form to the compact wire form.
func (p *PaymentRequirements) Compact() PaymentRequirementsCompact {
	return PaymentRequirementsCompact{
		Scheme:            p.Scheme,
		Network:           p.Network,
		MaxAmountRequired: p.MaxAmountRequired,
		Asset:             p.Asset,
		PayTo:             p.PayTo,
		Resource:          p.Resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Extra:             p.Extra,
	}
}

// RequirementsResponse is the payment-required response carrying the
// accepted payment options.
type RequirementsResponse struct {
	X402Version int                   `json:"x402Version" cbor:"x402Version"`
	Error       string                `json:"error,omitempty" cbor:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts" cbor:"accepts"`
}

// RequirementsResponseCompact is the compact wire form of
// RequirementsResponse.
type RequirementsResponseCompact struct {
	X402Version int                          `json:"x" cbor:"x"`
	Error       string                       `json:"e,omitempty" cbor:"e,omitempty"`
	Accepts     []PaymentRequirementsCompact `json:"a" cbor:"a"`
}

// Expand converts the compact response to the full form.
func (r *RequirementsResponseCompact) Expand() RequirementsResponse {
	out := RequirementsResponse{
		X402Version: r.X402Version,
		Error:       r.Error,
		Accepts:     make([]PaymentRequirements, 0, len(r.Accepts)),
	}
	for i := range r.Accepts {
		out.Accepts = append(out.Accepts, r.Accepts[i].Expand())
	}
	return out
}

// Protocol version constants.
const (
	ProtocolV1 = 1
	ProtocolV2 = 2
)
