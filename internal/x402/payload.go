package x402

import (
	"encoding/base64"
	"encoding/json"
)

// EvmAuthorization contains EIP-3009 TransferWithAuthorization parameters.
type EvmAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// EvmPayload carries the typed-data signature over an EvmAuthorization.
type EvmPayload struct {
	Signature     string           `json:"signature"`
	Authorization EvmAuthorization `json:"authorization"`
}

// SvmPayload carries a partially-signed Solana wire transaction.
type SvmPayload struct {
	// Transaction is the base64-encoded serialized transaction, signed
	// by the token owner; the facilitator adds the fee payer signature.
	Transaction string `json:"transaction"`
}

// IcpPayload carries the canister-built payment payload.
type IcpPayload struct {
	// Payload is the opaque payment object produced by the x402 canister.
	Payload json.RawMessage `json:"payload"`
}

// PaymentPayload is the versioned envelope submitted to a
// payment-requiring resource.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Payload     any    `json:"payload"`
}

// BuildPayload wraps a network-specific payload in the versioned envelope.
func BuildPayload(version int, req *PaymentRequirements, payload any) *PaymentPayload {
	return &PaymentPayload{
		X402Version: version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload:     payload,
	}
}

// EncodePayload serializes a payload to base64-encoded JSON, the form
// carried in payment headers.
func EncodePayload(payload any) (string, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}
