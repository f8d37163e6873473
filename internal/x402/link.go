package x402

import (
	"bytes"
	"compress/gzip"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// PaymentMessage is a signed payment-requirements message carried in a
// 1Pay.ing payment link.
type PaymentMessage struct {
	// Pubkey is the 32-byte ed25519 key the message is signed with.
	Pubkey []byte `cbor:"pk"`
	// Nonce is the issuer's message counter.
	Nonce uint64 `cbor:"n"`
	// Payload carries the payment options.
	Payload RequirementsResponseCompact `cbor:"p"`
}

// ParsedLink is the verified content of a payment link.
type ParsedLink struct {
	// TxID is the base64url-encoded signature, doubling as the payment's
	// tracking id.
	TxID string
	// Response is the expanded payment-requirements response.
	Response RequirementsResponse
}

// ParsePaymentLink parses and verifies a payment link, either a full
// URL or its bare query string "txid=<base64url sig>&msg=<base64url
// gzip(cbor)>". The signature is checked over the message's CBOR bytes
// against the pubkey embedded in the message.
func ParsePaymentLink(input string) (*ParsedLink, error) {
	if i := strings.IndexByte(input, '?'); i >= 0 {
		input = input[i+1:]
	}
	params, err := url.ParseQuery(input)
	if err != nil {
		return nil, fmt.Errorf("invalid payment input: %w", err)
	}

	txid := params.Get("txid")
	msg := params.Get("msg")
	if txid == "" || msg == "" {
		return nil, fmt.Errorf("invalid payment input: missing txid or msg")
	}

	sig, err := base64.RawURLEncoding.DecodeString(txid)
	if err != nil {
		return nil, fmt.Errorf("invalid txid encoding: %w", err)
	}

	compressed, err := base64.RawURLEncoding.DecodeString(msg)
	if err != nil {
		return nil, fmt.Errorf("invalid msg encoding: %w", err)
	}

	cborBytes, err := gzipDecompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress msg: %w", err)
	}

	var message PaymentMessage
	if err := cbor.Unmarshal(cborBytes, &message); err != nil {
		return nil, fmt.Errorf("failed to decode payment message: %w", err)
	}
	if len(message.Pubkey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid message pubkey length: %d", len(message.Pubkey))
	}

	if !ed25519.Verify(ed25519.PublicKey(message.Pubkey), cborBytes, sig) {
		return nil, fmt.Errorf("payment message signature verification failed")
	}

	return &ParsedLink{
		TxID:     txid,
		Response: message.Payload.Expand(),
	}, nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
