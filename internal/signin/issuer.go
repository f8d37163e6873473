// Package signin implements the sign-in and delegation-issuance
// protocol: the issuing-service client, the protocol driver, and the
// session manager owning the process-wide identity slot.
package signin

import (
	"context"
	"fmt"

	"github.com/aviate-labs/agent-go/principal"

	"github.com/ldclabs/1paying/internal/client"
	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
)

// SignInResponse is the issuing service's answer to a network-specific
// sign-in call.
type SignInResponse struct {
	// UserKey is the DER-encoded root public key the delegation chain is
	// anchored to; the session principal derives from it.
	UserKey []byte `json:"user_key"`
	// Seed identifies the pending delegation on the issuing service.
	Seed []byte `json:"seed"`
	// Expiration of the session in milliseconds since epoch.
	Expiration int64 `json:"expiration"`
}

// Issuer is the identity-issuing service contract. Challenge messages
// are opaque canonical strings: clients must sign them verbatim, never
// mutated, since the server recomputes and compares on redemption.
type Issuer interface {
	GetSignInWithSolanaMessage(ctx context.Context, domain, address string, nowMS int64) (string, error)
	SignInWithSolana(ctx context.Context, domain, address string, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error)

	GetSignInWithEthereumMessage(ctx context.Context, domain, address string, chainID int64, nowMS int64) (string, error)
	SignInWithEthereum(ctx context.Context, domain, address string, chainID, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error)

	GetDelegation(ctx context.Context, seed, sessionPubkey []byte, expirationMS int64) (*identity.SignedDelegation, error)
}

// HTTPIssuer talks to the issuing service over its HTTP gateway. Every
// call returns a tagged {result}/{error} envelope; error results surface
// as RemoteCall failures.
type HTTPIssuer struct {
	base string
	http *client.Client
}

// NewHTTPIssuer creates an issuer client for the given base URL.
func NewHTTPIssuer(base string, hc *client.Client) *HTTPIssuer {
	if hc == nil {
		hc = client.New()
	}
	return &HTTPIssuer{base: base, http: hc}
}

type issuerEnvelope[T any] struct {
	Result *T     `json:"result"`
	Error  string `json:"error,omitempty"`
}

func call[T any](ctx context.Context, c *HTTPIssuer, method string, in any) (*T, error) {
	var env issuerEnvelope[T]
	if err := c.http.PostJSON(ctx, c.base+"/"+method, in, &env); err != nil {
		return nil, errs.Wrap(errs.KindRemoteCall, err, "call %s failed", method)
	}
	if env.Error != "" {
		return nil, errs.New(errs.KindRemoteCall, "call %s failed: %s", method, env.Error)
	}
	if env.Result == nil {
		return nil, errs.New(errs.KindRemoteCall, "call %s returned no result", method)
	}
	return env.Result, nil
}

func (c *HTTPIssuer) GetSignInWithSolanaMessage(ctx context.Context, domain, address string, nowMS int64) (string, error) {
	res, err := call[string](ctx, c, "get_sign_in_with_solana_message", map[string]any{
		"domain": domain, "address": address, "now_ms": nowMS,
	})
	if err != nil {
		return "", err
	}
	return *res, nil
}

func (c *HTTPIssuer) SignInWithSolana(ctx context.Context, domain, address string, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error) {
	return call[SignInResponse](ctx, c, "sign_in_with_solana", map[string]any{
		"domain":         domain,
		"address":        address,
		"now_ms":         nowMS,
		"message":        message,
		"message_sig":    messageSig,
		"session_pubkey": sessionPubkey,
		"session_sig":    sessionSig,
	})
}

func (c *HTTPIssuer) GetSignInWithEthereumMessage(ctx context.Context, domain, address string, chainID, nowMS int64) (string, error) {
	res, err := call[string](ctx, c, "get_sign_in_with_ethereum_message", map[string]any{
		"domain": domain, "address": address, "chain_id": chainID, "now_ms": nowMS,
	})
	if err != nil {
		return "", err
	}
	return *res, nil
}

func (c *HTTPIssuer) SignInWithEthereum(ctx context.Context, domain, address string, chainID, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error) {
	return call[SignInResponse](ctx, c, "sign_in_with_ethereum", map[string]any{
		"domain":         domain,
		"address":        address,
		"chain_id":       chainID,
		"now_ms":         nowMS,
		"message":        message,
		"message_sig":    messageSig,
		"session_pubkey": sessionPubkey,
		"session_sig":    sessionSig,
	})
}

// delegationWire is the issuer's wire form of a signed delegation.
type delegationWire struct {
	Signature  []byte `json:"signature"`
	Delegation struct {
		Pubkey     []byte   `json:"pubkey"`
		Targets    []string `json:"targets,omitempty"`
		Expiration uint64   `json:"expiration"` // ns
	} `json:"delegation"`
}

func (c *HTTPIssuer) GetDelegation(ctx context.Context, seed, sessionPubkey []byte, expirationMS int64) (*identity.SignedDelegation, error) {
	res, err := call[delegationWire](ctx, c, "get_delegation", map[string]any{
		"seed":           seed,
		"session_pubkey": sessionPubkey,
		"expiration_ms":  expirationMS,
	})
	if err != nil {
		return nil, err
	}

	sd := &identity.SignedDelegation{
		Delegation: identity.Delegation{
			Pubkey:     res.Delegation.Pubkey,
			Expiration: res.Delegation.Expiration,
		},
		Signature: res.Signature,
	}
	for _, t := range res.Delegation.Targets {
		p, err := principal.Decode(t)
		if err != nil {
			return nil, errs.Wrap(errs.KindRemoteCall, fmt.Errorf("invalid target %q: %w", t, err), "call get_delegation failed")
		}
		sd.Delegation.Targets = append(sd.Delegation.Targets, p)
	}
	return sd, nil
}
