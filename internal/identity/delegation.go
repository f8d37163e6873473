// Package identity implements the session identity model: delegation
// chains binding an ephemeral session key to a root identity, expiry
// accounting, and the persistence codec.
package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aviate-labs/agent-go/principal"
)

// Delegation authorizes a session public key to act for a root identity
// until Expiration.
type Delegation struct {
	// Pubkey is the DER-encoded session public key being delegated to.
	Pubkey []byte
	// Expiration in nanoseconds since epoch, the issuing ledger's native
	// time unit.
	Expiration uint64
	// Targets optionally restricts the delegation to specific canisters.
	Targets []principal.Principal
}

// SignedDelegation pairs a delegation with the issuer's signature over it.
type SignedDelegation struct {
	Delegation Delegation
	Signature  []byte
}

// Chain is an ordered delegation chain anchored to a root public key
// (the issuing service's user key, DER-encoded).
type Chain struct {
	Delegations []SignedDelegation
	PublicKey   []byte
}

// NewChain builds a chain from the root user key and signed delegations.
func NewChain(userKey []byte, delegations ...SignedDelegation) *Chain {
	return &Chain{Delegations: delegations, PublicKey: userKey}
}

// Valid reports whether every delegation in the chain expires after now.
func (c *Chain) Valid(now time.Time) bool {
	if len(c.Delegations) == 0 {
		return false
	}
	nowNS := uint64(now.UnixNano())
	for _, sd := range c.Delegations {
		if sd.Delegation.Expiration <= nowNS {
			return false
		}
	}
	return true
}

// ExpirationMS returns the chain expiration in milliseconds since epoch:
// the minimum of capMS and the earliest delegation expiration.
func (c *Chain) ExpirationMS(capMS int64) int64 {
	expiration := capMS
	for _, sd := range c.Delegations {
		ms := int64(sd.Delegation.Expiration / 1_000_000)
		if ms < expiration {
			expiration = ms
		}
	}
	return expiration
}

// Wire form of a chain, hex-encoded like the agent's JSON representation
// so stored sessions stay portable across client implementations.

type chainJSON struct {
	Delegations []signedDelegationJSON `json:"delegations"`
	PublicKey   string                 `json:"publicKey"`
}

type signedDelegationJSON struct {
	Delegation delegationJSON `json:"delegation"`
	Signature  string         `json:"signature"`
}

type delegationJSON struct {
	Pubkey     string   `json:"pubkey"`
	Expiration string   `json:"expiration"` // hex nanoseconds
	Targets    []string `json:"targets,omitempty"`
}

// MarshalJSON encodes the chain in the portable hex form.
func (c *Chain) MarshalJSON() ([]byte, error) {
	out := chainJSON{PublicKey: hex.EncodeToString(c.PublicKey)}
	for _, sd := range c.Delegations {
		dj := delegationJSON{
			Pubkey:     hex.EncodeToString(sd.Delegation.Pubkey),
			Expiration: fmt.Sprintf("%x", sd.Delegation.Expiration),
		}
		for _, t := range sd.Delegation.Targets {
			dj.Targets = append(dj.Targets, t.Encode())
		}
		out.Delegations = append(out.Delegations, signedDelegationJSON{
			Delegation: dj,
			Signature:  hex.EncodeToString(sd.Signature),
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the portable hex form.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var in chainJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	pub, err := hex.DecodeString(in.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid chain public key: %w", err)
	}
	c.PublicKey = pub
	c.Delegations = nil

	for _, sdj := range in.Delegations {
		pubkey, err := hex.DecodeString(sdj.Delegation.Pubkey)
		if err != nil {
			return fmt.Errorf("invalid delegation pubkey: %w", err)
		}
		var expiration uint64
		if _, err := fmt.Sscanf(sdj.Delegation.Expiration, "%x", &expiration); err != nil {
			return fmt.Errorf("invalid delegation expiration: %w", err)
		}
		sig, err := hex.DecodeString(sdj.Signature)
		if err != nil {
			return fmt.Errorf("invalid delegation signature: %w", err)
		}

		d := Delegation{Pubkey: pubkey, Expiration: expiration}
		for _, t := range sdj.Delegation.Targets {
			p, err := principal.Decode(t)
			if err != nil {
				return fmt.Errorf("invalid delegation target: %w", err)
			}
			d.Targets = append(d.Targets, p)
		}
		c.Delegations = append(c.Delegations, SignedDelegation{Delegation: d, Signature: sig})
	}
	return nil
}
