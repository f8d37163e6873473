package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ldclabs/1paying/internal/store"
)

// persistedIdentity is the storage form of a delegated session identity.
type persistedIdentity struct {
	// Secret is the 32-byte ed25519 seed of the session key.
	Secret []byte `json:"secret"`
	Chain  *Chain `json:"chain"`
	Name   string `json:"name,omitempty"`
	Svm    string `json:"svmAddress,omitempty"`
	Evm    string `json:"evmAddress,omitempty"`
	Backed Origin `json:"backedBy"`
}

// Save persists the identity so it can be restored at next start.
// Anonymous identities are never persisted.
func Save(s store.Store, id *Identity) error {
	if id.IsAnonymous() {
		return fmt.Errorf("refusing to persist anonymous identity")
	}

	data, err := json.Marshal(persistedIdentity{
		Secret: id.key.Seed(),
		Chain:  id.chain,
		Name:   id.Name,
		Svm:    id.SvmAddress,
		Evm:    id.EvmAddress,
		Backed: id.BackedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	return s.Set(store.KeyIdentity, data)
}

// Load restores a persisted identity. Returns nil when nothing usable is
// stored: a missing, corrupt, or chain-expired entry is cleared and
// reported as absent.
func Load(s store.Store, now time.Time) (*Identity, error) {
	data, err := s.Get(store.KeyIdentity)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var p persistedIdentity
	if err := json.Unmarshal(data, &p); err != nil || len(p.Secret) != ed25519.SeedSize || p.Chain == nil {
		_ = s.Remove(store.KeyIdentity)
		return nil, nil
	}

	if !p.Chain.Valid(now) {
		_ = s.Remove(store.KeyIdentity)
		return nil, nil
	}

	capMS := now.Add(DefaultExpiration).UnixMilli()
	id := New(ed25519.NewKeyFromSeed(p.Secret), p.Chain, capMS)
	id.Name = p.Name
	id.SvmAddress = p.Svm
	id.EvmAddress = p.Evm
	id.BackedBy = p.Backed
	return id, nil
}

// Remove deletes the persisted identity, if any.
func Remove(s store.Store) error {
	return s.Remove(store.KeyIdentity)
}
