package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/aviate-labs/agent-go/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldclabs/1paying/internal/errs"
)

func testChain(t *testing.T, sessionPub ed25519.PublicKey, expiration time.Time) *Chain {
	t.Helper()
	userPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return NewChain(WrapEd25519DER(userPub), SignedDelegation{
		Delegation: Delegation{
			Pubkey:     WrapEd25519DER(sessionPub),
			Expiration: uint64(expiration.UnixNano()),
		},
		Signature: []byte("issuer-sig"),
	})
}

func newTestIdentity(t *testing.T, now time.Time, chainExpiry time.Time) (*Identity, ed25519.PrivateKey) {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	chain := testChain(t, pub, chainExpiry)
	id := New(key, chain, now.Add(DefaultExpiration).UnixMilli())
	id.WithClock(func() time.Time { return now })
	return id, key
}

func TestAnonymousIdentity(t *testing.T) {
	id := Anonymous()
	assert.True(t, id.IsAnonymous())
	assert.False(t, id.IsExpired())
	assert.False(t, id.IsAuthenticated())
	assert.Equal(t, principal.AnonymousID, id.Principal())
	assert.Nil(t, id.SessionPubkeyDER())

	_, err := id.Sign([]byte("msg"))
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
}

func TestIdentityExpiration(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Expiration is the minimum of the cap and the chain expiry.
	id, _ := newTestIdentity(t, now, now.Add(time.Hour))
	assert.Equal(t, now.Add(time.Hour).UnixMilli(), id.ExpirationMS())

	farChain, _ := newTestIdentity(t, now, now.Add(90*24*time.Hour))
	assert.Equal(t, now.Add(DefaultExpiration).UnixMilli(), farChain.ExpirationMS())
}

func TestIdentityExpiryMargin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, _ := newTestIdentity(t, now, now.Add(time.Hour))

	tests := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{name: "fresh", at: now, expired: false},
		{name: "just outside margin", at: now.Add(time.Hour - ExpiryMargin - time.Second), expired: false},
		{name: "at margin boundary", at: now.Add(time.Hour - ExpiryMargin), expired: true},
		{name: "past expiration", at: now.Add(2 * time.Hour), expired: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			id.WithClock(func() time.Time { return at })
			assert.Equal(t, tt.expired, id.IsExpired())
			assert.Equal(t, !tt.expired, id.IsAuthenticated())
		})
	}
}

func TestIdentitySignAndExpiredHook(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, key := newTestIdentity(t, now, now.Add(time.Hour))

	sig, err := id.Sign([]byte("request"))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), []byte("request"), sig))

	fired := 0
	id.SetExpiredHook(func() { fired++ })

	id.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	for i := 0; i < 3; i++ {
		_, err = id.Sign([]byte("request"))
		assert.Equal(t, errs.KindExpired, errs.KindOf(err))
	}
	assert.Equal(t, 1, fired, "hook fires exactly once")

	// Re-arming the hook lets it fire once more.
	id.SetExpiredHook(func() { fired++ })
	_, _ = id.Sign([]byte("request"))
	assert.Equal(t, 2, fired)
}

func TestIdentityPrincipal(t *testing.T) {
	now := time.Now()
	id, _ := newTestIdentity(t, now, now.Add(time.Hour))

	p := id.Principal()
	assert.NotEqual(t, principal.AnonymousID, p)
	assert.Equal(t, principal.NewSelfAuthenticating(id.Chain().PublicKey), p)
}

func TestChainJSONRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	target := principal.AnonymousID

	chain := testChain(t, pub, time.Now().Add(time.Hour))
	chain.Delegations[0].Delegation.Targets = []principal.Principal{target}

	data, err := json.Marshal(chain)
	require.NoError(t, err)

	var decoded Chain
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, chain.PublicKey, decoded.PublicKey)
	require.Len(t, decoded.Delegations, 1)
	assert.Equal(t, chain.Delegations[0].Delegation.Expiration, decoded.Delegations[0].Delegation.Expiration)
	assert.Equal(t, chain.Delegations[0].Signature, decoded.Delegations[0].Signature)
	require.Len(t, decoded.Delegations[0].Delegation.Targets, 1)
	assert.Equal(t, target, decoded.Delegations[0].Delegation.Targets[0])
}

func TestChainValid(t *testing.T) {
	now := time.Now()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	assert.False(t, NewChain([]byte("user-key")).Valid(now), "empty chain is invalid")
	assert.True(t, testChain(t, pub, now.Add(time.Minute)).Valid(now))
	assert.False(t, testChain(t, pub, now.Add(-time.Minute)).Valid(now))
}
