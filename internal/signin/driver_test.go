package signin

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
	"github.com/ldclabs/1paying/internal/wallet"
)

// fakeIssuer verifies challenge redemptions the way the issuing service
// does and records what it saw.
type fakeIssuer struct {
	t *testing.T

	userKey    []byte // DER root key
	seed       []byte
	expiration int64 // ms

	mu           sync.Mutex
	solanaCalls  int
	ethCalls     int
	boundAddress string
}

func newFakeIssuer(t *testing.T, expiration time.Time) *fakeIssuer {
	t.Helper()
	rootPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &fakeIssuer{
		t:          t,
		userKey:    identity.WrapEd25519DER(rootPub),
		seed:       []byte("seed-0001"),
		expiration: expiration.UnixMilli(),
	}
}

func (f *fakeIssuer) GetSignInWithSolanaMessage(_ context.Context, domain, address string, nowMS int64) (string, error) {
	return fmt.Sprintf("%s wants you to sign in with your Solana account:\n%s\n\nIssued At: %d", domain, address, nowMS), nil
}

func (f *fakeIssuer) SignInWithSolana(_ context.Context, domain, address string, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error) {
	if !strings.Contains(message, address) {
		return nil, errs.New(errs.KindRemoteCall, "challenge does not match address")
	}
	pub, err := base58.Decode(address)
	if err != nil || !ed25519.Verify(ed25519.PublicKey(pub), []byte(message), messageSig) {
		return nil, errs.New(errs.KindRemoteCall, "bad wallet signature")
	}
	if err := verifySessionSig(sessionPubkey, messageSig, sessionSig); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.solanaCalls++
	f.boundAddress = address
	f.mu.Unlock()
	return &SignInResponse{UserKey: f.userKey, Seed: f.seed, Expiration: f.expiration}, nil
}

func (f *fakeIssuer) GetSignInWithEthereumMessage(_ context.Context, domain, address string, chainID, nowMS int64) (string, error) {
	return fmt.Sprintf("%s wants you to sign in with your Ethereum account:\n%s\n\nChain ID: %d\nIssued At: %d", domain, address, chainID, nowMS), nil
}

func (f *fakeIssuer) SignInWithEthereum(_ context.Context, domain, address string, chainID, nowMS int64, message string, messageSig, sessionPubkey, sessionSig []byte) (*SignInResponse, error) {
	sig := append([]byte(nil), messageSig...)
	if len(sig) != 65 {
		return nil, errs.New(errs.KindRemoteCall, "bad signature length")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil || !strings.EqualFold(ethcrypto.PubkeyToAddress(*pub).Hex(), address) {
		return nil, errs.New(errs.KindRemoteCall, "bad wallet signature")
	}
	if err := verifySessionSig(sessionPubkey, messageSig, sessionSig); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.ethCalls++
	f.boundAddress = address
	f.mu.Unlock()
	return &SignInResponse{UserKey: f.userKey, Seed: f.seed, Expiration: f.expiration}, nil
}

func (f *fakeIssuer) GetDelegation(_ context.Context, seed, sessionPubkey []byte, expirationMS int64) (*identity.SignedDelegation, error) {
	if !bytes.Equal(seed, f.seed) {
		return nil, errs.New(errs.KindRemoteCall, "unknown seed")
	}
	return &identity.SignedDelegation{
		Delegation: identity.Delegation{
			Pubkey:     sessionPubkey,
			Expiration: uint64(f.expiration) * 1_000_000, // ms to ns
		},
		Signature: []byte("root-sig"),
	}, nil
}

// verifySessionSig checks the countersignature: the session key signs
// the wallet signature bytes.
func verifySessionSig(sessionPubkeyDER, walletSig, sessionSig []byte) error {
	const derPrefixLen = 12
	if len(sessionPubkeyDER) != derPrefixLen+ed25519.PublicKeySize {
		return errs.New(errs.KindRemoteCall, "bad session pubkey")
	}
	pub := ed25519.PublicKey(sessionPubkeyDER[derPrefixLen:])
	if !ed25519.Verify(pub, walletSig, sessionSig) {
		return errs.New(errs.KindRemoteCall, "bad session signature")
	}
	return nil
}

func newSolanaWallet(t *testing.T) *wallet.KeyWallet {
	t.Helper()
	solKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return wallet.NewKeyWallet(solKey, nil, 0)
}

func newDualWallet(t *testing.T) *wallet.KeyWallet {
	t.Helper()
	solKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	evmKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return wallet.NewKeyWallet(solKey, evmKey, 8453)
}

func TestDriverSignInDualWallet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))
	d := &Driver{Issuer: issuer, Domain: "1pay.ing", Now: func() time.Time { return now }}

	w := newDualWallet(t)
	id, err := d.SignIn(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, identity.OriginPhantom, id.BackedBy)
	assert.NotEmpty(t, id.SvmAddress)
	assert.NotEmpty(t, id.EvmAddress)
	assert.Equal(t, 1, issuer.solanaCalls, "solana is the primary sign-in chain")
	assert.Equal(t, 0, issuer.ethCalls)
	assert.Equal(t, issuer.boundAddress, id.SvmAddress)

	// Chain expiry (7d) is below the 30d cap, so it wins.
	assert.Equal(t, issuer.expiration, id.ExpirationMS())

	// The identity can sign with the delegated session key.
	id.WithClock(func() time.Time { return now })
	sig, err := id.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.Len(t, sig, ed25519.SignatureSize)
}

func TestDriverCapabilityFallback(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))
	d := &Driver{Issuer: issuer, Domain: "1pay.ing", Now: func() time.Time { return now }}

	// Solana-only wallet: the dual ask fails, the reduced ask succeeds.
	id, err := d.SignIn(context.Background(), newSolanaWallet(t))
	require.NoError(t, err)
	assert.NotEmpty(t, id.SvmAddress)
	assert.Empty(t, id.EvmAddress)
}

// ethereumOnlyWallet simulates an injected wallet exposing only an
// Ethereum account.
type ethereumOnlyWallet struct {
	*wallet.KeyWallet
	address string
}

func (w *ethereumOnlyWallet) Connect(context.Context, ...wallet.Chain) ([]wallet.Address, error) {
	return []wallet.Address{{Chain: wallet.ChainEthereum, Address: w.address, ChainID: 8453}}, nil
}

func TestDriverSignInWithEthereum(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))
	d := &Driver{Issuer: issuer, Domain: "1pay.ing", Now: func() time.Time { return now }}

	evmKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	address := ethcrypto.PubkeyToAddress(evmKey.PublicKey).Hex()
	w := &ethereumOnlyWallet{
		KeyWallet: wallet.NewKeyWallet(nil, evmKey, 8453),
		address:   address,
	}

	id, err := d.SignIn(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, address, id.EvmAddress)
	assert.Empty(t, id.SvmAddress)
	assert.Equal(t, 1, issuer.ethCalls)
	assert.Equal(t, 0, issuer.solanaCalls)
}

// mismatchWallet reports a different signer than the address it
// connected with.
type mismatchWallet struct {
	*wallet.KeyWallet
	other solana.PrivateKey
}

func (w *mismatchWallet) SignMessage(ctx context.Context, message string) ([]byte, string, error) {
	sig, err := w.other.Sign([]byte(message))
	if err != nil {
		return nil, "", err
	}
	return sig[:], w.other.PublicKey().String(), nil
}

func TestDriverAddressMismatchAborts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))
	d := &Driver{Issuer: issuer, Domain: "1pay.ing", Now: func() time.Time { return now }}

	solKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w := &mismatchWallet{KeyWallet: wallet.NewKeyWallet(solKey, nil, 0), other: other}

	_, err = d.SignIn(context.Background(), w)
	require.Error(t, err)
	assert.Equal(t, errs.KindAddressMismatch, errs.KindOf(err))
	assert.Equal(t, 0, issuer.solanaCalls, "challenge is never redeemed")
}

func TestDriverSessionSignatureBinding(t *testing.T) {
	// The session key countersigns the wallet signature bytes; a
	// countersignature over anything else must not verify.
	sessionPub, sessionKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sessionDER := identity.WrapEd25519DER(sessionPub)

	walletSig := []byte("wallet-signature-bytes")
	good := ed25519.Sign(sessionKey, walletSig)
	require.NoError(t, verifySessionSig(sessionDER, walletSig, good))

	tampered := append([]byte(nil), walletSig...)
	tampered[0] ^= 1
	assert.Error(t, verifySessionSig(sessionDER, tampered, good))
}
