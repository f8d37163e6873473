package signin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/relay"
	"github.com/ldclabs/1paying/internal/store"
	"github.com/ldclabs/1paying/internal/wallet"
)

func testManagerConfig(t *testing.T, s store.Store, issuer Issuer, now *time.Time) Config {
	t.Helper()
	return Config{
		Store:  s,
		Issuer: issuer,
		Domain: "1pay.ing",
		Relay: relay.Config{
			OpenURL: func(string) error { return nil },
		},
		Now: func() time.Time { return *now },
	}
}

func TestManagerSignInPersistAndRestore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemory()
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))

	m, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	assert.True(t, m.Current().IsAnonymous())
	assert.Equal(t, []string{"icp"}, m.SupportNetworks())

	id, err := m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.NoError(t, err)
	assert.True(t, id.IsAuthenticated())
	assert.Equal(t, fullSupportNetworks, m.SupportNetworks())
	assert.Same(t, id, m.Current())

	// A second manager over the same store restores the session.
	m2, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	restored := m2.Current()
	assert.True(t, restored.IsAuthenticated())
	assert.Equal(t, id.Principal(), restored.Principal())
	assert.Equal(t, id.SvmAddress, restored.SvmAddress)
	assert.Equal(t, fullSupportNetworks, m2.SupportNetworks())
}

func TestManagerLogout(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemory()
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))

	m, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	_, err = m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.NoError(t, err)

	oldRelay := m.Relay()
	require.NoError(t, m.Logout())

	assert.True(t, m.Current().IsAnonymous())
	assert.Equal(t, []string{"icp"}, m.SupportNetworks())
	assert.NotSame(t, oldRelay, m.Relay(), "relay session is replaced")

	data, err := s.Get(store.KeyIdentity)
	require.NoError(t, err)
	assert.Nil(t, data)

	// And nothing restores afterwards.
	m2, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	assert.True(t, m2.Current().IsAnonymous())
}

func TestManagerExpiryHookDropsSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemory()
	issuer := newFakeIssuer(t, now.Add(time.Hour))

	m, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	id, err := m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = id.Sign([]byte("late request"))
	assert.Equal(t, errs.KindExpired, errs.KindOf(err))

	assert.True(t, m.Current().IsAnonymous(), "expiry hook logged the session out")
	data, err := s.Get(store.KeyIdentity)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestManagerCheckIdentityMismatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemory()
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))

	m, err := NewManager(testManagerConfig(t, s, issuer, &now))
	require.NoError(t, err)
	_, err = m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.NoError(t, err)

	// Same wallet: no complaint.
	require.NoError(t, m.CheckIdentity(context.Background(), walletFromIdentity(t, m)))

	// A different wallet invalidates the session.
	err = m.CheckIdentity(context.Background(), newDualWallet(t))
	require.Error(t, err)
	assert.Equal(t, errs.KindAddressMismatch, errs.KindOf(err))
	assert.True(t, m.Current().IsAnonymous())
	assert.Equal(t, []string{"icp"}, m.SupportNetworks())

	data, err := s.Get(store.KeyIdentity)
	require.NoError(t, err)
	assert.Nil(t, data, "stored identity is invalidated")
}

// walletFromIdentity builds a stub wallet exposing exactly the addresses
// the current identity is bound to.
func walletFromIdentity(t *testing.T, m *Manager) wallet.Wallet {
	t.Helper()
	id := m.Current()
	return &addressWallet{addresses: []wallet.Address{
		{Chain: wallet.ChainSolana, Address: id.SvmAddress},
		{Chain: wallet.ChainEthereum, Address: id.EvmAddress, ChainID: 8453},
	}}
}

type addressWallet struct {
	wallet.KeyWallet
	addresses []wallet.Address
}

func (w *addressWallet) Connect(context.Context, ...wallet.Chain) ([]wallet.Address, error) {
	return w.addresses, nil
}

// blockingWallet parks Connect until released, to hold a sign-in open.
type blockingWallet struct {
	wallet.KeyWallet
	entered     chan struct{}
	enteredOnce sync.Once
	release     chan struct{}
}

func (w *blockingWallet) Connect(ctx context.Context, _ ...wallet.Chain) ([]wallet.Address, error) {
	// The driver retries Connect with reduced chain sets; only the
	// first call may close the signal channel.
	w.enteredOnce.Do(func() { close(w.entered) })
	select {
	case <-w.release:
	case <-ctx.Done():
	}
	return nil, errs.New(errs.KindPrecondition, "no addresses")
}

func TestManagerRejectsConcurrentSignIn(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newFakeIssuer(t, now.Add(7*24*time.Hour))

	m, err := NewManager(testManagerConfig(t, store.NewMemory(), issuer, &now))
	require.NoError(t, err)

	w := &blockingWallet{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	done := make(chan error, 1)
	go func() {
		_, err := m.SignInWithWallet(context.Background(), w)
		done <- err
	}()

	<-w.entered
	_, err = m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.Error(t, err)
	assert.Equal(t, errs.KindPrecondition, errs.KindOf(err))
	assert.Contains(t, err.Error(), "already in progress")

	close(w.release)
	require.Error(t, <-done, "the blocked attempt fails on its own terms")

	// With the slot free again, sign-in works.
	_, err = m.SignInWithWallet(context.Background(), newDualWallet(t))
	require.NoError(t, err)
}
