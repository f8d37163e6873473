package signin

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
	"github.com/ldclabs/1paying/internal/logging"
	"github.com/ldclabs/1paying/internal/relay"
	"github.com/ldclabs/1paying/internal/store"
	"github.com/ldclabs/1paying/internal/wallet"
)

// fullSupportNetworks is the payment network set available to an
// authenticated identity; anonymous sessions can only use the
// allowance path on ICP.
var (
	fullSupportNetworks      = []string{"icp", "solana", "solana-devnet", "base", "base-sepolia"}
	anonymousSupportNetworks = []string{"icp"}
)

// Config configures a session Manager.
type Config struct {
	Store  store.Store
	Issuer Issuer
	// Domain is the application domain embedded in challenge messages.
	Domain string
	// Relay configures the deep-link relay client the manager owns.
	Relay  relay.Config
	Logger logging.Logger

	// Now overrides the clock. Intended for tests.
	Now func() time.Time
}

// Manager owns the process-wide identity slot and the single deep-link
// relay instance, restoring both from the store at start and keeping
// the store in sync with every transition.
type Manager struct {
	store  store.Store
	issuer Issuer
	domain string
	logger logging.Logger
	now    func() time.Time

	mu              sync.Mutex
	signingIn       bool
	identity        *identity.Identity
	relayCfg        relay.Config
	relay           *relay.Client
	supportNetworks []string
}

// NewManager builds a manager and restores any persisted identity and
// relay session. Corrupt or expired persisted state is cleared and the
// manager starts anonymous.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errs.New(errs.KindPrecondition, "store is required")
	}
	if cfg.Issuer == nil {
		return nil, errs.New(errs.KindPrecondition, "issuer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop{}
	}

	m := &Manager{
		store:           cfg.Store,
		issuer:          cfg.Issuer,
		domain:          cfg.Domain,
		logger:          cfg.Logger,
		now:             cfg.Now,
		relayCfg:        cfg.Relay,
		identity:        identity.Anonymous(),
		supportNetworks: anonymousSupportNetworks,
	}

	if err := m.restoreRelay(); err != nil {
		return nil, err
	}
	if err := m.restoreIdentity(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) restoreRelay() error {
	data, err := m.store.Get(store.KeyRelayState)
	if err != nil {
		return err
	}
	if data != nil {
		var st relay.State
		if err := json.Unmarshal(data, &st); err == nil {
			if c, err := relay.Restore(m.relayCfg, st); err == nil {
				m.relay = c
				return nil
			}
		}
		// Unreadable relay state is dropped, a fresh session replaces it.
		m.logger.Warn("discarding unreadable relay state", nil)
		if err := m.store.Remove(store.KeyRelayState); err != nil {
			return err
		}
	}

	c, err := relay.New(m.relayCfg)
	if err != nil {
		return err
	}
	m.relay = c
	return nil
}

func (m *Manager) restoreIdentity() error {
	id, err := identity.Load(m.store, m.now())
	if err != nil {
		return err
	}
	if id == nil {
		return nil
	}
	id.WithClock(m.now)
	m.commit(id)
	m.logger.Info("restored identity", map[string]any{
		"principal":  id.Principal().String(),
		"expiration": id.ExpirationMS(),
	})
	return nil
}

// Current returns the active identity, anonymous before sign-in.
func (m *Manager) Current() *identity.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Relay returns the manager's deep-link relay client.
func (m *Manager) Relay() *relay.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.relay
}

// SupportNetworks returns the payment networks the current session may
// authorize on.
func (m *Manager) SupportNetworks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.supportNetworks))
	copy(out, m.supportNetworks)
	return out
}

// SignInWithWallet runs a full sign-in over the given wallet and, on
// success, persists and installs the resulting identity. Concurrent
// sign-in attempts are rejected rather than queued.
func (m *Manager) SignInWithWallet(ctx context.Context, w wallet.Wallet) (*identity.Identity, error) {
	m.mu.Lock()
	if m.signingIn {
		m.mu.Unlock()
		return nil, errs.New(errs.KindPrecondition, "sign-in already in progress")
	}
	m.signingIn = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.signingIn = false
		m.mu.Unlock()
	}()

	driver := &Driver{Issuer: m.issuer, Domain: m.domain, Logger: m.logger, Now: m.now}
	id, err := driver.SignIn(ctx, w)
	if err != nil {
		return nil, err
	}
	id.WithClock(m.now)

	// Persist before installing so a failed write never leaves the
	// in-memory session ahead of the store.
	if err := identity.Save(m.store, id); err != nil {
		return nil, err
	}
	if err := m.PersistRelayState(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.commit(id)
	m.mu.Unlock()
	return id, nil
}

// commit installs id as the active identity and arms its expiry hook.
// Callers hold m.mu except during construction.
func (m *Manager) commit(id *identity.Identity) {
	m.identity = id
	m.supportNetworks = fullSupportNetworks
	id.SetExpiredHook(func() {
		m.logger.Warn("identity expired", nil)
		if err := m.Logout(); err != nil {
			m.logger.Error("logout after expiry failed", map[string]any{"error": err.Error()})
		}
	})
}

// PersistRelayState writes the relay session to the store when the
// relay is connected, and clears it otherwise.
func (m *Manager) PersistRelayState() error {
	m.mu.Lock()
	r := m.relay
	m.mu.Unlock()

	if !r.Connected() {
		return m.store.Remove(store.KeyRelayState)
	}
	data, err := json.Marshal(r.State())
	if err != nil {
		return err
	}
	return m.store.Set(store.KeyRelayState, data)
}

// CheckIdentity verifies that the wallet still exposes the addresses
// the current identity was bound to. On mismatch the stored identity is
// invalidated, the session drops to anonymous and an AddressMismatch
// error is returned.
func (m *Manager) CheckIdentity(ctx context.Context, w wallet.Wallet) error {
	m.mu.Lock()
	id := m.identity
	m.mu.Unlock()
	if id.IsAnonymous() {
		return nil
	}

	addresses, err := w.Connect(ctx)
	if err != nil {
		return err
	}

	mismatch := ""
	if id.SvmAddress != "" {
		if a := wallet.FindAddress(addresses, wallet.ChainSolana); a != nil && a.Address != id.SvmAddress {
			mismatch = "solana address changed from " + id.SvmAddress + " to " + a.Address
		}
	}
	if mismatch == "" && id.EvmAddress != "" {
		if a := wallet.FindAddress(addresses, wallet.ChainEthereum); a != nil && !strings.EqualFold(a.Address, id.EvmAddress) {
			mismatch = "ethereum address changed from " + id.EvmAddress + " to " + a.Address
		}
	}
	if mismatch == "" {
		return nil
	}

	if err := m.Logout(); err != nil {
		return err
	}
	return errs.New(errs.KindAddressMismatch, "%s, please sign in again", mismatch)
}

// Logout drops the session: the identity returns to anonymous, the
// relay session is replaced with a fresh unconnected one, and both are
// removed from the store.
func (m *Manager) Logout() error {
	if err := identity.Remove(m.store); err != nil {
		return err
	}
	if err := m.store.Remove(store.KeyRelayState); err != nil {
		return err
	}

	fresh, err := relay.New(m.relayCfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.identity = identity.Anonymous().WithClock(m.now)
	m.relay = fresh
	m.supportNetworks = anonymousSupportNetworks
	m.mu.Unlock()

	m.logger.Info("logged out", nil)
	return nil
}
