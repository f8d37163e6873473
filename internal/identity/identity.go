package identity

import (
	"crypto/ed25519"
	"math"
	"sync"
	"time"

	"github.com/aviate-labs/agent-go/principal"

	"github.com/ldclabs/1paying/internal/errs"
)

// Origin tags which wallet flow established an identity.
type Origin string

const (
	OriginICP     Origin = "ICP"
	OriginPhantom Origin = "Phantom"
)

// DefaultExpiration is the caller-specified session lifetime.
const DefaultExpiration = 30 * 24 * time.Hour

// ExpiryMargin is subtracted from the expiration when answering
// IsExpired, so a delegation is never used right at its boundary.
const ExpiryMargin = 5 * time.Minute

// ed25519DERPrefix is the SubjectPublicKeyInfo header for an Ed25519 key.
var ed25519DERPrefix = []byte{
	0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00,
}

// WrapEd25519DER wraps a raw ed25519 public key in its DER encoding.
func WrapEd25519DER(pub ed25519.PublicKey) []byte {
	return append(append([]byte(nil), ed25519DERPrefix...), pub...)
}

// Identity is the client-held representation of an authenticated
// principal: a session key bound to a root identity through a delegation
// chain, plus expiry and bound-address metadata.
type Identity struct {
	// Name is an optional human label.
	Name string
	// SvmAddress is the bound Solana address, if any.
	SvmAddress string
	// EvmAddress is the bound EVM address, if any.
	EvmAddress string
	// BackedBy tags the wallet flow that established this identity.
	BackedBy Origin

	key        ed25519.PrivateKey
	chain      *Chain
	expiration int64 // ms since epoch; MaxInt64 for anonymous

	mu        sync.Mutex
	hook      func()
	hookFired bool
	now       func() time.Time
}

// Anonymous returns the identity used before sign-in. It never expires
// and binds no addresses.
func Anonymous() *Identity {
	return &Identity{
		BackedBy:   OriginICP,
		expiration: math.MaxInt64,
		now:        time.Now,
	}
}

// New builds a delegated identity from a session key and its chain.
// The effective expiration is the minimum of expirationMS and the
// earliest delegation expiration in the chain.
func New(key ed25519.PrivateKey, chain *Chain, expirationMS int64) *Identity {
	return &Identity{
		key:        key,
		chain:      chain,
		expiration: chain.ExpirationMS(expirationMS),
		now:        time.Now,
	}
}

// WithClock overrides the identity's clock. Intended for tests.
func (id *Identity) WithClock(now func() time.Time) *Identity {
	id.now = now
	return id
}

// IsAnonymous reports whether this identity predates any sign-in.
func (id *Identity) IsAnonymous() bool { return id.key == nil }

// ExpirationMS returns the effective expiration in ms since epoch.
func (id *Identity) ExpirationMS() int64 { return id.expiration }

// Chain returns the delegation chain, or nil for anonymous identities.
func (id *Identity) Chain() *Chain { return id.chain }

// Principal returns the authenticated principal: self-authenticating
// from the root user key, or the anonymous principal.
func (id *Identity) Principal() principal.Principal {
	if id.IsAnonymous() {
		return principal.AnonymousID
	}
	return principal.NewSelfAuthenticating(id.chain.PublicKey)
}

// IsExpired reports whether now is within ExpiryMargin of expiration.
func (id *Identity) IsExpired() bool {
	return id.now().UnixMilli() >= id.expiration-ExpiryMargin.Milliseconds()
}

// IsAuthenticated reports whether this identity is non-anonymous and
// not expired.
func (id *Identity) IsAuthenticated() bool {
	return !id.IsAnonymous() && !id.IsExpired()
}

// SetExpiredHook registers the hook fired when a request is attempted
// through an expired identity. Re-arms the hook: it will fire at most
// once after each call.
func (id *Identity) SetExpiredHook(hook func()) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.hook = hook
	id.hookFired = false
}

// Sign signs msg with the session key. An expired identity rejects with
// an Expired error and fires the registered expiry hook exactly once.
func (id *Identity) Sign(msg []byte) ([]byte, error) {
	if id.IsAnonymous() {
		return nil, errs.New(errs.KindPrecondition, "anonymous identity cannot sign")
	}
	if id.IsExpired() {
		id.fireExpiredHook()
		return nil, errs.New(errs.KindExpired, "identity expired, please sign in again")
	}
	return ed25519.Sign(id.key, msg), nil
}

// SessionPubkeyDER returns the DER-encoded session public key.
func (id *Identity) SessionPubkeyDER() []byte {
	if id.IsAnonymous() {
		return nil
	}
	return WrapEd25519DER(id.key.Public().(ed25519.PublicKey))
}

func (id *Identity) fireExpiredHook() {
	id.mu.Lock()
	hook := id.hook
	fired := id.hookFired
	id.hookFired = true
	id.mu.Unlock()

	if hook != nil && !fired {
		hook()
	}
}
