package relay

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"

	"github.com/ldclabs/1paying/internal/errs"
)

// x25519Context is the domain-separation prefix for deriving the
// key-exchange scalar from the session secret. The exchange keypair is
// dedicated: the ed25519 scalar is never reused for Diffie-Hellman.
const x25519Context = "1paying/phantom/x25519/v1"

const secretLen = 32

// keys holds the two keypairs derived deterministically from one
// session secret: the ed25519 signing key that authenticates relay
// requests, and the X25519 exchange key used for the box channel.
type keys struct {
	secret   []byte
	signKey  ed25519.PrivateKey
	signPub  ed25519.PublicKey
	exchPriv [32]byte
	exchPub  [32]byte
}

func deriveKeys(secret []byte) (*keys, error) {
	if len(secret) != secretLen {
		return nil, fmt.Errorf("invalid relay secret length: expected %d bytes, got %d", secretLen, len(secret))
	}

	k := &keys{secret: append([]byte(nil), secret...)}
	k.signKey = ed25519.NewKeyFromSeed(k.secret)
	k.signPub = k.signKey.Public().(ed25519.PublicKey)

	scalar := sha256.Sum256(append([]byte(x25519Context), k.secret...))
	k.exchPriv = scalar
	pub, err := curve25519.X25519(k.exchPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive exchange public key: %w", err)
	}
	copy(k.exchPub[:], pub)

	return k, nil
}

func newSecret() ([]byte, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate relay secret: %w", err)
	}
	return secret, nil
}

// sharedSecret precomputes the box key for the wallet's exchange public
// key (base58).
func (k *keys) sharedSecret(walletPubkey string) (*[32]byte, error) {
	raw, err := base58.Decode(walletPubkey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid wallet exchange public key: %q", walletPubkey)
	}
	var peer [32]byte
	copy(peer[:], raw)

	shared := new([32]byte)
	box.Precompute(shared, &peer, &k.exchPriv)
	return shared, nil
}

func base58EncodeKey(key [32]byte) string {
	return base58.Encode(key[:])
}

func newNonce() ([24]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// sealBase58 encrypts plaintext under the shared secret, returning the
// base58 form the wallet protocol expects.
func sealBase58(shared *[32]byte, plaintext []byte, nonce [24]byte) (string, error) {
	if shared == nil {
		return "", errs.New(errs.KindPrecondition, "shared secret is not established")
	}
	return base58.Encode(box.SealAfterPrecomputation(nil, plaintext, &nonce, shared)), nil
}

// openBase58 decrypts a base58 box payload with its base58 nonce.
func openBase58(shared *[32]byte, data, nonce string) ([]byte, error) {
	if shared == nil {
		return nil, errs.New(errs.KindPrecondition, "shared secret is not established")
	}

	raw, err := base58.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted payload: %w", err)
	}
	rawNonce, err := base58.Decode(nonce)
	if err != nil || len(rawNonce) != 24 {
		return nil, fmt.Errorf("invalid payload nonce: %q", nonce)
	}
	var n [24]byte
	copy(n[:], rawNonce)

	plaintext, ok := box.OpenAfterPrecomputation(nil, raw, &n, shared)
	if !ok {
		return nil, fmt.Errorf("unable to decrypt relay payload")
	}
	return plaintext, nil
}
