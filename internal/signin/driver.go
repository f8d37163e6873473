package signin

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
	"github.com/ldclabs/1paying/internal/logging"
	"github.com/ldclabs/1paying/internal/wallet"
)

// connectAttempts is the ordered capability fallback for wallet connect:
// ask for both families first, then Solana alone.
var connectAttempts = [][]wallet.Chain{
	{wallet.ChainSolana, wallet.ChainEthereum},
	{wallet.ChainSolana},
}

// Driver runs one sign-in attempt against the issuing service. It is
// stateless: every attempt generates a fresh ephemeral session keypair
// and either yields a fully assembled identity or nothing.
type Driver struct {
	Issuer Issuer
	Domain string
	Logger logging.Logger

	// Now overrides the clock. Intended for tests.
	Now func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) logger() logging.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logging.Noop{}
}

// SignIn connects the wallet, runs the challenge/redeem exchange and
// fetches the delegation. The returned identity is not persisted; the
// session manager owns the persist-then-commit step.
func (d *Driver) SignIn(ctx context.Context, w wallet.Wallet) (*identity.Identity, error) {
	addresses, err := d.connect(ctx, w)
	if err != nil {
		return nil, err
	}

	sessionPub, sessionKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.KindPrecondition, err, "generate session key failed")
	}
	sessionPubkeyDER := identity.WrapEd25519DER(sessionPub)

	svm := wallet.FindAddress(addresses, wallet.ChainSolana)
	evm := wallet.FindAddress(addresses, wallet.ChainEthereum)
	nowMS := d.now().UnixMilli()

	var res *SignInResponse
	switch {
	case svm != nil:
		res, err = d.signInWithSolana(ctx, w, svm.Address, nowMS, sessionPubkeyDER, sessionKey)
	case evm != nil:
		res, err = d.signInWithEthereum(ctx, w, evm.Address, evm.ChainID, nowMS, sessionPubkeyDER, sessionKey)
	default:
		err = errs.New(errs.KindPrecondition, "wallet exposed no usable address")
	}
	if err != nil {
		return nil, err
	}

	sd, err := d.Issuer.GetDelegation(ctx, res.Seed, sessionPubkeyDER, res.Expiration)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sd.Delegation.Pubkey, sessionPubkeyDER) {
		return nil, errs.New(errs.KindRemoteCall, "delegation bound to a different session key")
	}

	chain := identity.NewChain(res.UserKey, *sd)
	capMS := d.now().Add(identity.DefaultExpiration).UnixMilli()
	id := identity.New(sessionKey, chain, capMS)
	id.BackedBy = identity.OriginPhantom
	if svm != nil {
		id.SvmAddress = svm.Address
	}
	if evm != nil {
		id.EvmAddress = evm.Address
	}

	d.logger().Info("signed in", map[string]any{
		"principal":  id.Principal().String(),
		"expiration": id.ExpirationMS(),
		"svm":        id.SvmAddress,
		"evm":        id.EvmAddress,
	})
	return id, nil
}

// connect walks the capability fallback, keeping the first attempt's
// error when every reduced set also fails.
func (d *Driver) connect(ctx context.Context, w wallet.Wallet) ([]wallet.Address, error) {
	var firstErr error
	for _, chains := range connectAttempts {
		addresses, err := w.Connect(ctx, chains...)
		if err == nil {
			return addresses, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		d.logger().Debug("wallet connect attempt failed", map[string]any{
			"chains": chains, "error": err.Error(),
		})
	}
	return nil, firstErr
}

func (d *Driver) signInWithSolana(ctx context.Context, w wallet.Wallet, address string, nowMS int64, sessionPubkeyDER []byte, sessionKey ed25519.PrivateKey) (*SignInResponse, error) {
	message, err := d.Issuer.GetSignInWithSolanaMessage(ctx, d.Domain, address, nowMS)
	if err != nil {
		return nil, err
	}

	sig, signer, err := w.SignMessage(ctx, message)
	if err != nil {
		return nil, err
	}
	if signer != address {
		return nil, errs.New(errs.KindAddressMismatch,
			"message signed by %s, expected %s", signer, address)
	}

	// The session key countersigns the wallet signature, binding the
	// ephemeral key to this specific challenge redemption.
	sessionSig := ed25519.Sign(sessionKey, sig)
	return d.Issuer.SignInWithSolana(ctx, d.Domain, address, nowMS, message, sig, sessionPubkeyDER, sessionSig)
}

func (d *Driver) signInWithEthereum(ctx context.Context, w wallet.Wallet, address string, chainID, nowMS int64, sessionPubkeyDER []byte, sessionKey ed25519.PrivateKey) (*SignInResponse, error) {
	message, err := d.Issuer.GetSignInWithEthereumMessage(ctx, d.Domain, address, chainID, nowMS)
	if err != nil {
		return nil, err
	}

	hexSig, err := w.SignPersonalMessage(ctx, message, address)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(hexSig, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.KindPrecondition, err, "invalid personal signature")
	}

	sessionSig := ed25519.Sign(sessionKey, sig)
	return d.Issuer.SignInWithEthereum(ctx, d.Domain, address, chainID, nowMS, message, sig, sessionPubkeyDER, sessionSig)
}
