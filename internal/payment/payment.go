// Package payment builds signed x402 payment authorizations for the
// supported network families: EIP-3009 typed-data authorizations on
// EVM networks, partially-signed transfer transactions on Solana, and
// allowance-backed canister payments on ICP.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
	"github.com/ldclabs/1paying/internal/logging"
	"github.com/ldclabs/1paying/internal/wallet"
	"github.com/ldclabs/1paying/internal/x402"
)

// Log records one authorization for local history. Submission and
// confirmation happen elsewhere, so status stays "pending" here.
type Log struct {
	ID             uuid.UUID `json:"id"`
	Network        string    `json:"network"`
	Scheme         string    `json:"scheme"`
	Payer          string    `json:"payer"`
	PayTo          string    `json:"payTo"`
	Asset          string    `json:"asset"`
	Resource       string    `json:"resource"`
	AmountRequired string    `json:"amountRequired"`
	Status         string    `json:"status"`
	SignedAt       int64     `json:"signedAt"` // ms since epoch
}

// Authorization is a built payment: the versioned payload, its header
// encoding, and the local log entry.
type Authorization struct {
	Payload *x402.PaymentPayload
	Header  string
	Log     Log
}

// Builder signs payment authorizations against one wallet and identity.
type Builder struct {
	Wallet   wallet.Wallet
	Identity *identity.Identity
	// Approver and Canister serve the ICP allowance path; both may be
	// nil when ICP networks are not used.
	Approver Approver
	Canister Canister
	// RPC supplies a Solana RPC client for the given network. Defaults
	// to the public cluster endpoints.
	RPC    func(network string) SolanaRPC
	Logger logging.Logger

	// Now overrides the clock. Intended for tests.
	Now func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Builder) logger() logging.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return logging.Noop{}
}

// Authorize builds and signs a payment payload for req. The scheme must
// be "exact" or "upto"; for "upto" the requirement amount is the cap and
// is authorized in full, the resource settles the actual usage.
func (b *Builder) Authorize(ctx context.Context, version int, req *x402.PaymentRequirements) (*Authorization, error) {
	if req.Scheme != x402.SchemeExact && req.Scheme != x402.SchemeUpto {
		return nil, errs.New(errs.KindPrecondition, "unsupported payment scheme %q", req.Scheme)
	}
	if _, err := req.Amount(); err != nil {
		return nil, errs.Wrap(errs.KindPrecondition, err, "invalid payment requirement")
	}

	family, err := x402.NetworkFamily(req.Network)
	if err != nil {
		return nil, err
	}

	var payer string
	var payload any
	switch family {
	case x402.FamilyEVM:
		payer, payload, err = b.buildEVM(ctx, req)
	case x402.FamilySolana:
		payer, payload, err = b.buildSolana(ctx, req)
	case x402.FamilyICP:
		payer, payload, err = b.buildICP(ctx, req)
	default:
		err = errs.New(errs.KindUnsupportedNetwork, "unsupported network %q", req.Network)
	}
	if err != nil {
		return nil, err
	}

	envelope := x402.BuildPayload(version, req, payload)
	header, err := x402.EncodePayload(envelope)
	if err != nil {
		return nil, errs.Wrap(errs.KindPrecondition, err, "encode payment payload failed")
	}

	auth := &Authorization{
		Payload: envelope,
		Header:  header,
		Log: Log{
			ID:             uuid.New(),
			Network:        req.Network,
			Scheme:         req.Scheme,
			Payer:          payer,
			PayTo:          req.PayTo,
			Asset:          req.Asset,
			Resource:       req.Resource,
			AmountRequired: req.MaxAmountRequired,
			Status:         "pending",
			SignedAt:       b.now().UnixMilli(),
		},
	}
	b.logger().Info("payment authorized", map[string]any{
		"id":      auth.Log.ID.String(),
		"network": req.Network,
		"scheme":  req.Scheme,
		"amount":  req.MaxAmountRequired,
		"payTo":   req.PayTo,
	})
	return auth, nil
}

// connectAddress discovers the wallet address for one chain family.
func (b *Builder) connectAddress(ctx context.Context, chain wallet.Chain) (*wallet.Address, error) {
	addresses, err := b.Wallet.Connect(ctx, chain)
	if err != nil {
		return nil, err
	}
	addr := wallet.FindAddress(addresses, chain)
	if addr == nil {
		return nil, errs.New(errs.KindPrecondition, "wallet exposed no %s address", chain)
	}
	return addr, nil
}
