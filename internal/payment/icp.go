package payment

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/aviate-labs/agent-go/principal"

	"github.com/ldclabs/1paying/internal/client"
	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/identity"
	"github.com/ldclabs/1paying/internal/x402"
)

// Approver grants an ICRC-2 allowance on a ledger so the payment
// canister can draw the authorized amount.
type Approver interface {
	ApproveAllowance(ctx context.Context, ledger, spender principal.Principal, amount *big.Int, expiresAtNS uint64) error
}

// Canister asks the payment canister to assemble the opaque payment
// object carried in the x402 payload.
type Canister interface {
	CreatePayment(ctx context.Context, canister principal.Principal, req *x402.PaymentRequirements, payer principal.Principal) (json.RawMessage, error)
}

// buildICP runs the allowance path: approve the payment canister on the
// ledger, then let it build the payload. Requires an authenticated
// identity since both calls are made as the session principal.
func (b *Builder) buildICP(ctx context.Context, req *x402.PaymentRequirements) (string, any, error) {
	if b.Identity == nil || !b.Identity.IsAuthenticated() {
		return "", nil, errs.New(errs.KindPrecondition, "icp payments require a signed-in identity")
	}
	if b.Approver == nil || b.Canister == nil {
		return "", nil, errs.New(errs.KindPrecondition, "icp payment support is not configured")
	}

	ledger, err := principal.Decode(req.Asset)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid ledger canister")
	}
	spender, err := icpPaymentCanister(req)
	if err != nil {
		return "", nil, err
	}
	amount, err := req.Amount()
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid payment requirement")
	}

	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	expiresAtNS := uint64(b.now().UnixNano()) + uint64(timeout)*1e9

	payer := b.Identity.Principal()
	if err := b.Approver.ApproveAllowance(ctx, ledger, spender, amount, expiresAtNS); err != nil {
		return "", nil, err
	}

	raw, err := b.Canister.CreatePayment(ctx, spender, req, payer)
	if err != nil {
		return "", nil, err
	}
	return payer.String(), &x402.IcpPayload{Payload: raw}, nil
}

// icpPaymentCanister resolves the payment canister: named by the
// network suffix ("icp-<canister>"), with extra.canister as fallback
// for the bare "icp" network.
func icpPaymentCanister(req *x402.PaymentRequirements) (principal.Principal, error) {
	text := strings.TrimPrefix(req.Network, "icp-")
	if text == req.Network || text == "" {
		text = req.GetExtraString("canister")
	}
	if text == "" {
		return principal.Principal{}, errs.New(errs.KindPrecondition,
			"payment requirement names no payment canister")
	}
	p, err := principal.Decode(text)
	if err != nil {
		return principal.Principal{}, errs.Wrap(errs.KindPrecondition, err, "invalid payment canister")
	}
	return p, nil
}

// ICPGateway serves both ICP capabilities over the application's HTTP
// gateway. Requests are signed with the caller's session key and carry
// the delegation chain so the gateway can authenticate the principal.
type ICPGateway struct {
	base string
	http *client.Client
	id   *identity.Identity
}

// NewICPGateway creates a gateway client bound to an identity.
func NewICPGateway(base string, hc *client.Client, id *identity.Identity) *ICPGateway {
	if hc == nil {
		hc = client.New()
	}
	return &ICPGateway{base: base, http: hc, id: id}
}

type gatewayEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

func (g *ICPGateway) call(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.KindPrecondition, err, "encode %s args failed", method)
	}
	sig, err := g.id.Sign(body)
	if err != nil {
		return err
	}

	req := map[string]any{
		"args":           json.RawMessage(body),
		"sender":         g.id.Principal().String(),
		"session_pubkey": g.id.SessionPubkeyDER(),
		"session_sig":    sig,
		"delegation":     g.id.Chain(),
	}
	var env gatewayEnvelope
	if err := g.http.PostJSON(ctx, g.base+"/"+method, req, &env); err != nil {
		return errs.Wrap(errs.KindRemoteCall, err, "call %s failed", method)
	}
	if env.Error != "" {
		return errs.New(errs.KindRemoteCall, "call %s failed: %s", method, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return errs.Wrap(errs.KindRemoteCall, err, "decode %s result failed", method)
		}
	}
	return nil
}

func (g *ICPGateway) ApproveAllowance(ctx context.Context, ledger, spender principal.Principal, amount *big.Int, expiresAtNS uint64) error {
	return g.call(ctx, "icrc2_approve", map[string]any{
		"ledger":     ledger.String(),
		"spender":    spender.String(),
		"amount":     amount.String(),
		"expires_at": expiresAtNS,
	}, nil)
}

func (g *ICPGateway) CreatePayment(ctx context.Context, canister principal.Principal, req *x402.PaymentRequirements, payer principal.Principal) (json.RawMessage, error) {
	var raw json.RawMessage
	err := g.call(ctx, "create_payment", map[string]any{
		"canister":    canister.String(),
		"payer":       payer.String(),
		"requirement": req,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
