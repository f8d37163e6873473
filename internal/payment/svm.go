package payment

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/wallet"
	"github.com/ldclabs/1paying/internal/x402"
)

// Compute budget attached to transfer transactions; a checked transfer
// plus an optional account create stays well under this limit.
const (
	computeUnitLimit = 200_000
	computeUnitPrice = 1 // micro-lamports
)

// SolanaRPC is the subset of the Solana JSON-RPC surface the builder
// needs. *rpc.Client satisfies it.
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

func (b *Builder) solanaRPC(network string) SolanaRPC {
	if b.RPC != nil {
		return b.RPC(network)
	}
	return rpc.New(x402.SolanaRPCURL(network))
}

// buildSolana assembles a transfer transaction, creating the recipient's
// associated token account when it does not exist yet, and signs it with
// the owner key only. The facilitator named in extra.feePayer pays fees
// and completes the signature set.
func (b *Builder) buildSolana(ctx context.Context, req *x402.PaymentRequirements) (string, any, error) {
	addr, err := b.connectAddress(ctx, wallet.ChainSolana)
	if err != nil {
		return "", nil, err
	}
	amount, err := req.Amount()
	if err != nil || !amount.IsUint64() {
		return "", nil, errs.New(errs.KindPrecondition, "invalid solana payment amount %q", req.MaxAmountRequired)
	}

	feePayerStr := req.GetExtraString("feePayer")
	if feePayerStr == "" {
		return "", nil, errs.New(errs.KindPrecondition, "payment requirement lacks a fee payer")
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid fee payer")
	}
	owner, err := solana.PublicKeyFromBase58(addr.Address)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid owner address")
	}
	mint, err := solana.PublicKeyFromBase58(req.Asset)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid token mint")
	}
	recipient, err := solana.PublicKeyFromBase58(req.PayTo)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid recipient address")
	}

	source, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "derive source token account failed")
	}
	destination, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "derive destination token account failed")
	}

	client := b.solanaRPC(req.Network)

	decimals, err := b.mintDecimals(ctx, client, mint)
	if err != nil {
		return "", nil, err
	}
	createDestination, err := b.accountMissing(ctx, client, destination)
	if err != nil {
		return "", nil, err
	}

	var instructions []solana.Instruction
	if createDestination {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(feePayer, recipient, mint).Build())
	}
	instructions = append(instructions,
		computebudget.NewSetComputeUnitLimitInstruction(computeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(computeUnitPrice).Build(),
		token.NewTransferCheckedInstruction(
			amount.Uint64(), decimals, source, mint, destination, owner, nil,
		).Build())

	blockhash, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", nil, errs.Wrap(errs.KindRemoteCall, err, "get latest blockhash failed")
	}

	tx, err := solana.NewTransaction(instructions,
		blockhash.Value.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "assemble transaction failed")
	}

	signed, err := b.Wallet.SignTransaction(ctx, tx)
	if err != nil {
		return "", nil, err
	}
	wire, err := signed.MarshalBinary()
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "serialize transaction failed")
	}

	payload := &x402.SvmPayload{Transaction: base64.StdEncoding.EncodeToString(wire)}
	return addr.Address, payload, nil
}

func (b *Builder) mintDecimals(ctx context.Context, client SolanaRPC, mintAddr solana.PublicKey) (uint8, error) {
	info, err := client.GetAccountInfo(ctx, mintAddr)
	if err != nil {
		return 0, errs.Wrap(errs.KindRemoteCall, err, "get mint account failed")
	}
	if info.Value == nil {
		return 0, errs.New(errs.KindRemoteCall, "token mint %s not found", mintAddr)
	}
	var mint token.Mint
	if err := mint.Decode(info.Value.Data.GetBinary()); err != nil {
		return 0, errs.Wrap(errs.KindRemoteCall, err, "decode mint account failed")
	}
	return mint.Decimals, nil
}

func (b *Builder) accountMissing(ctx context.Context, client SolanaRPC, account solana.PublicKey) (bool, error) {
	info, err := client.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.KindRemoteCall, err, "get token account failed")
	}
	return info.Value == nil, nil
}
