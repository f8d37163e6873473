package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ldclabs/1paying/internal/errs"
	"github.com/ldclabs/1paying/internal/wallet"
	"github.com/ldclabs/1paying/internal/x402"
)

// validAfterSkew backdates the authorization window so minor clock
// drift between client and chain cannot invalidate it.
const validAfterSkew = 600 // seconds

const defaultTimeoutSeconds = 600

// buildEVM signs an EIP-3009 TransferWithAuthorization over EIP-712
// typed data. The token contract's domain name and version come from
// the requirement's extra fields.
func (b *Builder) buildEVM(ctx context.Context, req *x402.PaymentRequirements) (string, any, error) {
	chainID, err := x402.ExtractChainID(req.Network)
	if err != nil {
		return "", nil, err
	}
	addr, err := b.connectAddress(ctx, wallet.ChainEthereum)
	if err != nil {
		return "", nil, err
	}
	amount, err := req.Amount()
	if err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "invalid payment requirement")
	}

	name := req.GetExtraString("name")
	version := req.GetExtraString("version")
	if name == "" || version == "" {
		return "", nil, errs.New(errs.KindPrecondition,
			"payment requirement lacks the token domain name/version")
	}

	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	nowSec := b.now().Unix()
	validAfter := nowSec - validAfterSkew
	validBefore := nowSec + int64(timeout)

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", nil, errs.Wrap(errs.KindPrecondition, err, "generate authorization nonce failed")
	}
	nonceHex := "0x" + hex.EncodeToString(nonce[:])

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: req.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        addr.Address,
			"to":          req.PayTo,
			"value":       amount.String(),
			"validAfter":  new(big.Int).SetInt64(validAfter).String(),
			"validBefore": new(big.Int).SetInt64(validBefore).String(),
			"nonce":       nonceHex,
		},
	}

	signature, err := b.Wallet.SignTypedData(ctx, typedData, addr.Address)
	if err != nil {
		return "", nil, err
	}

	payload := &x402.EvmPayload{
		Signature: signature,
		Authorization: x402.EvmAuthorization{
			From:        addr.Address,
			To:          req.PayTo,
			Value:       amount.String(),
			ValidAfter:  fmt.Sprintf("%d", validAfter),
			ValidBefore: fmt.Sprintf("%d", validBefore),
			Nonce:       nonceHex,
		},
	}
	return addr.Address, payload, nil
}
