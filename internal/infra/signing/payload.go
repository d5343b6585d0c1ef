package signing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

const (
	withdrawalPrimaryType    = "Withdrawal"
	batchApprovalPrimaryType = "BatchApproval"
)

var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var withdrawalType = []apitypes.Type{
	{Name: "token", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "recipient", Type: "address"},
	{Name: "nonce", Type: "uint256"},
	{Name: "reason", Type: "string"},
}

var batchApprovalType = []apitypes.Type{
	{Name: "batchId", Type: "string"},
	{Name: "token", Type: "address"},
	{Name: "totalAmount", Type: "uint256"},
	{Name: "itemCount", Type: "uint256"},
	{Name: "expiresAt", Type: "uint256"},
}

func (d Domain) typedDomain(vault common.Address) (apitypes.TypedDataDomain, error) {
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return apitypes.TypedDataDomain{}, errors.New("chain id is required")
	}
	if vault == (common.Address{}) {
		return apitypes.TypedDataDomain{}, errors.New("vault address is required")
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
		VerifyingContract: vault.Hex(),
	}, nil
}

// BuildSigningPayload binds a withdrawal request to one vault on one chain.
func (d Domain) BuildSigningPayload(vault common.Address, req withdrawal.Request) (*apitypes.TypedData, common.Hash, error) {
	if req.Amount == nil || req.Nonce == nil {
		return nil, common.Hash{}, errors.New("amount and nonce are required")
	}
	domain, err := d.typedDomain(vault)
	if err != nil {
		return nil, common.Hash{}, err
	}

	td := &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":        eip712DomainType,
			withdrawalPrimaryType: withdrawalType,
		},
		PrimaryType: withdrawalPrimaryType,
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"token":     req.Token.Hex(),
			"amount":    req.Amount.String(),
			"recipient": req.Recipient.Hex(),
			"nonce":     req.Nonce.String(),
			"reason":    req.Reason,
		},
	}
	return hashTypedData(td)
}

// BuildBatchApprovalPayload is what a guardian signs to approve a batch.
func (d Domain) BuildBatchApprovalPayload(vault common.Address, b *withdrawal.Batch) (*apitypes.TypedData, common.Hash, error) {
	if b == nil || b.TotalAmount == nil {
		return nil, common.Hash{}, errors.New("batch is incomplete")
	}
	domain, err := d.typedDomain(vault)
	if err != nil {
		return nil, common.Hash{}, err
	}

	td := &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":           eip712DomainType,
			batchApprovalPrimaryType: batchApprovalType,
		},
		PrimaryType: batchApprovalPrimaryType,
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"batchId":     b.BatchID,
			"token":       b.Token().Hex(),
			"totalAmount": b.TotalAmount.String(),
			"itemCount":   big.NewInt(int64(len(b.Items))).String(),
			"expiresAt":   big.NewInt(b.ExpiresAt.Unix()).String(),
		},
	}
	return hashTypedData(td)
}

func hashTypedData(td *apitypes.TypedData) (*apitypes.TypedData, common.Hash, error) {
	sighash, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return nil, common.Hash{}, errors.Wrap(err, "failed to hash typed data")
	}
	return td, common.BytesToHash(sighash), nil
}
