package request

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// NonceProvider returns the vault-scoped withdrawal counter.
type NonceProvider interface {
	Nonce(ctx context.Context, vault common.Address) (*big.Int, error)
}

// Store is the part of the persistent store the request service uses.
type Store interface {
	storage.PendingRequestStore
	storage.ActivityStore
}

// CreateRequest holds the caller supplied fields of a new withdrawal request.
type CreateRequest struct {
	Vault          common.Address
	Token          common.Address
	Amount         *big.Int
	Recipient      common.Address
	Reason         string
	RequiredQuorum int
	CreatedBy      common.Address
}

// SubmitResult is the request after a signature was accepted, with the quorum state.
type SubmitResult struct {
	Request      *withdrawal.PendingRequest
	Verification *signing.VerificationSummary
}

// ExecuteResult carries the gateway outcome of one execution attempt.
type ExecuteResult struct {
	Request *withdrawal.PendingRequest
	Outcome gateway.Outcome
}
