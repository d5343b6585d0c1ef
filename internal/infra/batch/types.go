package batch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
)

// Store is the part of the persistent store the batch manager uses.
type Store interface {
	storage.BatchStore
	storage.ActivityStore
}

// ItemInput is one transfer requested at batch creation.
type ItemInput struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	Reason    string
	Category  string
	IsQueued  bool
}

// CreateBatchRequest holds the caller supplied fields of a new batch.
type CreateBatchRequest struct {
	Vault             common.Address
	Creator           common.Address
	Items             []ItemInput
	RequiredApprovals int
}

// Item outcomes reported by ExecutionResult
const (
	ItemExecuted    = "executed"
	ItemFailed      = "failed"
	ItemUnconfirmed = "unconfirmed"
	ItemSkipped     = "skipped"
)

// ItemResult is the outcome of one item in an execution run.
type ItemResult struct {
	Index  int
	Status string
	TxHash *common.Hash
	Reason string
}

// ExecutionResult summarises one execution run over a batch.
type ExecutionResult struct {
	BatchID      string
	Status       string
	SuccessCount int
	FailureCount int
	Items        []ItemResult
}
