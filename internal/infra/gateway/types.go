package gateway

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFailed    OutcomeStatus = "failed"
	// OutcomeUnconfirmed means the transaction was submitted but not seen mined
	// in time. It may still land, so it is never treated as a failure.
	OutcomeUnconfirmed OutcomeStatus = "unconfirmed"
)

// Outcome is the result of one execution attempt.
type Outcome struct {
	Status OutcomeStatus
	TxHash *common.Hash
	Reason string
}

// Executor performs transfers once a quorum is proven.
// A returned error means the attempt could not be made (transient); a failed
// transfer is reported through Outcome.
type Executor interface {
	ExecuteRequest(ctx context.Context, req *withdrawal.PendingRequest, sigs []withdrawal.SignedWithdrawal) (Outcome, error)
	ExecuteItem(ctx context.Context, batch *withdrawal.Batch, index int) (Outcome, error)
	Confirm(ctx context.Context, txHash common.Hash) (Outcome, error)
}

// Disabled rejects every execution. Used when no relayer is configured.
type Disabled struct{}

func (Disabled) ExecuteRequest(ctx context.Context, req *withdrawal.PendingRequest, sigs []withdrawal.SignedWithdrawal) (Outcome, error) {
	return Outcome{}, withdrawal.NewTransientError(req.ID, "execution gateway is not configured", nil)
}

func (Disabled) ExecuteItem(ctx context.Context, batch *withdrawal.Batch, index int) (Outcome, error) {
	return Outcome{}, withdrawal.NewTransientError(batch.BatchID, "execution gateway is not configured", nil)
}

func (Disabled) Confirm(ctx context.Context, txHash common.Hash) (Outcome, error) {
	return Outcome{Status: OutcomeUnconfirmed, TxHash: &txHash, Reason: "execution gateway is not configured"}, nil
}
