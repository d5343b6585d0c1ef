package batch

import (
	"github.com/zakkycrypt01/spenednsave-sub002/internal/metrics"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

func canTransition(current, next withdrawal.BatchStatus) bool {
	switch current {
	case withdrawal.BatchStatusPending:
		return next == withdrawal.BatchStatusApproved || next == withdrawal.BatchStatusCancelled
	case withdrawal.BatchStatusApproved:
		// approved falls back to pending when an approval is revoked
		return next == withdrawal.BatchStatusPending || next == withdrawal.BatchStatusExecuting || next == withdrawal.BatchStatusCancelled
	case withdrawal.BatchStatusExecuting:
		return next == withdrawal.BatchStatusCompleted || next == withdrawal.BatchStatusPartialFail
	case withdrawal.BatchStatusPartialFail:
		// explicit retry of the failed items
		return next == withdrawal.BatchStatusExecuting
	case withdrawal.BatchStatusCompleted, withdrawal.BatchStatusCancelled:
		return false
	default:
		return false
	}
}

func transition(b *withdrawal.Batch, next withdrawal.BatchStatus) error {
	if b.Status == next {
		return nil
	}
	if !canTransition(b.Status, next) {
		return withdrawal.NewStateError(b.BatchID, "invalid state transition from %s to %s", b.Status, next)
	}
	metrics.ObserveTransition("batch", string(b.Status), string(next))
	b.Status = next
	return nil
}
