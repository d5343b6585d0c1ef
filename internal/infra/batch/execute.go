package batch

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/metrics"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// Execute runs every item of an approved batch in submission order.
func (m *Manager) Execute(ctx context.Context, batchID string) (*ExecutionResult, error) {
	return m.run(ctx, batchID, withdrawal.BatchStatusApproved)
}

// RetryFailed re-runs the items of a partial_fail batch that did not execute.
// It also resumes a batch left in executing by an aborted run: a live run holds
// the batch lock until it settles, so executing seen under the lock is stale.
func (m *Manager) RetryFailed(ctx context.Context, batchID string) (*ExecutionResult, error) {
	return m.run(ctx, batchID, withdrawal.BatchStatusPartialFail)
}

func (m *Manager) run(ctx context.Context, batchID string, from withdrawal.BatchStatus) (*ExecutionResult, error) {
	var result *ExecutionResult
	err := m.locker.WithLock(ctx, storage.BatchLockKey(batchID), func(ctx context.Context) error {
		b, err := m.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		resumed := from == withdrawal.BatchStatusPartialFail && b.Status == withdrawal.BatchStatusExecuting
		if b.Status != from && !resumed {
			return withdrawal.NewStateError(batchID, "batch is %s, not %s", b.Status, from)
		}
		if from == withdrawal.BatchStatusApproved && m.now().After(b.ExpiresAt) {
			return withdrawal.NewStateError(batchID, "approval window closed at %s", b.ExpiresAt.Format(time.RFC3339))
		}
		if err := m.reconcileApprovers(ctx, b); err != nil {
			return err
		}
		if resumed {
			log.Warn().Str("batch_id", b.BatchID).Time("updated_at", b.UpdatedAt).Msg("Resuming batch left in executing")
		}

		if err := transition(b, withdrawal.BatchStatusExecuting); err != nil {
			return err
		}
		b.UpdatedAt = m.now()
		if err := m.store.SaveBatch(ctx, b); err != nil {
			return err
		}

		result = &ExecutionResult{BatchID: b.BatchID, Items: make([]ItemResult, 0, len(b.Items))}
		for i := range b.Items {
			res := m.runItem(ctx, b, i)
			switch res.Status {
			case ItemExecuted:
				result.SuccessCount++
			case ItemFailed, ItemUnconfirmed:
				result.FailureCount++
			}
			result.Items = append(result.Items, res)

			if res.Status == ItemSkipped {
				continue
			}
			b.UpdatedAt = m.now()
			if err := m.store.SaveBatch(ctx, b); err != nil {
				// the batch stays in executing until RetryFailed resumes it
				log.Error().Err(err).Str("batch_id", b.BatchID).Int("item", i).Msg("Failed to persist batch item outcome")
				return err
			}
		}

		settled := withdrawal.BatchStatusCompleted
		if result.FailureCount > 0 {
			settled = withdrawal.BatchStatusPartialFail
		}
		if err := transition(b, settled); err != nil {
			return err
		}
		b.UpdatedAt = m.now()
		if err := m.store.SaveBatch(ctx, b); err != nil {
			return err
		}
		result.Status = string(b.Status)

		m.record(ctx, b.Creator, withdrawal.ActionBatchExecuted, b, map[string]string{
			"status":  string(b.Status),
			"success": strconv.Itoa(result.SuccessCount),
			"failure": strconv.Itoa(result.FailureCount),
		})
		log.Info().Str("batch_id", b.BatchID).Str("status", string(b.Status)).Int("success", result.SuccessCount).Int("failure", result.FailureCount).Msg("Batch execution settled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reconcileApprovers drops approvers who left the vault roster since approving.
// An approved batch that loses its quorum this way falls back to pending.
func (m *Manager) reconcileApprovers(ctx context.Context, b *withdrawal.Batch) error {
	guardians, err := m.collector.Guardians(ctx, b.VaultAddress)
	if err != nil {
		return err
	}

	var removed []string
	for _, approver := range b.Approvers.List() {
		if !withdrawal.ContainsAddress(guardians, approver) {
			b.Approvers.Remove(approver)
			removed = append(removed, approver.Hex())
		}
	}
	if len(removed) == 0 {
		return nil
	}
	log.Warn().Str("batch_id", b.BatchID).Strs("removed", removed).Msg("Dropped approvals of former guardians")

	if b.ApprovalCount() >= b.RequiredApprovals {
		return nil
	}
	if b.Status == withdrawal.BatchStatusApproved {
		if err := transition(b, withdrawal.BatchStatusPending); err != nil {
			return err
		}
		b.UpdatedAt = m.now()
		if err := m.store.SaveBatch(ctx, b); err != nil {
			return err
		}
		m.record(ctx, b.Creator, withdrawal.ActionBatchRevoked, b, map[string]string{
			"approvals": strconv.Itoa(b.ApprovalCount()),
			"reason":    "approver left the guardian roster",
		})
	}
	return withdrawal.NewStateError(b.BatchID, "approvals %d no longer meet the required %d", b.ApprovalCount(), b.RequiredApprovals)
}

// runItem executes or confirms one item and records the outcome on it.
// Gateway errors never abort the run; they become item failures.
func (m *Manager) runItem(ctx context.Context, b *withdrawal.Batch, index int) ItemResult {
	item := &b.Items[index]
	if item.Executed {
		return ItemResult{Index: index, Status: ItemSkipped, TxHash: item.TxHash}
	}

	var (
		outcome gateway.Outcome
		err     error
	)
	if item.Unconfirmed && item.TxHash != nil {
		outcome, err = m.executor.Confirm(ctx, *item.TxHash)
	} else {
		outcome, err = m.executor.ExecuteItem(ctx, b, index)
	}
	if err != nil {
		item.FailureReason = err.Error()
		metrics.ObserveBatchItem("error")
		log.Warn().Err(err).Str("batch_id", b.BatchID).Int("item", index).Msg("Batch item could not be submitted")
		return ItemResult{Index: index, Status: ItemFailed, TxHash: item.TxHash, Reason: item.FailureReason}
	}

	if outcome.TxHash != nil {
		item.TxHash = outcome.TxHash
	}
	switch outcome.Status {
	case gateway.OutcomeConfirmed:
		item.Executed = true
		item.Unconfirmed = false
		item.FailureReason = ""
		metrics.ObserveBatchItem("executed")
		return ItemResult{Index: index, Status: ItemExecuted, TxHash: item.TxHash}
	case gateway.OutcomeUnconfirmed:
		item.Unconfirmed = true
		item.FailureReason = "transaction not yet confirmed"
		metrics.ObserveBatchItem("unconfirmed")
		return ItemResult{Index: index, Status: ItemUnconfirmed, TxHash: item.TxHash, Reason: item.FailureReason}
	default:
		item.Unconfirmed = false
		item.FailureReason = outcome.Reason
		if item.FailureReason == "" {
			item.FailureReason = "execution failed"
		}
		metrics.ObserveBatchItem("failed")
		return ItemResult{Index: index, Status: ItemFailed, TxHash: item.TxHash, Reason: item.FailureReason}
	}
}
