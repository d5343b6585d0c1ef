package batch

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/metrics"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

const (
	DefaultApprovalWindow = 24 * time.Hour
	ExpiredReason         = "expired"
)

// Manager owns the batch state machine. Every mutation of one batch runs
// under the batch lock, so concurrent approvals and executions serialise.
type Manager struct {
	store          Store
	locker         storage.Locker
	collector      *signing.Collector
	executor       gateway.Executor
	clock          time2.Clock
	approvalWindow time.Duration
}

func NewManager(store Store, locker storage.Locker, collector *signing.Collector, executor gateway.Executor, clock time2.Clock, approvalWindow time.Duration) *Manager {
	if approvalWindow <= 0 {
		approvalWindow = DefaultApprovalWindow
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Manager{
		store:          store,
		locker:         locker,
		collector:      collector,
		executor:       executor,
		clock:          clock,
		approvalWindow: approvalWindow,
	}
}

func (m *Manager) now() time.Time {
	return m.clock.Now().UTC()
}

// Create validates the items and opens a new batch for approval.
func (m *Manager) Create(ctx context.Context, in CreateBatchRequest) (*withdrawal.Batch, error) {
	items, total, err := validateItems(in.Items)
	if err != nil {
		return nil, err
	}
	if in.Vault == (common.Address{}) {
		return nil, withdrawal.NewValidationError("", "vault address is required")
	}
	if in.Creator == (common.Address{}) {
		return nil, withdrawal.NewValidationError("", "creator address is required")
	}
	if in.RequiredApprovals < 1 {
		return nil, withdrawal.NewValidationError("", "required approvals must be at least 1")
	}

	guardians, err := m.collector.Guardians(ctx, in.Vault)
	if err != nil {
		return nil, err
	}
	if in.RequiredApprovals > len(guardians) {
		return nil, withdrawal.NewValidationError("", "required approvals %d exceed guardian count %d", in.RequiredApprovals, len(guardians))
	}

	now := m.now()
	b := &withdrawal.Batch{
		BatchID:           uuid.NewString(),
		VaultAddress:      in.Vault,
		Creator:           in.Creator,
		CreatedAt:         now,
		ExpiresAt:         now.Add(m.approvalWindow),
		Status:            withdrawal.BatchStatusPending,
		Items:             items,
		TotalAmount:       total,
		Approvers:         withdrawal.NewApproverSet(),
		RequiredApprovals: in.RequiredApprovals,
		UpdatedAt:         now,
	}
	if err := m.store.SaveBatch(ctx, b); err != nil {
		return nil, err
	}

	metrics.ObserveTransition("batch", "", string(b.Status))
	m.record(ctx, b.Creator, withdrawal.ActionBatchCreated, b, map[string]string{
		"items":        strconv.Itoa(len(b.Items)),
		"total_amount": b.TotalAmount.String(),
		"token":        b.Token().Hex(),
	})
	log.Info().Str("batch_id", b.BatchID).Str("vault", b.VaultAddress.Hex()).Int("items", len(b.Items)).Msg("Withdrawal batch created")
	return b, nil
}

func validateItems(in []ItemInput) ([]withdrawal.Item, *big.Int, error) {
	if len(in) == 0 {
		return nil, nil, withdrawal.NewValidationError("", "batch must contain at least one item")
	}
	if len(in) > withdrawal.MaxBatchItems {
		return nil, nil, withdrawal.NewValidationError("", "batch contains %d items, the maximum is %d", len(in), withdrawal.MaxBatchItems)
	}

	token := in[0].Token
	total := new(big.Int)
	items := make([]withdrawal.Item, 0, len(in))
	for i, it := range in {
		switch {
		case it.Token == (common.Address{}):
			return nil, nil, withdrawal.NewValidationError("", "item %d: token address is required", i)
		case it.Token != token:
			return nil, nil, withdrawal.NewValidationError("", "item %d: batch items must share one token", i)
		case it.Recipient == (common.Address{}):
			return nil, nil, withdrawal.NewValidationError("", "item %d: recipient address is required", i)
		case it.Amount == nil || it.Amount.Sign() <= 0:
			return nil, nil, withdrawal.NewValidationError("", "item %d: amount must be positive", i)
		}
		total.Add(total, it.Amount)
		items = append(items, withdrawal.Item{
			Token:     it.Token,
			Amount:    new(big.Int).Set(it.Amount),
			Recipient: it.Recipient,
			Reason:    it.Reason,
			Category:  it.Category,
			IsQueued:  it.IsQueued,
		})
	}
	return items, total, nil
}

// Approve records a guardian approval authenticated by sig over the batch approval payload.
func (m *Manager) Approve(ctx context.Context, batchID string, guardian common.Address, sig []byte) (*withdrawal.Batch, error) {
	var out *withdrawal.Batch
	err := m.locker.WithLock(ctx, storage.BatchLockKey(batchID), func(ctx context.Context) error {
		b, err := m.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if !b.Status.IsOpen() {
			return withdrawal.NewStateError(batchID, "batch is %s and no longer accepts approvals", b.Status)
		}
		if m.now().After(b.ExpiresAt) {
			return withdrawal.NewStateError(batchID, "approval window closed at %s", b.ExpiresAt.Format(time.RFC3339))
		}
		if err := m.collector.VerifyBatchApproval(ctx, b, guardian, sig); err != nil {
			metrics.ObserveSignature("rejected")
			return err
		}
		if !b.Approvers.Add(guardian) {
			return withdrawal.NewStateError(batchID, "guardian %s already approved", guardian.Hex())
		}
		metrics.ObserveSignature("accepted")

		if b.Status == withdrawal.BatchStatusPending && b.ApprovalCount() >= b.RequiredApprovals {
			if err := transition(b, withdrawal.BatchStatusApproved); err != nil {
				return err
			}
		}
		b.UpdatedAt = m.now()
		if err := m.store.SaveBatch(ctx, b); err != nil {
			return err
		}

		m.record(ctx, guardian, withdrawal.ActionBatchApproved, b, map[string]string{
			"approvals": strconv.Itoa(b.ApprovalCount()),
			"required":  strconv.Itoa(b.RequiredApprovals),
		})
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeApproval withdraws a guardian approval while the batch is still open.
func (m *Manager) RevokeApproval(ctx context.Context, batchID string, guardian common.Address) (*withdrawal.Batch, error) {
	var out *withdrawal.Batch
	err := m.locker.WithLock(ctx, storage.BatchLockKey(batchID), func(ctx context.Context) error {
		b, err := m.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if !b.Status.IsOpen() {
			return withdrawal.NewStateError(batchID, "cannot revoke approval of a %s batch", b.Status)
		}
		if !b.Approvers.Remove(guardian) {
			return withdrawal.NewStateError(batchID, "guardian %s has not approved", guardian.Hex())
		}
		if b.Status == withdrawal.BatchStatusApproved && b.ApprovalCount() < b.RequiredApprovals {
			if err := transition(b, withdrawal.BatchStatusPending); err != nil {
				return err
			}
		}
		b.UpdatedAt = m.now()
		if err := m.store.SaveBatch(ctx, b); err != nil {
			return err
		}

		m.record(ctx, guardian, withdrawal.ActionBatchRevoked, b, map[string]string{
			"approvals": strconv.Itoa(b.ApprovalCount()),
		})
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel closes an open batch on behalf of its creator.
func (m *Manager) Cancel(ctx context.Context, batchID string, caller common.Address, reason string) (*withdrawal.Batch, error) {
	var out *withdrawal.Batch
	err := m.locker.WithLock(ctx, storage.BatchLockKey(batchID), func(ctx context.Context) error {
		b, err := m.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if caller != b.Creator {
			return withdrawal.NewAuthorizationError(batchID, caller.Hex(), "only the creator may cancel a batch")
		}
		if !b.Status.IsOpen() {
			return withdrawal.NewStateError(batchID, "cannot cancel a %s batch", b.Status)
		}
		if reason == "" {
			reason = "cancelled by creator"
		}
		if err := m.close(ctx, b, reason); err != nil {
			return err
		}
		m.record(ctx, caller, withdrawal.ActionBatchCancelled, b, map[string]string{"reason": reason})
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Expire cancels an open batch whose approval window has passed.
func (m *Manager) Expire(ctx context.Context, batchID string) (*withdrawal.Batch, error) {
	var out *withdrawal.Batch
	err := m.locker.WithLock(ctx, storage.BatchLockKey(batchID), func(ctx context.Context) error {
		b, err := m.store.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if !b.Status.IsOpen() {
			return withdrawal.NewStateError(batchID, "cannot expire a %s batch", b.Status)
		}
		if !m.now().After(b.ExpiresAt) {
			return withdrawal.NewStateError(batchID, "batch does not expire until %s", b.ExpiresAt.Format(time.RFC3339))
		}
		if err := m.close(ctx, b, ExpiredReason); err != nil {
			return err
		}
		metrics.ObserveExpired(1)
		m.record(ctx, b.Creator, withdrawal.ActionBatchExpired, b, nil)
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) close(ctx context.Context, b *withdrawal.Batch, reason string) error {
	if err := transition(b, withdrawal.BatchStatusCancelled); err != nil {
		return err
	}
	b.CancelReason = reason
	b.UpdatedAt = m.now()
	return m.store.SaveBatch(ctx, b)
}

func (m *Manager) Get(ctx context.Context, batchID string) (*withdrawal.Batch, error) {
	return m.store.GetBatch(ctx, batchID)
}

func (m *Manager) List(ctx context.Context, filter storage.BatchFilter) ([]*withdrawal.Batch, error) {
	return m.store.ListBatches(ctx, filter)
}

// Payload returns the typed data a guardian signs to approve the batch.
func (m *Manager) Payload(ctx context.Context, batchID string) (*withdrawal.Batch, *apitypes.TypedData, common.Hash, error) {
	b, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, common.Hash{}, err
	}
	typed, hash, err := m.collector.Domain().BuildBatchApprovalPayload(b.VaultAddress, b)
	if err != nil {
		return nil, nil, common.Hash{}, withdrawal.NewValidationError(batchID, "invalid batch: %v", err)
	}
	return b, typed, hash, nil
}

func (m *Manager) record(ctx context.Context, account common.Address, action string, b *withdrawal.Batch, details map[string]string) {
	entry := &withdrawal.ActivityEntry{
		ID:           uuid.NewString(),
		Account:      account,
		Action:       action,
		VaultAddress: b.VaultAddress,
		SubjectID:    b.BatchID,
		Details:      details,
		CreatedAt:    m.now(),
	}
	if err := m.store.SaveActivity(ctx, entry); err != nil {
		log.Error().Err(err).Str("batch_id", b.BatchID).Str("action", action).Msg("Failed to append activity entry")
	}
}
