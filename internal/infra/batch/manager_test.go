package batch

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/chain"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// MockExecutor is a testify mock of gateway.Executor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) ExecuteRequest(ctx context.Context, req *withdrawal.PendingRequest, sigs []withdrawal.SignedWithdrawal) (gateway.Outcome, error) {
	args := m.Called(ctx, req, sigs)
	return args.Get(0).(gateway.Outcome), args.Error(1)
}

func (m *MockExecutor) ExecuteItem(ctx context.Context, batch *withdrawal.Batch, index int) (gateway.Outcome, error) {
	args := m.Called(ctx, batch, index)
	return args.Get(0).(gateway.Outcome), args.Error(1)
}

func (m *MockExecutor) Confirm(ctx context.Context, txHash common.Hash) (gateway.Outcome, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(gateway.Outcome), args.Error(1)
}

var (
	vault   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000be")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	t0      = time.Unix(1700000000, 0)
)

func hashOf(b byte) *common.Hash {
	h := common.BytesToHash([]byte{b})
	return &h
}

type fixture struct {
	mgr       *Manager
	store     *storage.RedisStore
	roster    *chain.StaticRoster
	exec      *MockExecutor
	clock     *time2.MockClock
	keys      []*ecdsa.PrivateKey
	guardians []common.Address
	collector *signing.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	codec, err := storage.NewCodec(key, false)
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store:  storage.NewRedisStore(client, codec),
		roster: chain.NewStaticRoster(nil),
		exec:   new(MockExecutor),
		clock:  time2.NewMockClock(t0),
	}
	for i := 0; i < 3; i++ {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		f.keys = append(f.keys, k)
		f.guardians = append(f.guardians, crypto.PubkeyToAddress(k.PublicKey))
	}
	f.roster.Set(vault, f.guardians)

	domain := signing.Domain{Name: "SpendGuard", Version: "1", ChainID: big.NewInt(84532)}
	f.collector = signing.NewCollector(domain, f.roster, time.Second, f.clock)
	f.mgr = NewManager(f.store, storage.NewLocalLocker(), f.collector, f.exec, f.clock, time.Hour)
	return f
}

func items(n int) []ItemInput {
	out := make([]ItemInput, n)
	for i := range out {
		out[i] = ItemInput{
			Token:     token,
			Amount:    big.NewInt(int64(100 * (i + 1))),
			Recipient: common.BigToAddress(big.NewInt(int64(0x1000 + i))),
			Reason:    "payroll",
			Category:  "salary",
		}
	}
	return out
}

func (f *fixture) create(t *testing.T, n int, required int) *withdrawal.Batch {
	t.Helper()
	b, err := f.mgr.Create(context.Background(), CreateBatchRequest{
		Vault:             vault,
		Creator:           creator,
		Items:             items(n),
		RequiredApprovals: required,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) approval(t *testing.T, batchID string, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	_, _, hash, err := f.mgr.Payload(context.Background(), batchID)
	require.NoError(t, err)
	sig, err := signing.SignHash(hash, key)
	require.NoError(t, err)
	return sig
}

func (f *fixture) approve(t *testing.T, batchID string, who int) *withdrawal.Batch {
	t.Helper()
	b, err := f.mgr.Approve(context.Background(), batchID, f.guardians[who], f.approval(t, batchID, f.keys[who]))
	require.NoError(t, err)
	return b
}

func TestCreateValidatesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Create(ctx, CreateBatchRequest{Vault: vault, Creator: creator, RequiredApprovals: 1})
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindValidation))

	_, err = f.mgr.Create(ctx, CreateBatchRequest{Vault: vault, Creator: creator, Items: items(withdrawal.MaxBatchItems + 1), RequiredApprovals: 1})
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindValidation))

	mixed := items(2)
	mixed[1].Token = other
	_, err = f.mgr.Create(ctx, CreateBatchRequest{Vault: vault, Creator: creator, Items: mixed, RequiredApprovals: 1})
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindValidation))

	_, err = f.mgr.Create(ctx, CreateBatchRequest{Vault: vault, Creator: creator, Items: items(2), RequiredApprovals: 4})
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindValidation))

	b, err := f.mgr.Create(ctx, CreateBatchRequest{Vault: vault, Creator: creator, Items: items(withdrawal.MaxBatchItems), RequiredApprovals: 2})
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusPending, b.Status)
	assert.True(t, b.ExpiresAt.Equal(t0.Add(time.Hour)))

	sum := new(big.Int)
	for _, it := range b.Items {
		sum.Add(sum, it.Amount)
	}
	assert.Equal(t, 0, sum.Cmp(b.TotalAmount))
}

func TestApproveReachesThresholdOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 3, 2)

	b = f.approve(t, b.BatchID, 0)
	assert.Equal(t, withdrawal.BatchStatusPending, b.Status)
	assert.Equal(t, 1, b.ApprovalCount())

	_, err := f.mgr.Approve(ctx, b.BatchID, f.guardians[0], f.approval(t, b.BatchID, f.keys[0]))
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ApprovalCount())

	b = f.approve(t, b.BatchID, 1)
	assert.Equal(t, withdrawal.BatchStatusApproved, b.Status)

	// a third approval keeps the batch approved
	b = f.approve(t, b.BatchID, 2)
	assert.Equal(t, withdrawal.BatchStatusApproved, b.Status)
	assert.Equal(t, []common.Address{f.guardians[0], f.guardians[1], f.guardians[2]}, b.Approvers.List())
}

func TestApproveRequiresGuardianSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 1, 1)

	// signed by guardian 1 but claimed for guardian 0
	_, err := f.mgr.Approve(ctx, b.BatchID, f.guardians[0], f.approval(t, b.BatchID, f.keys[1]))
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindAuthorization))

	outsider, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = f.mgr.Approve(ctx, b.BatchID, crypto.PubkeyToAddress(outsider.PublicKey), f.approval(t, b.BatchID, outsider))
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindAuthorization))

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ApprovalCount())
}

func TestApproveAfterExpiry(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 1, 1)
	sig := f.approval(t, b.BatchID, f.keys[0])

	f.clock.Advance(2 * time.Hour)
	_, err := f.mgr.Approve(context.Background(), b.BatchID, f.guardians[0], sig)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
}

func TestRevokeApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 2, 2)
	f.approve(t, b.BatchID, 0)
	b = f.approve(t, b.BatchID, 1)
	require.Equal(t, withdrawal.BatchStatusApproved, b.Status)

	b, err := f.mgr.RevokeApproval(ctx, b.BatchID, f.guardians[1])
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusPending, b.Status)
	assert.Equal(t, 1, b.ApprovalCount())

	_, err = f.mgr.RevokeApproval(ctx, b.BatchID, f.guardians[2])
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	// approvals may be given again after a revocation
	b = f.approve(t, b.BatchID, 1)
	assert.Equal(t, withdrawal.BatchStatusApproved, b.Status)
}

func TestRevokeAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 1, 1)
	f.approve(t, b.BatchID, 0)

	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 0).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(1)}, nil).Once()
	res, err := f.mgr.Execute(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, string(withdrawal.BatchStatusCompleted), res.Status)

	_, err = f.mgr.RevokeApproval(ctx, b.BatchID, f.guardians[0])
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	_, err = f.mgr.Cancel(ctx, b.BatchID, creator, "")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	_, err = f.mgr.Execute(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
}

func TestExecuteRequiresApproval(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 2, 2)
	f.approve(t, b.BatchID, 0)

	_, err := f.mgr.Execute(context.Background(), b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
	f.exec.AssertNotCalled(t, "ExecuteItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutePartialFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 3, 2)
	f.approve(t, b.BatchID, 0)
	b = f.approve(t, b.BatchID, 1)
	require.Equal(t, withdrawal.BatchStatusApproved, b.Status)

	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 0).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(1)}, nil).Once()
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 1).
		Return(gateway.Outcome{Status: gateway.OutcomeFailed, TxHash: hashOf(2), Reason: "execution reverted"}, nil).Once()
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 2).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(3)}, nil).Once()

	res, err := f.mgr.Execute(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, string(withdrawal.BatchStatusPartialFail), res.Status)
	require.Len(t, res.Items, 3)
	assert.Equal(t, ItemFailed, res.Items[1].Status)
	assert.Equal(t, "execution reverted", res.Items[1].Reason)

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusPartialFail, stored.Status)
	assert.True(t, stored.Items[0].Executed)
	assert.False(t, stored.Items[1].Executed)
	assert.True(t, stored.Items[2].Executed)
	assert.Equal(t, "execution reverted", stored.Items[1].FailureReason)

	// only the failed item is submitted again
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 1).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(4)}, nil).Once()

	res, err = f.mgr.RetryFailed(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 0, res.FailureCount)
	assert.Equal(t, string(withdrawal.BatchStatusCompleted), res.Status)
	assert.Equal(t, ItemSkipped, res.Items[0].Status)
	f.exec.AssertNumberOfCalls(t, "ExecuteItem", 4)

	_, err = f.mgr.RetryFailed(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
}

func TestExecuteTransientAndUnconfirmedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 2, 1)
	f.approve(t, b.BatchID, 0)

	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 0).
		Return(gateway.Outcome{}, withdrawal.NewTransientError(b.BatchID, "relayer unavailable", errors.New("connection refused"))).Once()
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 1).
		Return(gateway.Outcome{Status: gateway.OutcomeUnconfirmed, TxHash: hashOf(9)}, nil).Once()

	res, err := f.mgr.Execute(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.Equal(t, ItemUnconfirmed, res.Items[1].Status)

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.True(t, stored.Items[1].Unconfirmed)
	assert.Equal(t, *hashOf(9), *stored.Items[1].TxHash)

	// the unconfirmed item is confirmed, never resubmitted
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 0).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(8)}, nil).Once()
	f.exec.On("Confirm", mock.Anything, *hashOf(9)).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(9)}, nil).Once()

	res, err = f.mgr.RetryFailed(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, string(withdrawal.BatchStatusCompleted), res.Status)
	f.exec.AssertNumberOfCalls(t, "ExecuteItem", 3)
	f.exec.AssertExpectations(t)
}

func TestCancelIsCreatorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 1, 1)

	_, err := f.mgr.Cancel(ctx, b.BatchID, f.guardians[0], "nope")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindAuthorization))

	b, err = f.mgr.Cancel(ctx, b.BatchID, creator, "")
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusCancelled, b.Status)
	assert.Equal(t, "cancelled by creator", b.CancelReason)

	_, err = f.mgr.Approve(ctx, b.BatchID, f.guardians[0], f.approval(t, b.BatchID, f.keys[0]))
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 1, 2)

	_, err := f.mgr.Expire(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	f.clock.Advance(time.Hour + time.Second)
	b, err = f.mgr.Expire(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusCancelled, b.Status)
	assert.Equal(t, ExpiredReason, b.CancelReason)

	_, err = f.mgr.Expire(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	entries, err := f.store.ListActivity(ctx, storage.ActivityFilter{Account: &creator})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, withdrawal.ActionBatchExpired, entries[0].Action)
}

func TestCanTransition(t *testing.T) {
	allowed := map[withdrawal.BatchStatus][]withdrawal.BatchStatus{
		withdrawal.BatchStatusPending:     {withdrawal.BatchStatusApproved, withdrawal.BatchStatusCancelled},
		withdrawal.BatchStatusApproved:    {withdrawal.BatchStatusPending, withdrawal.BatchStatusExecuting, withdrawal.BatchStatusCancelled},
		withdrawal.BatchStatusExecuting:   {withdrawal.BatchStatusCompleted, withdrawal.BatchStatusPartialFail},
		withdrawal.BatchStatusPartialFail: {withdrawal.BatchStatusExecuting},
	}
	all := []withdrawal.BatchStatus{
		withdrawal.BatchStatusPending, withdrawal.BatchStatusApproved, withdrawal.BatchStatusExecuting,
		withdrawal.BatchStatusCompleted, withdrawal.BatchStatusCancelled, withdrawal.BatchStatusPartialFail,
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, canTransition(from, to), "%s -> %s", from, to)
		}
	}
}

// failingSaves fails the failAt-th SaveBatch call and passes every other call through.
type failingSaves struct {
	Store
	saves  int
	failAt int
}

func (s *failingSaves) SaveBatch(ctx context.Context, b *withdrawal.Batch) error {
	s.saves++
	if s.saves == s.failAt {
		return errors.New("connection reset by peer")
	}
	return s.Store.SaveBatch(ctx, b)
}

func TestRetryResumesBatchLeftExecuting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 3, 1)
	f.approve(t, b.BatchID, 0)

	// saves: executing, item 0, item 1 (fails)
	flaky := &failingSaves{Store: f.store, failAt: 3}
	mgr := NewManager(flaky, storage.NewLocalLocker(), f.collector, f.exec, f.clock, time.Hour)

	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 0).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(1)}, nil).Once()
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 1).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(2)}, nil).Twice()
	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, 2).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(3)}, nil).Once()

	_, err := mgr.Execute(ctx, b.BatchID)
	require.Error(t, err)

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusExecuting, stored.Status)
	assert.True(t, stored.Items[0].Executed)
	assert.False(t, stored.Items[1].Executed)

	_, err = f.mgr.Execute(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
	_, err = f.mgr.Cancel(ctx, b.BatchID, creator, "")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))

	res, err := f.mgr.RetryFailed(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, string(withdrawal.BatchStatusCompleted), res.Status)
	assert.Equal(t, ItemSkipped, res.Items[0].Status)
	assert.Equal(t, 2, res.SuccessCount)
	f.exec.AssertExpectations(t)

	stored, err = f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusCompleted, stored.Status)
}

func TestExecuteDropsApprovalsOfFormerGuardians(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, 2, 2)
	f.approve(t, b.BatchID, 0)
	b = f.approve(t, b.BatchID, 1)
	require.Equal(t, withdrawal.BatchStatusApproved, b.Status)

	// guardian 1 is removed from the vault after approving
	f.roster.Set(vault, []common.Address{f.guardians[0], f.guardians[2]})

	_, err := f.mgr.Execute(ctx, b.BatchID)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindState))
	f.exec.AssertNotCalled(t, "ExecuteItem", mock.Anything, mock.Anything, mock.Anything)

	stored, err := f.mgr.Get(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, withdrawal.BatchStatusPending, stored.Status)
	assert.Equal(t, []common.Address{f.guardians[0]}, stored.Approvers.List())

	// a current guardian restores the quorum
	b = f.approve(t, b.BatchID, 2)
	assert.Equal(t, withdrawal.BatchStatusApproved, b.Status)

	f.exec.On("ExecuteItem", mock.Anything, mock.Anything, mock.Anything).
		Return(gateway.Outcome{Status: gateway.OutcomeConfirmed, TxHash: hashOf(1)}, nil).Twice()
	res, err := f.mgr.Execute(ctx, b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, string(withdrawal.BatchStatusCompleted), res.Status)
}
