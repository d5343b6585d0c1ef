package storage

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

var (
	vaultA    = common.HexToAddress("0x00000000000000000000000000000000000000aA")
	vaultB    = common.HexToAddress("0x00000000000000000000000000000000000000bB")
	tokenA    = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	guardian1 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	guardian2 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestStore(t *testing.T, key []byte) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	codec, err := NewCodec(key, key == nil)
	require.NoError(t, err)
	mr, client := newTestRedis(t)
	return NewRedisStore(client, codec), mr
}

func fixtureRequest(id string, createdAt time.Time) *withdrawal.PendingRequest {
	amount, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	nonce, _ := new(big.Int).SetString("18446744073709551617", 10)
	return &withdrawal.PendingRequest{
		ID:           id,
		VaultAddress: vaultA,
		Request: withdrawal.Request{
			Token:     tokenA,
			Amount:    amount,
			Recipient: common.HexToAddress("0x00000000000000000000000000000000000000cc"),
			Nonce:     nonce,
			Reason:    "rent",
		},
		Signatures: []withdrawal.SignedWithdrawal{
			{Signature: append(make([]byte, 64), 27), Signer: guardian1, SignedAt: createdAt.Add(time.Minute)},
			{Signature: append(make([]byte, 64), 28), Signer: guardian2, SignedAt: createdAt.Add(2 * time.Minute)},
		},
		RequiredQuorum: 2,
		CreatedAt:      createdAt,
		CreatedBy:      guardian1,
		Status:         withdrawal.StatusApproved,
		Guardians:      []common.Address{guardian1, guardian2},
		UpdatedAt:      createdAt,
	}
}

func fixtureBatch(id string, createdAt time.Time) *withdrawal.Batch {
	return &withdrawal.Batch{
		BatchID:      id,
		VaultAddress: vaultA,
		Creator:      guardian1,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(24 * time.Hour),
		Status:       withdrawal.BatchStatusPending,
		Items: []withdrawal.Item{
			{Token: tokenA, Amount: big.NewInt(10), Recipient: guardian1, Category: "ops"},
			{Token: tokenA, Amount: big.NewInt(20), Recipient: guardian2, Reason: "fees"},
		},
		TotalAmount:       big.NewInt(30),
		Approvers:         withdrawal.NewApproverSet(guardian2),
		RequiredApprovals: 2,
		UpdatedAt:         createdAt,
	}
}

func assertRequestEqual(t *testing.T, want, got *withdrawal.PendingRequest) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.VaultAddress, got.VaultAddress)
	assert.Equal(t, 0, want.Request.Amount.Cmp(got.Request.Amount), "amount %s != %s", want.Request.Amount, got.Request.Amount)
	assert.Equal(t, 0, want.Request.Nonce.Cmp(got.Request.Nonce), "nonce %s != %s", want.Request.Nonce, got.Request.Nonce)
	assert.Equal(t, want.Request.Token, got.Request.Token)
	assert.Equal(t, want.Request.Recipient, got.Request.Recipient)
	assert.Equal(t, want.Request.Reason, got.Request.Reason)
	require.Len(t, got.Signatures, len(want.Signatures))
	for i := range want.Signatures {
		assert.Equal(t, want.Signatures[i].Signature, got.Signatures[i].Signature)
		assert.Equal(t, want.Signatures[i].Signer, got.Signatures[i].Signer)
		assert.True(t, want.Signatures[i].SignedAt.Equal(got.Signatures[i].SignedAt))
	}
	assert.Equal(t, want.Guardians, got.Guardians)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.RequiredQuorum, got.RequiredQuorum)
}

func TestRequestRoundTripEncrypted(t *testing.T) {
	store, mr := newTestStore(t, testKey(t))
	ctx := context.Background()
	want := fixtureRequest("req-1", time.Unix(1700000000, 0).UTC())

	require.NoError(t, store.SaveRequest(ctx, want))

	raw, err := mr.Get(requestKeyPrefix + "req-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "rent")
	assert.NotContains(t, raw, want.Request.Amount.String())

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assertRequestEqual(t, want, got)
}

func TestRequestRoundTripPlaintext(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()
	want := fixtureRequest("req-1", time.Unix(1700000000, 0).UTC())

	require.NoError(t, store.SaveRequest(ctx, want))

	raw, err := mr.Get(requestKeyPrefix + "req-1")
	require.NoError(t, err)
	assert.Contains(t, raw, "rent")

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assertRequestEqual(t, want, got)
}

func TestEncryptedStoreReadsLegacyPlaintextRows(t *testing.T) {
	plain, mr := newTestStore(t, nil)
	ctx := context.Background()
	want := fixtureRequest("req-legacy", time.Unix(1700000000, 0).UTC())
	require.NoError(t, plain.SaveRequest(ctx, want))

	codec, err := NewCodec(testKey(t), false)
	require.NoError(t, err)
	encrypted := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), codec)

	got, err := encrypted.GetRequest(ctx, "req-legacy")
	require.NoError(t, err)
	assertRequestEqual(t, want, got)
}

func TestLegacyInlineRowShapes(t *testing.T) {
	store, mr := newTestStore(t, testKey(t))
	ctx := context.Background()

	// bare arrays and numbers written inline by an older client
	legacy := `{
		"id": "req-old",
		"vaultAddress": "0x00000000000000000000000000000000000000aa",
		"request": {"token": "0x000000000000000000000000000000000000c0de", "amount": 1500000000000000000000,
			"recipient": "0x00000000000000000000000000000000000000cc", "nonce": "3", "reason": "legacy"},
		"signatures": "[{\"signature\":\"0x00\",\"signer\":\"0x0000000000000000000000000000000000000001\",\"signedAt\":\"2024-01-01T00:00:00Z\"}]",
		"guardians": ["0x0000000000000000000000000000000000000001"],
		"requiredQuorum": 1,
		"status": "pending"
	}`
	require.NoError(t, mr.Set(requestKeyPrefix+"req-old", legacy))

	got, err := store.GetRequest(ctx, "req-old")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000000", got.Request.Amount.String())
	assert.Equal(t, int64(3), got.Request.Nonce.Int64())
	require.Len(t, got.Signatures, 1)
	assert.Equal(t, guardian1, got.Signatures[0].Signer)
	assert.Equal(t, []common.Address{guardian1}, got.Guardians)
}

func TestUnreadableRowIsPersistenceError(t *testing.T) {
	store, mr := newTestStore(t, testKey(t))

	require.NoError(t, mr.Set(requestKeyPrefix+"req-bad", `{"id":"req-bad","request":"not json at all"}`))
	_, err := store.GetRequest(context.Background(), "req-bad")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindPersistence), "got %v", err)
	assert.Contains(t, err.Error(), "req-bad")
}

func TestWrongKeyIsPersistenceError(t *testing.T) {
	store, mr := newTestStore(t, testKey(t))
	ctx := context.Background()
	require.NoError(t, store.SaveRequest(ctx, fixtureRequest("req-1", time.Now())))

	codec, err := NewCodec(testKey(t), false)
	require.NoError(t, err)
	other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), codec)

	_, err = other.GetRequest(ctx, "req-1")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindPersistence))
}

func TestMissingKeyRequiresExplicitPlaintext(t *testing.T) {
	_, err := NewCodec(nil, false)
	assert.ErrorIs(t, err, ErrNoEncryptionKey)

	codec, err := NewCodec(nil, true)
	require.NoError(t, err)
	assert.False(t, codec.Encrypted())
}

func TestListAndDeleteRequests(t *testing.T) {
	store, _ := newTestStore(t, testKey(t))
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	r1 := fixtureRequest("req-1", base)
	r2 := fixtureRequest("req-2", base.Add(time.Second))
	r2.Status = withdrawal.StatusPending
	r3 := fixtureRequest("req-3", base.Add(2*time.Second))
	r3.VaultAddress = vaultB
	for _, r := range []*withdrawal.PendingRequest{r3, r1, r2} {
		require.NoError(t, store.SaveRequest(ctx, r))
	}

	all, err := store.ListRequests(ctx, RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"req-1", "req-2", "req-3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	byVault, err := store.ListRequests(ctx, RequestFilter{Vault: &vaultA, Status: withdrawal.StatusPending})
	require.NoError(t, err)
	require.Len(t, byVault, 1)
	assert.Equal(t, "req-2", byVault[0].ID)

	require.NoError(t, store.DeleteRequest(ctx, "req-2"))
	_, err = store.GetRequest(ctx, "req-2")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindNotFound))
}

func TestActivityLog(t *testing.T) {
	store, _ := newTestStore(t, testKey(t))
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i, account := range []common.Address{guardian1, guardian2, guardian1} {
		require.NoError(t, store.SaveActivity(ctx, &withdrawal.ActivityEntry{
			ID:           []string{"a1", "a2", "a3"}[i],
			Account:      account,
			Action:       withdrawal.ActionRequestSigned,
			VaultAddress: vaultA,
			SubjectID:    "req-1",
			Details:      map[string]string{"n": big.NewInt(int64(i)).String()},
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}))
	}

	mine, err := store.ListActivity(ctx, ActivityFilter{Account: &guardian1})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a3", mine[0].ID)
	assert.Equal(t, "2", mine[0].Details["n"])

	latest, err := store.ListActivity(ctx, ActivityFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "a3", latest[0].ID)

	require.NoError(t, store.DeleteActivity(ctx, "a3"))
	mine, err = store.ListActivity(ctx, ActivityFilter{Account: &guardian1})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestGuardianUpsertIsCaseInsensitive(t *testing.T) {
	store, _ := newTestStore(t, testKey(t))
	ctx := context.Background()
	added := time.Unix(1700000000, 0).UTC()

	require.NoError(t, store.SaveGuardian(ctx, &withdrawal.GuardianRecord{TokenAddress: tokenA, GuardianAddress: guardian1, Label: "alice", AddedAt: added}))
	require.NoError(t, store.SaveGuardian(ctx, &withdrawal.GuardianRecord{TokenAddress: tokenA, GuardianAddress: guardian1, Label: "alice-2", AddedAt: added}))
	require.NoError(t, store.SaveGuardian(ctx, &withdrawal.GuardianRecord{TokenAddress: tokenA, GuardianAddress: guardian2, AddedAt: added.Add(time.Second)}))

	list, err := store.ListGuardians(ctx, tokenA)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, guardian1, list[0].GuardianAddress)
	assert.Equal(t, "alice-2", list[0].Label)

	require.NoError(t, store.DeleteGuardian(ctx, tokenA, guardian1))
	list, err = store.ListGuardians(ctx, tokenA)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBatchRoundTripAndFilter(t *testing.T) {
	store, _ := newTestStore(t, testKey(t))
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	b1 := fixtureBatch("b1", base)
	b1.Items[1].Executed = true
	txHash := common.HexToHash("0xabc")
	b1.Items[1].TxHash = &txHash
	b2 := fixtureBatch("b2", base.Add(time.Second))
	b2.Status = withdrawal.BatchStatusCompleted
	require.NoError(t, store.SaveBatch(ctx, b1))
	require.NoError(t, store.SaveBatch(ctx, b2))

	got, err := store.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.TotalAmount.Int64())
	assert.Equal(t, []common.Address{guardian2}, got.Approvers.List())
	require.Len(t, got.Items, 2)
	assert.True(t, got.Items[1].Executed)
	assert.Equal(t, txHash, *got.Items[1].TxHash)
	assert.Equal(t, "ops", got.Items[0].Category)

	openBatches, err := store.ListBatches(ctx, BatchFilter{Statuses: []withdrawal.BatchStatus{withdrawal.BatchStatusPending, withdrawal.BatchStatusApproved}})
	require.NoError(t, err)
	require.Len(t, openBatches, 1)
	assert.Equal(t, "b1", openBatches[0].BatchID)

	require.NoError(t, store.DeleteBatch(ctx, "b1"))
	_, err = store.GetBatch(ctx, "b1")
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindNotFound))
}
