package signing

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// MockRoster is a testify mock of RosterProvider.
type MockRoster struct {
	mock.Mock
}

func (m *MockRoster) Guardians(ctx context.Context, vault common.Address) ([]common.Address, error) {
	args := m.Called(ctx, vault)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]common.Address), args.Error(1)
}

var (
	testVault = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func testDomain() Domain {
	return Domain{Name: "SpendGuard", Version: "1", ChainID: big.NewInt(84532)}
}

func testRequest() withdrawal.Request {
	amount, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	return withdrawal.Request{
		Token:     testToken,
		Amount:    amount,
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000cc"),
		Nonce:     big.NewInt(7),
		Reason:    "payroll",
	}
}

func newKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []common.Address) {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		k, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = k
		addrs[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return keys, addrs
}

func newTestCollector(roster RosterProvider) *Collector {
	return NewCollector(testDomain(), roster, time.Second, time2.NewMockClock(time.Unix(1700000000, 0)))
}

func TestPayloadIsBoundToVaultAndChain(t *testing.T) {
	req := testRequest()

	_, h1, err := testDomain().BuildSigningPayload(testVault, req)
	require.NoError(t, err)

	_, h2, err := testDomain().BuildSigningPayload(common.HexToAddress("0x00000000000000000000000000000000000000ab"), req)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	other := testDomain()
	other.ChainID = big.NewInt(1)
	_, h3, err := other.BuildSigningPayload(testVault, req)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	req.Nonce = big.NewInt(8)
	_, h4, err := testDomain().BuildSigningPayload(testVault, req)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestPayloadRequiresChainID(t *testing.T) {
	_, _, err := Domain{Name: "x", Version: "1"}.BuildSigningPayload(testVault, testRequest())
	assert.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	keys, addrs := newKeys(t, 1)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(addrs, nil)

	c := newTestCollector(roster)
	signed, err := c.Sign(context.Background(), testVault, testRequest(), keys[0])
	require.NoError(t, err)
	assert.Len(t, signed.Signature, SignatureLength)
	assert.Contains(t, []byte{27, 28}, signed.Signature[64])
	assert.Equal(t, addrs[0], signed.Signer)

	_, hash, err := testDomain().BuildSigningPayload(testVault, testRequest())
	require.NoError(t, err)
	got, err := RecoverSigner(hash, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, addrs[0], got)

	// V in {0, 1} is accepted as well
	raw := append([]byte(nil), signed.Signature...)
	raw[64] -= 27
	got, err = RecoverSigner(hash, raw)
	require.NoError(t, err)
	assert.Equal(t, addrs[0], got)
}

func TestSignRejectsNonGuardian(t *testing.T) {
	keys, _ := newKeys(t, 1)
	_, others := newKeys(t, 2)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(others, nil)

	_, err := newTestCollector(roster).Sign(context.Background(), testVault, testRequest(), keys[0])
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindAuthorization))
}

func TestSignWithoutKey(t *testing.T) {
	_, err := newTestCollector(new(MockRoster)).Sign(context.Background(), testVault, testRequest(), nil)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindNotConnected))
}

func TestRecoverRejectsHighS(t *testing.T) {
	keys, addrs := newKeys(t, 1)
	_, hash, err := testDomain().BuildSigningPayload(testVault, testRequest())
	require.NoError(t, err)

	sig, err := SignHash(hash, keys[0])
	require.NoError(t, err)
	got, err := RecoverSigner(hash, sig)
	require.NoError(t, err)
	require.Equal(t, addrs[0], got)

	// flip to the malleable twin (n - s, v ^ 1)
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	highS := new(big.Int).Sub(n, s)
	flipped := append([]byte(nil), sig...)
	copy(flipped[32:64], common.LeftPadBytes(highS.Bytes(), 32))
	flipped[64] = 27 + (1 - (sig[64] - 27))

	_, err = RecoverSigner(hash, flipped)
	assert.ErrorIs(t, err, ErrSignatureMalleable)

	_, err = RecoverSigner(hash, sig[:64])
	assert.ErrorIs(t, err, ErrMalformedSignature)
}

func TestVerifyAllQuorumAndDuplicates(t *testing.T) {
	keys, addrs := newKeys(t, 3)
	outsiderKeys, _ := newKeys(t, 1)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(addrs, nil)

	c := newTestCollector(roster)
	ctx := context.Background()
	req := testRequest()

	sign := func(k *ecdsa.PrivateKey) withdrawal.SignedWithdrawal {
		_, hash, err := testDomain().BuildSigningPayload(testVault, req)
		require.NoError(t, err)
		sig, err := SignHash(hash, k)
		require.NoError(t, err)
		return withdrawal.SignedWithdrawal{Request: req, Signature: sig}
	}

	a1 := sign(keys[0])
	a2 := sign(keys[0])
	b := sign(keys[1])
	outsider := sign(outsiderKeys[0])
	garbage := withdrawal.SignedWithdrawal{Request: req, Signature: []byte{1, 2, 3}}

	summary, err := c.VerifyAll(ctx, testVault, req, []withdrawal.SignedWithdrawal{a1, a2, outsider, garbage}, 2)
	require.NoError(t, err)
	assert.False(t, summary.MeetsQuorum)
	assert.Len(t, summary.Valid, 1)
	require.Len(t, summary.Invalid, 3)
	assert.True(t, summary.Invalid[0].IsDuplicate)
	assert.True(t, summary.Invalid[0].IsGuardian)
	assert.False(t, summary.Invalid[1].IsGuardian)
	assert.NotEmpty(t, summary.Invalid[2].Error)

	summary, err = c.VerifyAll(ctx, testVault, req, []withdrawal.SignedWithdrawal{a1, a2, b}, 2)
	require.NoError(t, err)
	assert.True(t, summary.MeetsQuorum)
	assert.Equal(t, []common.Address{addrs[0], addrs[1]}, summary.ValidSigners())
	assert.Equal(t, 2, summary.RequiredQuorum)
}

func TestVerifyOneFlagsDuplicate(t *testing.T) {
	keys, addrs := newKeys(t, 2)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(addrs, nil)
	c := newTestCollector(roster)

	signed, err := c.Sign(context.Background(), testVault, testRequest(), keys[0])
	require.NoError(t, err)

	res, err := c.VerifyOne(context.Background(), testVault, testRequest(), signed.Signature, nil)
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = c.VerifyOne(context.Background(), testVault, testRequest(), signed.Signature, []common.Address{addrs[0]})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.True(t, res.IsDuplicate)
}

func TestVerifyFetchesRosterEveryCall(t *testing.T) {
	keys, addrs := newKeys(t, 2)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(addrs, nil).Once()
	roster.On("Guardians", mock.Anything, testVault).Return(addrs[1:], nil).Once()
	c := newTestCollector(roster)

	signed, err := c.Sign(context.Background(), testVault, testRequest(), keys[0])
	require.NoError(t, err)

	// guardian removed between signing and verification
	res, err := c.VerifyOne(context.Background(), testVault, testRequest(), signed.Signature, nil)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.False(t, res.IsGuardian)
	roster.AssertNumberOfCalls(t, "Guardians", 2)
}

func TestVerifyRosterFailureIsTransient(t *testing.T) {
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(nil, errors.New("rpc down"))

	_, err := newTestCollector(roster).VerifyAll(context.Background(), testVault, testRequest(), nil, 1)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindTransient))
}

func TestVerifyBatchApproval(t *testing.T) {
	keys, addrs := newKeys(t, 2)
	roster := new(MockRoster)
	roster.On("Guardians", mock.Anything, testVault).Return(addrs, nil)
	c := newTestCollector(roster)

	b := &withdrawal.Batch{
		BatchID:      "batch-1",
		VaultAddress: testVault,
		ExpiresAt:    time.Unix(1700086400, 0),
		Items:        []withdrawal.Item{{Token: testToken, Amount: big.NewInt(5)}},
		TotalAmount:  big.NewInt(5),
	}
	_, hash, err := testDomain().BuildBatchApprovalPayload(testVault, b)
	require.NoError(t, err)
	sig, err := SignHash(hash, keys[0])
	require.NoError(t, err)

	require.NoError(t, c.VerifyBatchApproval(context.Background(), b, addrs[0], sig))

	err = c.VerifyBatchApproval(context.Background(), b, addrs[1], sig)
	assert.True(t, withdrawal.IsKind(err, withdrawal.ErrKindAuthorization))
}
