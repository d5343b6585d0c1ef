package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers contract calls with pre-packed outputs keyed by method.
type fakeCaller struct {
	abi     abi.ABI
	outputs map[string][]interface{}
	err     error
	calls   []ethereum.CallMsg
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	values, ok := f.outputs[method.Name]
	if !ok {
		return nil, nil
	}
	return method.Outputs.Pack(values...)
}

func newFakeCaller(t *testing.T, outputs map[string][]interface{}) *fakeCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	require.NoError(t, err)
	return &fakeCaller{abi: parsed, outputs: outputs}
}

func TestVaultContractGuardiansAndNonce(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	guardians := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x0000000000000000000000000000000000000002"),
	}
	caller := newFakeCaller(t, map[string][]interface{}{
		"getGuardians": {guardians},
		"nonce":        {big.NewInt(42)},
	})

	v, err := NewVaultContract(caller)
	require.NoError(t, err)

	got, err := v.Guardians(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, guardians, got)

	nonce, err := v.Nonce(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())

	require.Len(t, caller.calls, 2)
	assert.Equal(t, vault, *caller.calls[0].To)
}

func TestVaultContractEmptyResult(t *testing.T) {
	v, err := NewVaultContract(newFakeCaller(t, map[string][]interface{}{}))
	require.NoError(t, err)

	_, err = v.Guardians(context.Background(), common.HexToAddress("0x01"))
	assert.Error(t, err)
}

func TestVaultContractCallError(t *testing.T) {
	caller := newFakeCaller(t, nil)
	caller.err = errors.New("connection refused")
	v, err := NewVaultContract(caller)
	require.NoError(t, err)

	_, err = v.Nonce(context.Background(), common.HexToAddress("0x01"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestParseStaticRoster(t *testing.T) {
	vault := "0x00000000000000000000000000000000000000aa"
	r, err := ParseStaticRoster("0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002;" +
		vault + "=0x0000000000000000000000000000000000000003")
	require.NoError(t, err)

	g, err := r.Guardians(context.Background(), common.HexToAddress(vault))
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0x03")}, g)

	g, err = r.Guardians(context.Background(), common.HexToAddress("0xbb"))
	require.NoError(t, err)
	assert.Len(t, g, 2)

	_, err = ParseStaticRoster("not-an-address")
	assert.Error(t, err)
}

func TestStaticNonces(t *testing.T) {
	n := NewStaticNonces()
	vault := common.HexToAddress("0xaa")

	v, err := n.Nonce(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Int64())

	n.Set(vault, big.NewInt(9))
	v, err = n.Nonce(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.Int64())
}
