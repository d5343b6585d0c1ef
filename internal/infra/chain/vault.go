package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// vaultABI is the read-only surface of the guardian vault contract used here.
const vaultABI = `[
	{
		"inputs": [],
		"name": "getGuardians",
		"outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "nonce",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// VaultContract reads guardian membership and the withdrawal nonce from a vault contract.
// It serves as both the roster provider and the nonce provider.
type VaultContract struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
}

func NewVaultContract(caller ethereum.ContractCaller) (*VaultContract, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse vault ABI")
	}
	return &VaultContract{caller: caller, abi: parsed}, nil
}

// Dial connects to an EVM JSON-RPC endpoint and checks the chain id matches.
func Dial(ctx context.Context, rpcURL string, expectedChainID *big.Int) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RPC endpoint")
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to get chain ID")
	}
	if expectedChainID != nil && chainID.Cmp(expectedChainID) != 0 {
		client.Close()
		return nil, errors.Errorf("chain id mismatch: rpc reports %s, configured %s", chainID, expectedChainID)
	}

	log.Info().Str("chainID", chainID.String()).Msg("Connected to EVM RPC endpoint")
	return client, nil
}

// Guardians returns the current guardian set of vault.
func (v *VaultContract) Guardians(ctx context.Context, vault common.Address) ([]common.Address, error) {
	out, err := v.call(ctx, vault, "getGuardians")
	if err != nil {
		return nil, err
	}
	guardians, ok := out[0].([]common.Address)
	if !ok {
		return nil, errors.Errorf("unexpected getGuardians output type %T", out[0])
	}
	return guardians, nil
}

// Nonce returns the next withdrawal nonce the vault will accept.
func (v *VaultContract) Nonce(ctx context.Context, vault common.Address) (*big.Int, error) {
	out, err := v.call(ctx, vault, "nonce")
	if err != nil {
		return nil, err
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected nonce output type %T", out[0])
	}
	return nonce, nil
}

func (v *VaultContract) call(ctx context.Context, vault common.Address, method string) ([]interface{}, error) {
	data, err := v.abi.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	result, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &vault, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s on vault %s", method, vault.Hex())
	}
	if len(result) == 0 {
		return nil, errors.Errorf("vault %s returned no data for %s (not a vault contract?)", vault.Hex(), method)
	}

	out, err := v.abi.Unpack(method, result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("empty %s output", method)
	}
	return out, nil
}
