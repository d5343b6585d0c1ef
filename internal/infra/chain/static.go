package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// StaticRoster serves a fixed guardian set, optionally per vault.
// Used for local development when no RPC endpoint is configured.
type StaticRoster struct {
	mu       sync.RWMutex
	fallback []common.Address
	vaults   map[common.Address][]common.Address
}

func NewStaticRoster(fallback []common.Address) *StaticRoster {
	return &StaticRoster{
		fallback: fallback,
		vaults:   make(map[common.Address][]common.Address),
	}
}

// ParseStaticRoster parses "g1,g2" (applies to every vault) or
// "vault=g1,g2;vault2=g3" entries.
func ParseStaticRoster(s string) (*StaticRoster, error) {
	r := NewStaticRoster(nil)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		vault, list, found := strings.Cut(entry, "=")
		if !found {
			list = vault
			vault = ""
		}
		addrs, err := parseAddressList(list)
		if err != nil {
			return nil, err
		}
		if vault == "" {
			r.fallback = addrs
			continue
		}
		if !common.IsHexAddress(strings.TrimSpace(vault)) {
			return nil, errors.Errorf("invalid vault address %q", vault)
		}
		r.vaults[common.HexToAddress(strings.TrimSpace(vault))] = addrs
	}
	return r, nil
}

func parseAddressList(s string) ([]common.Address, error) {
	var out []common.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, errors.Errorf("invalid guardian address %q", part)
		}
		out = append(out, common.HexToAddress(part))
	}
	return out, nil
}

// Set replaces the roster of one vault.
func (r *StaticRoster) Set(vault common.Address, guardians []common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults[vault] = append([]common.Address(nil), guardians...)
}

func (r *StaticRoster) Guardians(ctx context.Context, vault common.Address) ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.vaults[vault]; ok {
		return append([]common.Address(nil), g...), nil
	}
	return append([]common.Address(nil), r.fallback...), nil
}

// StaticNonces is an in-memory nonce provider.
type StaticNonces struct {
	mu     sync.Mutex
	nonces map[common.Address]*big.Int
}

func NewStaticNonces() *StaticNonces {
	return &StaticNonces{nonces: make(map[common.Address]*big.Int)}
}

func (n *StaticNonces) Set(vault common.Address, nonce *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[vault] = new(big.Int).Set(nonce)
}

func (n *StaticNonces) Nonce(ctx context.Context, vault common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := n.nonces[vault]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}
