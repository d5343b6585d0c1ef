package signing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RosterProvider returns the current guardian set of a vault.
// Implementations must not cache: every call reflects on-chain membership.
type RosterProvider interface {
	Guardians(ctx context.Context, vault common.Address) ([]common.Address, error)
}

// Domain is the EIP-712 domain shared by every payload this service signs.
// The verifying contract is always the vault the payload refers to.
type Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

// VerificationResult is the outcome of checking one signature.
type VerificationResult struct {
	IsValid     bool           `json:"isValid"`
	Signer      common.Address `json:"signer"`
	IsGuardian  bool           `json:"isGuardian"`
	IsDuplicate bool           `json:"isDuplicate"`
	Error       string         `json:"error,omitempty"`
}

// VerificationSummary is the outcome of checking a signature set in submission order.
type VerificationSummary struct {
	Valid          []VerificationResult `json:"valid"`
	Invalid        []VerificationResult `json:"invalid"`
	MeetsQuorum    bool                 `json:"meetsQuorum"`
	RequiredQuorum int                  `json:"requiredQuorum"`
}

// ValidSigners returns the signer of every valid result in order.
func (s *VerificationSummary) ValidSigners() []common.Address {
	out := make([]common.Address, 0, len(s.Valid))
	for _, r := range s.Valid {
		out = append(out, r.Signer)
	}
	return out
}
