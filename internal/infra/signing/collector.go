package signing

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

const SignatureLength = 65

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrSignatureMalleable = errors.New("signature s value is not canonical")
)

// Collector produces and verifies guardian approvals.
type Collector struct {
	domain        Domain
	roster        RosterProvider
	rosterTimeout time.Duration
	clock         time2.Clock
}

// NewCollector returns a collector that verifies against roster.
func NewCollector(domain Domain, roster RosterProvider, rosterTimeout time.Duration, clock time2.Clock) *Collector {
	if rosterTimeout <= 0 {
		rosterTimeout = 10 * time.Second
	}
	return &Collector{
		domain:        domain,
		roster:        roster,
		rosterTimeout: rosterTimeout,
		clock:         clock,
	}
}

func (c *Collector) Domain() Domain {
	return c.domain
}

// Guardians fetches the current roster of the vault with the configured timeout.
func (c *Collector) Guardians(ctx context.Context, vault common.Address) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, c.rosterTimeout)
	defer cancel()

	guardians, err := c.roster.Guardians(ctx, vault)
	if err != nil {
		return nil, withdrawal.NewTransientError("", "failed to fetch guardian roster", err)
	}
	return guardians, nil
}

// Sign signs the request on behalf of key after checking the key owner is a current guardian.
func (c *Collector) Sign(ctx context.Context, vault common.Address, req withdrawal.Request, key *ecdsa.PrivateKey) (*withdrawal.SignedWithdrawal, error) {
	if key == nil {
		return nil, withdrawal.NewNotConnectedError("no signing key available")
	}

	signer := crypto.PubkeyToAddress(key.PublicKey)
	guardians, err := c.Guardians(ctx, vault)
	if err != nil {
		return nil, err
	}
	if !withdrawal.ContainsAddress(guardians, signer) {
		return nil, withdrawal.NewAuthorizationError("", signer.Hex(), "signer is not a guardian of the vault")
	}

	_, hash, err := c.domain.BuildSigningPayload(vault, req)
	if err != nil {
		return nil, withdrawal.NewValidationError("", "invalid withdrawal request: %v", err)
	}

	sig, err := SignHash(hash, key)
	if err != nil {
		return nil, err
	}

	return &withdrawal.SignedWithdrawal{
		Request:   req.Clone(),
		Signature: sig,
		Signer:    signer,
		SignedAt:  c.clock.Now().UTC(),
	}, nil
}

// VerifyOne checks one signature against a freshly fetched roster.
// The returned error is only set when the roster could not be fetched.
func (c *Collector) VerifyOne(ctx context.Context, vault common.Address, req withdrawal.Request, sig []byte, accepted []common.Address) (VerificationResult, error) {
	guardians, err := c.Guardians(ctx, vault)
	if err != nil {
		return VerificationResult{}, err
	}
	_, hash, err := c.domain.BuildSigningPayload(vault, req)
	if err != nil {
		return VerificationResult{}, withdrawal.NewValidationError("", "invalid withdrawal request: %v", err)
	}
	return verify(hash, sig, common.Address{}, guardians, accepted), nil
}

// VerifyAll checks signatures in submission order. The first valid signature of a
// guardian is accepted and every later one from the same guardian is a duplicate.
func (c *Collector) VerifyAll(ctx context.Context, vault common.Address, req withdrawal.Request, sigs []withdrawal.SignedWithdrawal, requiredQuorum int) (*VerificationSummary, error) {
	guardians, err := c.Guardians(ctx, vault)
	if err != nil {
		return nil, err
	}
	_, hash, err := c.domain.BuildSigningPayload(vault, req)
	if err != nil {
		return nil, withdrawal.NewValidationError("", "invalid withdrawal request: %v", err)
	}

	summary := &VerificationSummary{
		Valid:          []VerificationResult{},
		Invalid:        []VerificationResult{},
		RequiredQuorum: requiredQuorum,
	}
	accepted := make([]common.Address, 0, len(sigs))
	for _, s := range sigs {
		res := verify(hash, s.Signature, s.Signer, guardians, accepted)
		if res.IsValid {
			accepted = append(accepted, res.Signer)
			summary.Valid = append(summary.Valid, res)
			continue
		}
		log.Debug().Str("vault", vault.Hex()).Str("signer", res.Signer.Hex()).Str("reason", res.Error).Msg("Rejected guardian signature")
		summary.Invalid = append(summary.Invalid, res)
	}
	summary.MeetsQuorum = requiredQuorum > 0 && len(summary.Valid) >= requiredQuorum

	return summary, nil
}

// VerifyBatchApproval checks that sig is the given guardian's approval of the batch.
func (c *Collector) VerifyBatchApproval(ctx context.Context, b *withdrawal.Batch, guardian common.Address, sig []byte) error {
	_, hash, err := c.domain.BuildBatchApprovalPayload(b.VaultAddress, b)
	if err != nil {
		return withdrawal.NewValidationError(b.BatchID, "invalid batch: %v", err)
	}
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return withdrawal.NewValidationError(b.BatchID, "invalid approval signature: %v", err)
	}
	if signer != guardian {
		return withdrawal.NewAuthorizationError(b.BatchID, signer.Hex(), "approval signature does not belong to "+guardian.Hex())
	}

	guardians, err := c.Guardians(ctx, b.VaultAddress)
	if err != nil {
		return err
	}
	if !withdrawal.ContainsAddress(guardians, signer) {
		return withdrawal.NewAuthorizationError(b.BatchID, signer.Hex(), "signer is not a guardian of the vault")
	}
	return nil
}

func verify(hash common.Hash, sig []byte, claimed common.Address, guardians []common.Address, accepted []common.Address) VerificationResult {
	signer, err := RecoverSigner(hash, sig)
	if err != nil {
		return VerificationResult{Signer: claimed, Error: err.Error()}
	}

	res := VerificationResult{
		Signer:     signer,
		IsGuardian: withdrawal.ContainsAddress(guardians, signer),
	}
	switch {
	case claimed != (common.Address{}) && claimed != signer:
		res.Error = "signature does not match claimed signer " + claimed.Hex()
	case !res.IsGuardian:
		res.Error = "signer is not a guardian"
	case withdrawal.ContainsAddress(accepted, signer):
		res.IsDuplicate = true
		res.Error = "duplicate signature from guardian"
	default:
		res.IsValid = true
	}
	return res
}

// SignHash signs the digest and returns R||S||V with V in {27, 28}.
func SignHash(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign payload")
	}
	sig[64] += 27
	return sig, nil
}

var secp256k1HalfN = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// RecoverSigner returns the address that produced sig over hash.
// V may be 0/1 or 27/28; signatures with a high S value are rejected.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrMalformedSignature
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, ErrMalformedSignature
	}

	s := new(big.Int).SetBytes(normalized[32:64])
	if s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, ErrSignatureMalleable
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrMalformedSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}
