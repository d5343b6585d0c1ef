package request

import (
	"context"
	"crypto/ecdsa"
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

const defaultNonceTimeout = 10 * time.Second

// Service drives single withdrawal requests from creation to execution.
type Service struct {
	store        Store
	locker       storage.Locker
	collector    *signing.Collector
	nonces       NonceProvider
	executor     gateway.Executor
	clock        time2.Clock
	nonceTimeout time.Duration
}

// NewService wires the request lifecycle service.
func NewService(store Store, locker storage.Locker, collector *signing.Collector, nonces NonceProvider, executor gateway.Executor, clock time2.Clock, nonceTimeout time.Duration) *Service {
	if nonceTimeout <= 0 {
		nonceTimeout = defaultNonceTimeout
	}
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Service{
		store:        store,
		locker:       locker,
		collector:    collector,
		nonces:       nonces,
		executor:     executor,
		clock:        clock,
		nonceTimeout: nonceTimeout,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// Create validates the request, snapshots the roster and assigns the next vault nonce.
func (s *Service) Create(ctx context.Context, in CreateRequest) (*withdrawal.PendingRequest, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	guardians, err := s.collector.Guardians(ctx, in.Vault)
	if err != nil {
		return nil, err
	}
	if in.RequiredQuorum > len(guardians) {
		return nil, withdrawal.NewValidationError("", "required quorum %d exceeds guardian count %d", in.RequiredQuorum, len(guardians))
	}

	var created *withdrawal.PendingRequest
	err = s.locker.WithLock(ctx, storage.VaultLockKey(in.Vault), func(ctx context.Context) error {
		nonce, err := s.nextNonce(ctx, in.Vault)
		if err != nil {
			return err
		}

		now := s.now()
		p := &withdrawal.PendingRequest{
			ID:           uuid.NewString(),
			VaultAddress: in.Vault,
			Request: withdrawal.Request{
				Token:     in.Token,
				Amount:    new(big.Int).Set(in.Amount),
				Recipient: in.Recipient,
				Nonce:     nonce,
				Reason:    in.Reason,
			},
			Signatures:     []withdrawal.SignedWithdrawal{},
			RequiredQuorum: in.RequiredQuorum,
			CreatedAt:      now,
			CreatedBy:      in.CreatedBy,
			Status:         withdrawal.StatusPending,
			Guardians:      guardians,
			UpdatedAt:      now,
		}
		if err := s.store.SaveRequest(ctx, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveTransition("request", "", string(withdrawal.StatusPending))
	s.record(ctx, created.CreatedBy, withdrawal.ActionRequestCreated, created, map[string]string{
		"token":  created.Request.Token.Hex(),
		"amount": created.Request.Amount.String(),
		"nonce":  created.Request.Nonce.String(),
	})
	log.Info().Str("request_id", created.ID).Str("vault", created.VaultAddress.Hex()).Str("nonce", created.Request.Nonce.String()).Msg("Withdrawal request created")
	return created, nil
}

func validateCreate(in CreateRequest) error {
	zero := common.Address{}
	switch {
	case in.Vault == zero:
		return withdrawal.NewValidationError("", "vault address is required")
	case in.Token == zero:
		return withdrawal.NewValidationError("", "token address is required")
	case in.Recipient == zero:
		return withdrawal.NewValidationError("", "recipient address is required")
	case in.CreatedBy == zero:
		return withdrawal.NewValidationError("", "creator address is required")
	case in.Amount == nil || in.Amount.Sign() <= 0:
		return withdrawal.NewValidationError("", "amount must be positive")
	case in.RequiredQuorum < 1:
		return withdrawal.NewValidationError("", "required quorum must be at least 1")
	}
	return nil
}

// nextNonce must run under the vault lock.
func (s *Service) nextNonce(ctx context.Context, vault common.Address) (*big.Int, error) {
	nctx, cancel := context.WithTimeout(ctx, s.nonceTimeout)
	onChain, err := s.nonces.Nonce(nctx, vault)
	cancel()
	if err != nil {
		return nil, withdrawal.NewTransientError("", "failed to fetch vault nonce", err)
	}

	existing, err := s.store.ListRequests(ctx, storage.RequestFilter{Vault: &vault})
	if err != nil {
		return nil, err
	}

	next := new(big.Int).Set(onChain)
	for _, p := range existing {
		if p.Status == withdrawal.StatusRejected || p.Request.Nonce == nil {
			continue
		}
		candidate := new(big.Int).Add(p.Request.Nonce, big.NewInt(1))
		if candidate.Cmp(next) > 0 {
			next = candidate
		}
	}
	return next, nil
}

// SubmitSignature verifies one guardian signature and adds it to the request.
// claimed may be the zero address when the caller does not assert a signer.
func (s *Service) SubmitSignature(ctx context.Context, id string, sig []byte, claimed common.Address) (*SubmitResult, error) {
	var result *SubmitResult
	err := s.locker.WithLock(ctx, storage.RequestLockKey(id), func(ctx context.Context) error {
		p, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return withdrawal.NewStateError(id, "request is %s", p.Status)
		}

		res, err := s.collector.VerifyOne(ctx, p.VaultAddress, p.Request, sig, p.Signers())
		if err != nil {
			return err
		}
		if err := signatureError(id, res, claimed); err != nil {
			metrics.ObserveSignature("rejected")
			return err
		}
		metrics.ObserveSignature("accepted")

		p.Signatures = append(p.Signatures, withdrawal.SignedWithdrawal{
			Request:   p.Request.Clone(),
			Signature: append([]byte(nil), sig...),
			Signer:    res.Signer,
			SignedAt:  s.now(),
		})

		summary, err := s.collector.VerifyAll(ctx, p.VaultAddress, p.Request, p.Signatures, p.RequiredQuorum)
		if err != nil {
			return err
		}

		from := p.Status
		if summary.MeetsQuorum {
			p.Status = withdrawal.StatusApproved
		} else {
			p.Status = withdrawal.StatusPending
		}
		p.UpdatedAt = s.now()
		if err := s.store.SaveRequest(ctx, p); err != nil {
			return err
		}

		s.record(ctx, res.Signer, withdrawal.ActionRequestSigned, p, map[string]string{
			"valid":    strconv.Itoa(len(summary.Valid)),
			"required": strconv.Itoa(p.RequiredQuorum),
		})
		if from != p.Status {
			metrics.ObserveTransition("request", string(from), string(p.Status))
			if p.Status == withdrawal.StatusApproved {
				s.record(ctx, res.Signer, withdrawal.ActionRequestApproved, p, nil)
			}
		}

		result = &SubmitResult{Request: p, Verification: summary}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func signatureError(id string, res signing.VerificationResult, claimed common.Address) error {
	if claimed != (common.Address{}) && res.Signer != (common.Address{}) && claimed != res.Signer {
		return withdrawal.NewAuthorizationError(id, claimed.Hex(), "signature does not match claimed signer")
	}
	if res.IsValid {
		return nil
	}
	switch {
	case res.IsDuplicate:
		return withdrawal.NewReplayError(id, res.Signer.Hex(), "guardian already signed this request")
	case res.Signer != (common.Address{}) && !res.IsGuardian:
		return withdrawal.NewAuthorizationError(id, res.Signer.Hex(), "signer is not a guardian of the vault")
	default:
		return withdrawal.NewValidationError(id, "invalid signature: %s", res.Error)
	}
}

// Sign signs the request with a server held guardian key and submits the result.
func (s *Service) Sign(ctx context.Context, id string, key *ecdsa.PrivateKey) (*SubmitResult, error) {
	p, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	signed, err := s.collector.Sign(ctx, p.VaultAddress, p.Request, key)
	if err != nil {
		return nil, err
	}
	return s.SubmitSignature(ctx, id, signed.Signature, signed.Signer)
}

// Verify re-checks every stored signature against the current roster.
func (s *Service) Verify(ctx context.Context, id string) (*signing.VerificationSummary, error) {
	p, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.collector.VerifyAll(ctx, p.VaultAddress, p.Request, p.Signatures, p.RequiredQuorum)
}

// Payload returns the typed data a guardian signs for the request.
func (s *Service) Payload(ctx context.Context, id string) (*withdrawal.PendingRequest, *apitypes.TypedData, common.Hash, error) {
	p, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, common.Hash{}, err
	}
	typed, hash, err := s.collector.Domain().BuildSigningPayload(p.VaultAddress, p.Request)
	if err != nil {
		return nil, nil, common.Hash{}, withdrawal.NewValidationError(id, "invalid withdrawal request: %v", err)
	}
	return p, typed, hash, nil
}

// Execute hands an approved request to the execution gateway.
func (s *Service) Execute(ctx context.Context, id string) (*ExecuteResult, error) {
	var result *ExecuteResult
	var pending error
	err := s.locker.WithLock(ctx, storage.RequestLockKey(id), func(ctx context.Context) error {
		p, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != withdrawal.StatusApproved {
			return withdrawal.NewStateError(id, "request is %s, not approved", p.Status)
		}

		summary, err := s.collector.VerifyAll(ctx, p.VaultAddress, p.Request, p.Signatures, p.RequiredQuorum)
		if err != nil {
			return err
		}
		if !summary.MeetsQuorum {
			p.Status = withdrawal.StatusPending
			p.UpdatedAt = s.now()
			if err := s.store.SaveRequest(ctx, p); err != nil {
				return err
			}
			metrics.ObserveTransition("request", string(withdrawal.StatusApproved), string(withdrawal.StatusPending))
			return withdrawal.NewStateError(id, "quorum no longer met: %d of %d valid signatures", len(summary.Valid), p.RequiredQuorum)
		}

		if err := s.checkNonceUnused(ctx, p); err != nil {
			return err
		}

		var outcome gateway.Outcome
		if p.ExecutionTxHash != nil {
			outcome, err = s.executor.Confirm(ctx, *p.ExecutionTxHash)
		} else {
			outcome, err = s.executor.ExecuteRequest(ctx, p, acceptedSignatures(p.Signatures, summary.ValidSigners()))
		}
		if err != nil {
			return err
		}

		now := s.now()
		switch outcome.Status {
		case gateway.OutcomeConfirmed:
			p.Status = withdrawal.StatusExecuted
			p.ExecutedAt = &now
			p.ExecutionTxHash = outcome.TxHash
		case gateway.OutcomeFailed:
			p.ExecutionTxHash = nil
		default:
			p.ExecutionTxHash = outcome.TxHash
			pending = withdrawal.NewTransientError(id, "transaction submitted but not yet confirmed", nil)
		}
		p.UpdatedAt = now
		if err := s.store.SaveRequest(ctx, p); err != nil {
			return err
		}

		details := map[string]string{"outcome": string(outcome.Status)}
		if outcome.TxHash != nil {
			details["tx_hash"] = outcome.TxHash.Hex()
		}
		switch outcome.Status {
		case gateway.OutcomeConfirmed:
			metrics.ObserveTransition("request", string(withdrawal.StatusApproved), string(withdrawal.StatusExecuted))
			s.record(ctx, p.CreatedBy, withdrawal.ActionRequestExecuted, p, details)
		case gateway.OutcomeFailed:
			details["reason"] = outcome.Reason
			s.record(ctx, p.CreatedBy, withdrawal.ActionRequestFailed, p, details)
			log.Warn().Str("request_id", id).Str("reason", outcome.Reason).Msg("Withdrawal execution failed")
		}

		result = &ExecuteResult{Request: p, Outcome: outcome}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, pending
}

func (s *Service) checkNonceUnused(ctx context.Context, p *withdrawal.PendingRequest) error {
	executed, err := s.store.ListRequests(ctx, storage.RequestFilter{Vault: &p.VaultAddress, Status: withdrawal.StatusExecuted})
	if err != nil {
		return err
	}
	for _, other := range executed {
		if other.ID != p.ID && other.Request.Nonce != nil && other.Request.Nonce.Cmp(p.Request.Nonce) == 0 {
			return withdrawal.NewReplayError(p.ID, "", "nonce "+p.Request.Nonce.String()+" already executed by request "+other.ID)
		}
	}
	return nil
}

func acceptedSignatures(sigs []withdrawal.SignedWithdrawal, valid []common.Address) []withdrawal.SignedWithdrawal {
	out := make([]withdrawal.SignedWithdrawal, 0, len(valid))
	used := withdrawal.NewApproverSet()
	for _, sig := range sigs {
		if withdrawal.ContainsAddress(valid, sig.Signer) && used.Add(sig.Signer) {
			out = append(out, sig)
		}
	}
	return out
}

// Reject closes an open request. Only the creator or a current guardian may reject.
func (s *Service) Reject(ctx context.Context, id string, caller common.Address, reason string) (*withdrawal.PendingRequest, error) {
	var rejected *withdrawal.PendingRequest
	err := s.locker.WithLock(ctx, storage.RequestLockKey(id), func(ctx context.Context) error {
		p, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return withdrawal.NewStateError(id, "request is %s", p.Status)
		}
		if p.ExecutionTxHash != nil {
			return withdrawal.NewStateError(id, "request has an unconfirmed transaction %s", p.ExecutionTxHash.Hex())
		}
		if caller != p.CreatedBy {
			guardians, err := s.collector.Guardians(ctx, p.VaultAddress)
			if err != nil {
				return err
			}
			if !withdrawal.ContainsAddress(guardians, caller) {
				return withdrawal.NewAuthorizationError(id, caller.Hex(), "only the creator or a guardian may reject")
			}
		}

		from := p.Status
		p.Status = withdrawal.StatusRejected
		p.RejectionReason = reason
		p.UpdatedAt = s.now()
		if err := s.store.SaveRequest(ctx, p); err != nil {
			return err
		}
		metrics.ObserveTransition("request", string(from), string(p.Status))
		s.record(ctx, caller, withdrawal.ActionRequestRejected, p, map[string]string{"reason": reason})
		rejected = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rejected, nil
}

// Purge deletes a request on behalf of its creator.
func (s *Service) Purge(ctx context.Context, id string, caller common.Address) error {
	return s.locker.WithLock(ctx, storage.RequestLockKey(id), func(ctx context.Context) error {
		p, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if caller != p.CreatedBy {
			return withdrawal.NewAuthorizationError(id, caller.Hex(), "only the creator may delete a request")
		}
		if p.Status == withdrawal.StatusApproved && p.ExecutionTxHash != nil {
			return withdrawal.NewStateError(id, "request has an unconfirmed transaction %s", p.ExecutionTxHash.Hex())
		}
		if err := s.store.DeleteRequest(ctx, id); err != nil {
			return err
		}
		s.record(ctx, caller, withdrawal.ActionRequestPurged, p, map[string]string{"status": string(p.Status)})
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (*withdrawal.PendingRequest, error) {
	return s.store.GetRequest(ctx, id)
}

func (s *Service) List(ctx context.Context, filter storage.RequestFilter) ([]*withdrawal.PendingRequest, error) {
	return s.store.ListRequests(ctx, filter)
}

// record appends to the activity log. The mutation already happened, so a
// failure here is logged and not returned.
func (s *Service) record(ctx context.Context, account common.Address, action string, p *withdrawal.PendingRequest, details map[string]string) {
	entry := &withdrawal.ActivityEntry{
		ID:           uuid.NewString(),
		Account:      account,
		Action:       action,
		VaultAddress: p.VaultAddress,
		SubjectID:    p.ID,
		Details:      details,
		CreatedAt:    s.now(),
	}
	if err := s.store.SaveActivity(ctx, entry); err != nil {
		log.Error().Err(err).Str("request_id", p.ID).Str("action", action).Msg("Failed to append activity entry")
	}
}
