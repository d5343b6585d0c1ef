package withdrawal

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxBatchItems is the upper bound of items a single batch may carry.
const MaxBatchItems = 50

// Status is the lifecycle status of a single withdrawal request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no approval or revocation may move the request any more.
func (s Status) IsTerminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// BatchStatus is the lifecycle status of a withdrawal batch.
type BatchStatus string

const (
	BatchStatusPending     BatchStatus = "pending"
	BatchStatusApproved    BatchStatus = "approved"
	BatchStatusExecuting   BatchStatus = "executing"
	BatchStatusCompleted   BatchStatus = "completed"
	BatchStatusCancelled   BatchStatus = "cancelled"
	BatchStatusPartialFail BatchStatus = "partial_fail"
)

// IsTerminal reports whether the batch reached a final state.
// partial_fail is settled but may still be retried explicitly.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled || s == BatchStatusPartialFail
}

// IsOpen reports whether the batch still accepts approvals, cancellation and expiry.
func (s BatchStatus) IsOpen() bool {
	return s == BatchStatusPending || s == BatchStatusApproved
}

// Request is a single withdrawal out of a vault. It is immutable once created.
type Request struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	Nonce     *big.Int
	Reason    string
}

// Clone returns a deep copy so callers never share the big.Int values.
func (r Request) Clone() Request {
	out := r
	if r.Amount != nil {
		out.Amount = new(big.Int).Set(r.Amount)
	}
	if r.Nonce != nil {
		out.Nonce = new(big.Int).Set(r.Nonce)
	}
	return out
}

// SignedWithdrawal is one guardian approval of a single withdrawal request.
type SignedWithdrawal struct {
	Request   Request
	Signature []byte
	Signer    common.Address
	SignedAt  time.Time
}

// PendingRequest tracks a withdrawal request through its approval lifecycle.
type PendingRequest struct {
	ID              string
	VaultAddress    common.Address
	Request         Request
	Signatures      []SignedWithdrawal
	RequiredQuorum  int
	CreatedAt       time.Time
	CreatedBy       common.Address
	Status          Status
	ExecutedAt      *time.Time
	ExecutionTxHash *common.Hash
	Guardians       []common.Address
	RejectionReason string
	UpdatedAt       time.Time
}

// Signers returns the signer of every accepted signature in submission order.
func (p *PendingRequest) Signers() []common.Address {
	out := make([]common.Address, 0, len(p.Signatures))
	for _, sig := range p.Signatures {
		out = append(out, sig.Signer)
	}
	return out
}

// Item is one transfer inside a batch.
type Item struct {
	Token         common.Address
	Amount        *big.Int
	Recipient     common.Address
	Reason        string
	Category      string
	IsQueued      bool
	Executed      bool
	TxHash        *common.Hash
	Unconfirmed   bool
	FailureReason string
}

// Batch bundles homogeneous withdrawal items that share one approval threshold and expiry window.
type Batch struct {
	BatchID           string
	VaultAddress      common.Address
	Creator           common.Address
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Status            BatchStatus
	Items             []Item
	TotalAmount       *big.Int
	Approvers         ApproverSet
	RequiredApprovals int
	CancelReason      string
	UpdatedAt         time.Time
}

// ApprovalCount is the number of distinct guardians that approved the batch.
func (b *Batch) ApprovalCount() int {
	return b.Approvers.Len()
}

// Token returns the token shared by every item.
func (b *Batch) Token() common.Address {
	if len(b.Items) == 0 {
		return common.Address{}
	}
	return b.Items[0].Token
}

// ActivityEntry is one line of the append-only activity log.
type ActivityEntry struct {
	ID           string
	Account      common.Address
	Action       string
	VaultAddress common.Address
	SubjectID    string
	Details      map[string]string
	CreatedAt    time.Time
}

// Activity actions
const (
	ActionRequestCreated  = "request.created"
	ActionRequestSigned   = "request.signed"
	ActionRequestApproved = "request.approved"
	ActionRequestExecuted = "request.executed"
	ActionRequestFailed   = "request.execution_failed"
	ActionRequestRejected = "request.rejected"
	ActionRequestPurged   = "request.purged"
	ActionBatchCreated    = "batch.created"
	ActionBatchApproved   = "batch.approved"
	ActionBatchRevoked    = "batch.revoked"
	ActionBatchExecuted   = "batch.executed"
	ActionBatchCancelled  = "batch.cancelled"
	ActionBatchExpired    = "batch.expired"
	ActionGuardiansSynced = "guardians.synced"
)

// GuardianRecord is a cached roster row keyed by (token, guardian).
type GuardianRecord struct {
	TokenAddress    common.Address
	GuardianAddress common.Address
	Label           string
	AddedAt         time.Time
}
