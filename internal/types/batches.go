package types

import (
	"time"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/batch"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

type PostBatchItemPayload struct {
	Token     string `json:"token" valid:"required,eth_address"`
	Amount    string `json:"amount" valid:"required,uint256"`
	Recipient string `json:"recipient" valid:"required,eth_address"`
	Reason    string `json:"reason" valid:"length(0|512)"`
	Category  string `json:"category" valid:"length(0|64)"`
	IsQueued  bool   `json:"isQueued"`
}

type PostCreateBatchPayload struct {
	Vault             string                 `json:"vault" valid:"required,eth_address"`
	Items             []PostBatchItemPayload `json:"items" valid:"-"`
	RequiredApprovals int                    `json:"requiredApprovals" valid:"required"`
}

type PostApprovalPayload struct {
	Signature string `json:"signature" valid:"required,hex_bytes"`
}

type PostCancelBatchPayload struct {
	Reason string `json:"reason" valid:"length(0|512)"`
}

type BatchItem struct {
	Index         int    `json:"index"`
	Token         string `json:"token"`
	Amount        string `json:"amount"`
	Recipient     string `json:"recipient"`
	Reason        string `json:"reason,omitempty"`
	Category      string `json:"category,omitempty"`
	IsQueued      bool   `json:"isQueued"`
	Executed      bool   `json:"executed"`
	Unconfirmed   bool   `json:"unconfirmed,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

type Batch struct {
	BatchID           string      `json:"batchId"`
	Vault             string      `json:"vault"`
	Creator           string      `json:"creator"`
	Status            string      `json:"status"`
	Token             string      `json:"token"`
	TotalAmount       string      `json:"totalAmount"`
	Items             []BatchItem `json:"items"`
	Approvers         []string    `json:"approvers"`
	ApprovalCount     int         `json:"approvalCount"`
	RequiredApprovals int         `json:"requiredApprovals"`
	CancelReason      string      `json:"cancelReason,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	ExpiresAt         time.Time   `json:"expiresAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

type BatchItemResult struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
	TxHash string `json:"txHash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type BatchExecutionResponse struct {
	BatchID      string            `json:"batchId"`
	Status       string            `json:"status"`
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
	Items        []BatchItemResult `json:"items"`
}

func FromBatch(b *withdrawal.Batch) *Batch {
	out := &Batch{
		BatchID:           b.BatchID,
		Vault:             b.VaultAddress.Hex(),
		Creator:           b.Creator.Hex(),
		Status:            string(b.Status),
		Token:             b.Token().Hex(),
		Items:             make([]BatchItem, 0, len(b.Items)),
		Approvers:         addresses(b.Approvers.List()),
		ApprovalCount:     b.ApprovalCount(),
		RequiredApprovals: b.RequiredApprovals,
		CancelReason:      b.CancelReason,
		CreatedAt:         b.CreatedAt,
		ExpiresAt:         b.ExpiresAt,
		UpdatedAt:         b.UpdatedAt,
	}
	if b.TotalAmount != nil {
		out.TotalAmount = b.TotalAmount.String()
	}
	for i, it := range b.Items {
		item := BatchItem{
			Index:         i,
			Token:         it.Token.Hex(),
			Amount:        it.Amount.String(),
			Recipient:     it.Recipient.Hex(),
			Reason:        it.Reason,
			Category:      it.Category,
			IsQueued:      it.IsQueued,
			Executed:      it.Executed,
			Unconfirmed:   it.Unconfirmed,
			FailureReason: it.FailureReason,
		}
		if it.TxHash != nil {
			item.TxHash = it.TxHash.Hex()
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func FromBatches(list []*withdrawal.Batch) []*Batch {
	out := make([]*Batch, 0, len(list))
	for _, b := range list {
		out = append(out, FromBatch(b))
	}
	return out
}

func FromExecutionResult(r *batch.ExecutionResult) *BatchExecutionResponse {
	out := &BatchExecutionResponse{
		BatchID:      r.BatchID,
		Status:       r.Status,
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
		Items:        make([]BatchItemResult, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		res := BatchItemResult{Index: it.Index, Status: string(it.Status), Reason: it.Reason}
		if it.TxHash != nil {
			res.TxHash = it.TxHash.Hex()
		}
		out.Items = append(out.Items, res)
	}
	return out
}
