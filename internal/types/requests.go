package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/gateway"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

type PostCreateRequestPayload struct {
	Vault          string `json:"vault" valid:"required,eth_address"`
	Token          string `json:"token" valid:"required,eth_address"`
	Amount         string `json:"amount" valid:"required,uint256"`
	Recipient      string `json:"recipient" valid:"required,eth_address"`
	Reason         string `json:"reason" valid:"length(0|512)"`
	RequiredQuorum int    `json:"requiredQuorum" valid:"required"`
}

// PostSignaturePayload carries one guardian signature. Signer is optional and,
// when present, must match the recovered address.
type PostSignaturePayload struct {
	Signature string `json:"signature" valid:"required,hex_bytes"`
	Signer    string `json:"signer" valid:"eth_address"`
}

type PostRejectPayload struct {
	Reason string `json:"reason" valid:"required,length(1|512)"`
}

type Signature struct {
	Signer    string    `json:"signer"`
	Signature string    `json:"signature"`
	SignedAt  time.Time `json:"signedAt"`
}

type Request struct {
	ID              string      `json:"id"`
	Vault           string      `json:"vault"`
	Token           string      `json:"token"`
	Amount          string      `json:"amount"`
	Recipient       string      `json:"recipient"`
	Nonce           string      `json:"nonce"`
	Reason          string      `json:"reason"`
	Status          string      `json:"status"`
	RequiredQuorum  int         `json:"requiredQuorum"`
	CreatedBy       string      `json:"createdBy"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	ExecutedAt      *time.Time  `json:"executedAt,omitempty"`
	ExecutionTxHash string      `json:"executionTxHash,omitempty"`
	RejectionReason string      `json:"rejectionReason,omitempty"`
	Guardians       []string    `json:"guardians"`
	Signatures      []Signature `json:"signatures"`
}

type SubmitSignatureResponse struct {
	Request      *Request                     `json:"request"`
	Verification *signing.VerificationSummary `json:"verification"`
}

type ExecuteRequestResponse struct {
	Request *Request `json:"request"`
	Outcome Outcome  `json:"outcome"`
}

type Outcome struct {
	Status string `json:"status"`
	TxHash string `json:"txHash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// TypedDataResponse is what a guardian wallet signs with eth_signTypedData_v4.
type TypedDataResponse struct {
	Digest    string      `json:"digest"`
	TypedData interface{} `json:"typedData"`
}

func FromRequest(p *withdrawal.PendingRequest) *Request {
	out := &Request{
		ID:              p.ID,
		Vault:           p.VaultAddress.Hex(),
		Token:           p.Request.Token.Hex(),
		Amount:          p.Request.Amount.String(),
		Recipient:       p.Request.Recipient.Hex(),
		Nonce:           p.Request.Nonce.String(),
		Reason:          p.Request.Reason,
		Status:          string(p.Status),
		RequiredQuorum:  p.RequiredQuorum,
		CreatedBy:       p.CreatedBy.Hex(),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
		ExecutedAt:      p.ExecutedAt,
		RejectionReason: p.RejectionReason,
		Guardians:       addresses(p.Guardians),
		Signatures:      make([]Signature, 0, len(p.Signatures)),
	}
	if p.ExecutionTxHash != nil {
		out.ExecutionTxHash = p.ExecutionTxHash.Hex()
	}
	for _, sig := range p.Signatures {
		out.Signatures = append(out.Signatures, Signature{
			Signer:    sig.Signer.Hex(),
			Signature: hexutil.Encode(sig.Signature),
			SignedAt:  sig.SignedAt,
		})
	}
	return out
}

func FromRequests(list []*withdrawal.PendingRequest) []*Request {
	out := make([]*Request, 0, len(list))
	for _, p := range list {
		out = append(out, FromRequest(p))
	}
	return out
}

func FromOutcome(o gateway.Outcome) Outcome {
	out := Outcome{Status: string(o.Status), Reason: o.Reason}
	if o.TxHash != nil {
		out.TxHash = o.TxHash.Hex()
	}
	return out
}

func addresses(list []common.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Hex())
	}
	return out
}
