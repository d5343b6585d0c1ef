package storage

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/metrics"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
	"github.com/zakkycrypt01/spenednsave-sub002/pkg/envelope"
)

// Blob purposes. Each one gets its own subkey and is bound as additional data.
const (
	purposeRequestPayload    = "request.payload"
	purposeRequestSignatures = "request.signatures"
	purposeRequestGuardians  = "request.guardians"
	purposeActivityDetails   = "activity.details"
	purposeBatchPayload      = "batch.payload"
)

var ErrNoEncryptionKey = errors.New("storage encryption key is not configured")

// Codec maps domain records to stored rows, sealing every sensitive blob independently.
type Codec struct {
	sealer *envelope.Sealer
}

// NewCodec returns a codec sealing blobs with key. Without a key it fails unless
// allowPlaintext is set, in which case blobs are written in the clear.
func NewCodec(key []byte, allowPlaintext bool) (*Codec, error) {
	if len(key) == 0 {
		if !allowPlaintext {
			return nil, ErrNoEncryptionKey
		}
		log.Warn().Msg("STORAGE RUNS WITHOUT ENCRYPTION: approval state is written in plaintext (STORAGE_ALLOW_PLAINTEXT=true)")
		metrics.SetPlaintextMode(true)
		return &Codec{}, nil
	}

	sealer, err := envelope.NewSealer(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sealer")
	}
	metrics.SetPlaintextMode(false)
	return &Codec{sealer: sealer}, nil
}

func (c *Codec) Encrypted() bool {
	return c.sealer != nil
}

func (c *Codec) seal(purpose string, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "failed to marshal %s", purpose)
	}
	if c.sealer == nil {
		return string(b), nil
	}
	out, err := c.sealer.SealString(purpose, b)
	if err != nil {
		return "", errors.Wrapf(err, "failed to seal %s", purpose)
	}
	return out, nil
}

// open decodes a stored blob. Envelopes must decrypt; anything else is parsed
// best-effort as plaintext JSON, then as a JSON string holding JSON. A blob no
// attempt can decode is a persistence error naming the record.
func open[T any, PT interface {
	*T
	schema
}](c *Codec, purpose string, subject string, raw string) (*T, error) {
	if env, err := envelope.Parse([]byte(raw)); err == nil {
		if c.sealer == nil {
			return nil, withdrawal.NewPersistenceError(subject, purpose+" is encrypted but no key is configured", nil)
		}
		plaintext, err := c.sealer.Open(purpose, env)
		if err != nil {
			log.Error().Err(err).Str("purpose", purpose).Str("subject", subject).Msg("Failed to decrypt stored blob")
			return nil, withdrawal.NewPersistenceError(subject, "failed to decrypt "+purpose, err)
		}
		out, err := decodeSchema[T, PT]([]byte(plaintext))
		if err != nil {
			return nil, withdrawal.NewPersistenceError(subject, "failed to decode "+purpose, err)
		}
		return out, nil
	}

	if c.sealer != nil {
		log.Warn().Str("purpose", purpose).Str("subject", subject).Msg("Reading plaintext blob, it will be sealed on next write")
	}
	metrics.ObservePlaintextRead(purpose)

	out, err := decodeSchema[T, PT]([]byte(raw))
	if err == nil {
		return out, nil
	}
	var inner string
	if jsonErr := json.Unmarshal([]byte(raw), &inner); jsonErr == nil {
		if out, innerErr := decodeSchema[T, PT]([]byte(inner)); innerErr == nil {
			return out, nil
		}
	}

	log.Warn().Err(err).Str("purpose", purpose).Str("subject", subject).Msg("Failed to parse stored blob")
	return nil, withdrawal.NewPersistenceError(subject, "unreadable "+purpose, err)
}

func decodeSchema[T any, PT interface {
	*T
	schema
}](b []byte) (*T, error) {
	var out T
	if strings.TrimSpace(string(b)) != "" {
		if err := json.Unmarshal(b, PT(&out)); err != nil {
			return nil, err
		}
	}
	if err := PT(&out).validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// blob is a stored blob column. It decodes from a JSON string or, for legacy
// rows, from any inline JSON value.
type blob string

func (b *blob) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = blob(s)
		return nil
	}
	*b = blob(data)
	return nil
}

type requestRecord struct {
	ID              string     `json:"id"`
	VaultAddress    string     `json:"vaultAddress"`
	Request         blob       `json:"request"`
	Signatures      blob       `json:"signatures"`
	Guardians       blob       `json:"guardians"`
	RequiredQuorum  int        `json:"requiredQuorum"`
	CreatedAt       time.Time  `json:"createdAt"`
	CreatedBy       string     `json:"createdBy"`
	Status          string     `json:"status"`
	ExecutedAt      *time.Time `json:"executedAt,omitempty"`
	ExecutionTxHash string     `json:"executionTxHash,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type activityRecord struct {
	ID           string    `json:"id"`
	Account      string    `json:"account"`
	Action       string    `json:"action"`
	VaultAddress string    `json:"vaultAddress"`
	SubjectID    string    `json:"subjectId"`
	Details      blob      `json:"details"`
	CreatedAt    time.Time `json:"createdAt"`
}

type guardianRow struct {
	TokenAddress    string    `json:"tokenAddress"`
	GuardianAddress string    `json:"guardianAddress"`
	Label           string    `json:"label"`
	AddedAt         time.Time `json:"addedAt"`
}

type batchRecord struct {
	BatchID           string    `json:"batchId"`
	VaultAddress      string    `json:"vaultAddress"`
	Creator           string    `json:"creator"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Status            string    `json:"status"`
	Payload           blob      `json:"payload"`
	RequiredApprovals int       `json:"requiredApprovals"`
	CancelReason      string    `json:"cancelReason,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func normalizeAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func addressStrings(list []common.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, normalizeAddress(a))
	}
	return out
}

func parseAddresses(list []string) []common.Address {
	out := make([]common.Address, 0, len(list))
	for _, a := range list {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

func hashString(h *common.Hash) string {
	if h == nil {
		return ""
	}
	return h.Hex()
}

func parseHash(s string) *common.Hash {
	if s == "" {
		return nil
	}
	h := common.HexToHash(s)
	return &h
}

func (c *Codec) encodeRequest(p *withdrawal.PendingRequest) (*requestRecord, error) {
	payload, err := c.seal(purposeRequestPayload, requestPayloadV1{
		Version:   schemaV1,
		Token:     normalizeAddress(p.Request.Token),
		Amount:    newDecimal(p.Request.Amount),
		Recipient: normalizeAddress(p.Request.Recipient),
		Nonce:     newDecimal(p.Request.Nonce),
		Reason:    p.Request.Reason,
	})
	if err != nil {
		return nil, err
	}

	sigs := signaturesV1{Version: schemaV1, Items: make([]signatureV1, 0, len(p.Signatures))}
	for _, s := range p.Signatures {
		sigs.Items = append(sigs.Items, signatureV1{
			Signature: "0x" + hex.EncodeToString(s.Signature),
			Signer:    normalizeAddress(s.Signer),
			SignedAt:  s.SignedAt.UTC(),
		})
	}
	sigBlob, err := c.seal(purposeRequestSignatures, sigs)
	if err != nil {
		return nil, err
	}

	guardianBlob, err := c.seal(purposeRequestGuardians, addressListV1{Version: schemaV1, Addresses: addressStrings(p.Guardians)})
	if err != nil {
		return nil, err
	}

	return &requestRecord{
		ID:              p.ID,
		VaultAddress:    normalizeAddress(p.VaultAddress),
		Request:         blob(payload),
		Signatures:      blob(sigBlob),
		Guardians:       blob(guardianBlob),
		RequiredQuorum:  p.RequiredQuorum,
		CreatedAt:       p.CreatedAt.UTC(),
		CreatedBy:       normalizeAddress(p.CreatedBy),
		Status:          string(p.Status),
		ExecutedAt:      p.ExecutedAt,
		ExecutionTxHash: hashString(p.ExecutionTxHash),
		RejectionReason: p.RejectionReason,
		UpdatedAt:       p.UpdatedAt.UTC(),
	}, nil
}

func (c *Codec) decodeRequest(r *requestRecord) (*withdrawal.PendingRequest, error) {
	payload, err := open[requestPayloadV1](c, purposeRequestPayload, r.ID, string(r.Request))
	if err != nil {
		return nil, err
	}
	req := withdrawal.Request{
		Token:     common.HexToAddress(payload.Token),
		Amount:    payload.Amount.value(),
		Recipient: common.HexToAddress(payload.Recipient),
		Nonce:     payload.Nonce.value(),
		Reason:    payload.Reason,
	}

	sigs, err := open[signaturesV1](c, purposeRequestSignatures, r.ID, string(r.Signatures))
	if err != nil {
		return nil, err
	}
	signatures := make([]withdrawal.SignedWithdrawal, 0, len(sigs.Items))
	for _, s := range sigs.Items {
		raw, err := hex.DecodeString(strings.TrimPrefix(s.Signature, "0x"))
		if err != nil {
			return nil, withdrawal.NewPersistenceError(r.ID, "signature is not hex", err)
		}
		signatures = append(signatures, withdrawal.SignedWithdrawal{
			Request:   req.Clone(),
			Signature: raw,
			Signer:    common.HexToAddress(s.Signer),
			SignedAt:  s.SignedAt,
		})
	}

	guardians, err := open[addressListV1](c, purposeRequestGuardians, r.ID, string(r.Guardians))
	if err != nil {
		return nil, err
	}

	return &withdrawal.PendingRequest{
		ID:              r.ID,
		VaultAddress:    common.HexToAddress(r.VaultAddress),
		Request:         req,
		Signatures:      signatures,
		RequiredQuorum:  r.RequiredQuorum,
		CreatedAt:       r.CreatedAt,
		CreatedBy:       common.HexToAddress(r.CreatedBy),
		Status:          withdrawal.Status(r.Status),
		ExecutedAt:      r.ExecutedAt,
		ExecutionTxHash: parseHash(r.ExecutionTxHash),
		Guardians:       parseAddresses(guardians.Addresses),
		RejectionReason: r.RejectionReason,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func (c *Codec) encodeActivity(e *withdrawal.ActivityEntry) (*activityRecord, error) {
	details, err := c.seal(purposeActivityDetails, activityDetailsV1{Version: schemaV1, Details: e.Details})
	if err != nil {
		return nil, err
	}
	return &activityRecord{
		ID:           e.ID,
		Account:      normalizeAddress(e.Account),
		Action:       e.Action,
		VaultAddress: normalizeAddress(e.VaultAddress),
		SubjectID:    e.SubjectID,
		Details:      blob(details),
		CreatedAt:    e.CreatedAt.UTC(),
	}, nil
}

func (c *Codec) decodeActivity(r *activityRecord) (*withdrawal.ActivityEntry, error) {
	details, err := open[activityDetailsV1](c, purposeActivityDetails, r.ID, string(r.Details))
	if err != nil {
		return nil, err
	}
	return &withdrawal.ActivityEntry{
		ID:           r.ID,
		Account:      common.HexToAddress(r.Account),
		Action:       r.Action,
		VaultAddress: common.HexToAddress(r.VaultAddress),
		SubjectID:    r.SubjectID,
		Details:      details.Details,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func encodeGuardian(g *withdrawal.GuardianRecord) *guardianRow {
	return &guardianRow{
		TokenAddress:    normalizeAddress(g.TokenAddress),
		GuardianAddress: normalizeAddress(g.GuardianAddress),
		Label:           g.Label,
		AddedAt:         g.AddedAt.UTC(),
	}
}

func decodeGuardian(r *guardianRow) *withdrawal.GuardianRecord {
	return &withdrawal.GuardianRecord{
		TokenAddress:    common.HexToAddress(r.TokenAddress),
		GuardianAddress: common.HexToAddress(r.GuardianAddress),
		Label:           r.Label,
		AddedAt:         r.AddedAt,
	}
}

func (c *Codec) encodeBatch(b *withdrawal.Batch) (*batchRecord, error) {
	payload := batchPayloadV1{
		Version:     schemaV1,
		Items:       make([]itemV1, 0, len(b.Items)),
		TotalAmount: newDecimal(b.TotalAmount),
		Approvers:   addressStrings(b.Approvers.List()),
	}
	for _, it := range b.Items {
		payload.Items = append(payload.Items, itemV1{
			Token:         normalizeAddress(it.Token),
			Amount:        newDecimal(it.Amount),
			Recipient:     normalizeAddress(it.Recipient),
			Reason:        it.Reason,
			Category:      it.Category,
			IsQueued:      it.IsQueued,
			Executed:      it.Executed,
			TxHash:        hashString(it.TxHash),
			Unconfirmed:   it.Unconfirmed,
			FailureReason: it.FailureReason,
		})
	}
	sealed, err := c.seal(purposeBatchPayload, payload)
	if err != nil {
		return nil, err
	}

	return &batchRecord{
		BatchID:           b.BatchID,
		VaultAddress:      normalizeAddress(b.VaultAddress),
		Creator:           normalizeAddress(b.Creator),
		CreatedAt:         b.CreatedAt.UTC(),
		ExpiresAt:         b.ExpiresAt.UTC(),
		Status:            string(b.Status),
		Payload:           blob(sealed),
		RequiredApprovals: b.RequiredApprovals,
		CancelReason:      b.CancelReason,
		UpdatedAt:         b.UpdatedAt.UTC(),
	}, nil
}

func (c *Codec) decodeBatch(r *batchRecord) (*withdrawal.Batch, error) {
	payload, err := open[batchPayloadV1](c, purposeBatchPayload, r.BatchID, string(r.Payload))
	if err != nil {
		return nil, err
	}

	items := make([]withdrawal.Item, 0, len(payload.Items))
	for _, it := range payload.Items {
		items = append(items, withdrawal.Item{
			Token:         common.HexToAddress(it.Token),
			Amount:        it.Amount.value(),
			Recipient:     common.HexToAddress(it.Recipient),
			Reason:        it.Reason,
			Category:      it.Category,
			IsQueued:      it.IsQueued,
			Executed:      it.Executed,
			TxHash:        parseHash(it.TxHash),
			Unconfirmed:   it.Unconfirmed,
			FailureReason: it.FailureReason,
		})
	}

	return &withdrawal.Batch{
		BatchID:           r.BatchID,
		VaultAddress:      common.HexToAddress(r.VaultAddress),
		Creator:           common.HexToAddress(r.Creator),
		CreatedAt:         r.CreatedAt,
		ExpiresAt:         r.ExpiresAt,
		Status:            withdrawal.BatchStatus(r.Status),
		Items:             items,
		TotalAmount:       payload.TotalAmount.value(),
		Approvers:         withdrawal.NewApproverSet(parseAddresses(payload.Approvers)...),
		RequiredApprovals: r.RequiredApprovals,
		CancelReason:      r.CancelReason,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}
