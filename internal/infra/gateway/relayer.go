package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/metrics"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// ReceiptFetcher is satisfied by *ethclient.Client.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type RelayerConfig struct {
	URL              string
	APIKey           string
	SubmitTimeout    time.Duration
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	BreakerFailures  uint32
	BreakerOpenDelay time.Duration
}

// Relayer submits executions to an HTTP relayer and waits for their receipts on chain.
type Relayer struct {
	cfg      RelayerConfig
	client   *http.Client
	receipts ReceiptFetcher
	breaker  *gobreaker.CircuitBreaker
}

func NewRelayer(cfg RelayerConfig, client *http.Client, receipts ReceiptFetcher) *Relayer {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenDelay <= 0 {
		cfg.BreakerOpenDelay = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "execution-relayer",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Relayer circuit breaker changed state")
		},
	})

	return &Relayer{cfg: cfg, client: client, receipts: receipts, breaker: breaker}
}

type executionRequest struct {
	Kind       string   `json:"kind"`
	Vault      string   `json:"vault"`
	SubjectID  string   `json:"subjectId"`
	ItemIndex  *int     `json:"itemIndex,omitempty"`
	Token      string   `json:"token"`
	Amount     string   `json:"amount"`
	Recipient  string   `json:"recipient"`
	Nonce      string   `json:"nonce,omitempty"`
	Reason     string   `json:"reason"`
	Signatures []string `json:"signatures,omitempty"`
	Signers    []string `json:"signers"`
}

type executionResponse struct {
	Status string `json:"status"`
	TxHash string `json:"txHash"`
	Reason string `json:"reason"`
}

func (r *Relayer) ExecuteRequest(ctx context.Context, req *withdrawal.PendingRequest, sigs []withdrawal.SignedWithdrawal) (Outcome, error) {
	body := executionRequest{
		Kind:      "request",
		Vault:     req.VaultAddress.Hex(),
		SubjectID: req.ID,
		Token:     req.Request.Token.Hex(),
		Amount:    req.Request.Amount.String(),
		Recipient: req.Request.Recipient.Hex(),
		Nonce:     req.Request.Nonce.String(),
		Reason:    req.Request.Reason,
	}
	for _, s := range sigs {
		body.Signatures = append(body.Signatures, "0x"+hex.EncodeToString(s.Signature))
		body.Signers = append(body.Signers, s.Signer.Hex())
	}
	return r.execute(ctx, req.ID, body)
}

func (r *Relayer) ExecuteItem(ctx context.Context, batch *withdrawal.Batch, index int) (Outcome, error) {
	if index < 0 || index >= len(batch.Items) {
		return Outcome{}, errors.Errorf("item index %d out of range", index)
	}
	item := batch.Items[index]
	body := executionRequest{
		Kind:      "batch_item",
		Vault:     batch.VaultAddress.Hex(),
		SubjectID: batch.BatchID,
		ItemIndex: &index,
		Token:     item.Token.Hex(),
		Amount:    item.Amount.String(),
		Recipient: item.Recipient.Hex(),
		Reason:    item.Reason,
	}
	for _, a := range batch.Approvers.List() {
		body.Signers = append(body.Signers, a.Hex())
	}
	return r.execute(ctx, fmt.Sprintf("%s#%d", batch.BatchID, index), body)
}

func (r *Relayer) execute(ctx context.Context, subject string, body executionRequest) (Outcome, error) {
	start := time.Now()
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.submit(ctx, body)
	})
	if err != nil {
		metrics.ObserveGatewayCall("submit", "error", time.Since(start))
		return Outcome{}, withdrawal.NewTransientError(subject, "failed to submit execution", err)
	}
	resp := res.(*executionResponse)
	metrics.ObserveGatewayCall("submit", resp.Status, time.Since(start))

	switch resp.Status {
	case "rejected", "failed":
		log.Info().Str("subject", subject).Str("reason", resp.Reason).Msg("Relayer rejected execution")
		return Outcome{Status: OutcomeFailed, TxHash: parseTxHash(resp.TxHash), Reason: resp.Reason}, nil
	case "confirmed":
		return Outcome{Status: OutcomeConfirmed, TxHash: parseTxHash(resp.TxHash)}, nil
	}

	hash := parseTxHash(resp.TxHash)
	if hash == nil {
		return Outcome{}, withdrawal.NewTransientError(subject, "relayer returned no transaction hash", nil)
	}
	return r.Confirm(ctx, *hash)
}

// submit posts one execution. Only transport errors and 5xx responses count
// against the circuit breaker; a 4xx is a definitive rejection.
func (r *Relayer) submit(ctx context.Context, body executionRequest) (*executionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal execution request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+"/v1/executions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create relayer request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "relayer request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read relayer response")
	}
	if resp.StatusCode >= 500 {
		return nil, errors.Errorf("relayer returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out executionResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode < 400 {
		return nil, errors.Wrap(err, "failed to decode relayer response")
	}
	if resp.StatusCode >= 400 {
		out.Status = "rejected"
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("relayer returned %d", resp.StatusCode)
		}
	}
	return &out, nil
}

// Confirm polls for the receipt of txHash until it is mined or the confirm timeout elapses.
func (r *Relayer) Confirm(ctx context.Context, txHash common.Hash) (Outcome, error) {
	if r.receipts == nil {
		return Outcome{Status: OutcomeUnconfirmed, TxHash: &txHash, Reason: "no receipt source configured"}, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := r.receipts.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				metrics.ObserveGatewayCall("confirm", string(OutcomeConfirmed), time.Since(start))
				return Outcome{Status: OutcomeConfirmed, TxHash: &txHash}, nil
			}
			metrics.ObserveGatewayCall("confirm", string(OutcomeFailed), time.Since(start))
			return Outcome{Status: OutcomeFailed, TxHash: &txHash, Reason: "transaction reverted"}, nil
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			log.Warn().Err(err).Str("txHash", txHash.Hex()).Msg("Failed to fetch receipt, retrying")
		}

		select {
		case <-ctx.Done():
			metrics.ObserveGatewayCall("confirm", string(OutcomeUnconfirmed), time.Since(start))
			return Outcome{Status: OutcomeUnconfirmed, TxHash: &txHash, Reason: "transaction not confirmed in time"}, nil
		case <-ticker.C:
		}
	}
}

func parseTxHash(s string) *common.Hash {
	if s == "" {
		return nil
	}
	h := common.HexToHash(s)
	return &h
}
