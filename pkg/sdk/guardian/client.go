package guardian

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/signing"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
)

// Client signs and submits guardian approvals against the guardian API.
// The private key never leaves the client; only signatures are sent.
type Client struct {
	baseURL    string
	token      string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL, authenticated with a bearer token.
// httpClient may be nil.
func NewClient(baseURL string, token string, privateKey *ecdsa.PrivateKey, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		privateKey: privateKey,
		httpClient: httpClient,
	}
}

// Address is the guardian address of the client's key.
func (c *Client) Address() common.Address {
	return crypto.PubkeyToAddress(c.privateKey.PublicKey)
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	StatusCode int
	Body       httperrors.HTTPError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("guardian api: %d %s: %s", e.StatusCode, e.Body.Type, e.Body.Title)
}

type payload struct {
	Digest    string          `json:"digest"`
	TypedData json.RawMessage `json:"typedData"`
}

func (c *Client) GetRequest(ctx context.Context, id string) (*types.Request, error) {
	var out types.Request
	if err := c.do(ctx, http.MethodGet, "/api/v1/requests/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignRequest fetches the signing payload of a request, signs its digest and submits the signature.
func (c *Client) SignRequest(ctx context.Context, id string) (*types.SubmitSignatureResponse, error) {
	sig, err := c.signPayload(ctx, "/api/v1/requests/"+id+"/payload")
	if err != nil {
		return nil, err
	}

	var out types.SubmitSignatureResponse
	body := types.PostSignaturePayload{Signature: sig, Signer: c.Address().Hex()}
	if err := c.do(ctx, http.MethodPost, "/api/v1/requests/"+id+"/signatures", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveBatch signs the batch approval payload and records the approval.
func (c *Client) ApproveBatch(ctx context.Context, batchID string) (*types.Batch, error) {
	sig, err := c.signPayload(ctx, "/api/v1/batches/"+batchID+"/payload")
	if err != nil {
		return nil, err
	}

	var out types.Batch
	if err := c.do(ctx, http.MethodPost, "/api/v1/batches/"+batchID+"/approvals", types.PostApprovalPayload{Signature: sig}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeBatchApproval withdraws the client's approval of an open batch.
func (c *Client) RevokeBatchApproval(ctx context.Context, batchID string) (*types.Batch, error) {
	var out types.Batch
	if err := c.do(ctx, http.MethodDelete, "/api/v1/batches/"+batchID+"/approvals", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) signPayload(ctx context.Context, path string) (string, error) {
	var p payload
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return "", err
	}
	raw, err := hexutil.Decode(p.Digest)
	if err != nil || len(raw) != common.HashLength {
		return "", errors.Errorf("server returned an invalid digest %q", p.Digest)
	}

	sig, err := signing.SignHash(common.BytesToHash(raw), c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (c *Client) do(ctx context.Context, method string, path string, in interface{}, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: res.StatusCode}
		_ = json.NewDecoder(res.Body).Decode(&apiErr.Body)
		return apiErr
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
