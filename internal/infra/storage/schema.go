package storage

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const schemaV1 = 1

// decimal is an arbitrary-precision integer serialized as a decimal string.
// Legacy rows holding a bare JSON number are accepted on read.
type decimal struct {
	*big.Int
}

func newDecimal(v *big.Int) decimal {
	if v == nil {
		return decimal{}
	}
	return decimal{new(big.Int).Set(v)}
}

func (d decimal) MarshalJSON() ([]byte, error) {
	if d.Int == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(d.Int.String())
}

func (d *decimal) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		d.Int = nil
		return nil
	}
	s = strings.Trim(s, `"`)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok && base == 10 {
		// exponent notation written by older float-based clients
		f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
		if err == nil && f.IsInt() {
			v, _ = f.Int(nil)
			ok = true
		}
	}
	if !ok {
		return errors.Errorf("invalid integer %q", s)
	}
	d.Int = v
	return nil
}

func (d decimal) value() *big.Int {
	if d.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.Int)
}

type requestPayloadV1 struct {
	Version   int     `json:"v"`
	Token     string  `json:"token"`
	Amount    decimal `json:"amount"`
	Recipient string  `json:"recipient"`
	Nonce     decimal `json:"nonce"`
	Reason    string  `json:"reason"`
}

func (p *requestPayloadV1) validate() error {
	if !common.IsHexAddress(p.Token) || !common.IsHexAddress(p.Recipient) {
		return errors.New("request payload has invalid addresses")
	}
	if p.Amount.Int == nil || p.Nonce.Int == nil {
		return errors.New("request payload misses amount or nonce")
	}
	return nil
}

type signatureV1 struct {
	Signature string    `json:"signature"`
	Signer    string    `json:"signer"`
	SignedAt  time.Time `json:"signedAt"`
}

type signaturesV1 struct {
	Version int           `json:"v"`
	Items   []signatureV1 `json:"items"`
}

// UnmarshalJSON also accepts the legacy bare array form.
func (s *signaturesV1) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		s.Version = 0
		return json.Unmarshal(b, &s.Items)
	}
	type alias signaturesV1
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*s = signaturesV1(a)
	return nil
}

func (s *signaturesV1) validate() error {
	for _, it := range s.Items {
		if !common.IsHexAddress(it.Signer) {
			return errors.Errorf("signature entry has invalid signer %q", it.Signer)
		}
	}
	return nil
}

type addressListV1 struct {
	Version   int      `json:"v"`
	Addresses []string `json:"addresses"`
}

// UnmarshalJSON also accepts the legacy bare array form.
func (l *addressListV1) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		l.Version = 0
		return json.Unmarshal(b, &l.Addresses)
	}
	type alias addressListV1
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = addressListV1(a)
	return nil
}

func (l *addressListV1) validate() error {
	for _, a := range l.Addresses {
		if !common.IsHexAddress(a) {
			return errors.Errorf("invalid address %q", a)
		}
	}
	return nil
}

type activityDetailsV1 struct {
	Version int               `json:"v"`
	Details map[string]string `json:"details"`
}

// UnmarshalJSON also accepts a legacy flat object of details.
func (d *activityDetailsV1) UnmarshalJSON(b []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	if _, ok := probe["details"]; ok {
		type alias activityDetailsV1
		var a alias
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		*d = activityDetailsV1(a)
		return nil
	}
	d.Version = 0
	d.Details = make(map[string]string, len(probe))
	for k, raw := range probe {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		d.Details[k] = s
	}
	return nil
}

func (d *activityDetailsV1) validate() error {
	return nil
}

type itemV1 struct {
	Token         string  `json:"token"`
	Amount        decimal `json:"amount"`
	Recipient     string  `json:"recipient"`
	Reason        string  `json:"reason"`
	Category      string  `json:"category"`
	IsQueued      bool    `json:"isQueued"`
	Executed      bool    `json:"executed"`
	TxHash        string  `json:"txHash,omitempty"`
	Unconfirmed   bool    `json:"unconfirmed,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
}

type batchPayloadV1 struct {
	Version     int      `json:"v"`
	Items       []itemV1 `json:"items"`
	TotalAmount decimal  `json:"totalAmount"`
	Approvers   []string `json:"approvers"`
}

func (p *batchPayloadV1) validate() error {
	if len(p.Items) == 0 {
		return errors.New("batch payload has no items")
	}
	for _, it := range p.Items {
		if !common.IsHexAddress(it.Token) || !common.IsHexAddress(it.Recipient) || it.Amount.Int == nil {
			return errors.New("batch payload has an invalid item")
		}
	}
	for _, a := range p.Approvers {
		if !common.IsHexAddress(a) {
			return errors.Errorf("invalid approver %q", a)
		}
	}
	return nil
}

// schema is implemented by every blob record so a best-effort plaintext parse
// that produced an empty shell is detected instead of stored as zero values.
type schema interface {
	validate() error
}
