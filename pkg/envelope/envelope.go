package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

const (
	// AESGCMNonceSize is the standard nonce size for GCM (12 bytes)
	AESGCMNonceSize = 12
	// AESGCMTagSize is the detached authentication tag size (16 bytes)
	AESGCMTagSize = 16
	// KeySizeAES256 is the key size for AES-256 (32 bytes)
	KeySizeAES256 = 32

	hkdfInfoPrefix = "guardian-storage-v1:"
)

var (
	ErrInvalidKey      = errors.New("envelope: key must be 32 bytes")
	ErrNotAnEnvelope   = errors.New("envelope: value is not an encrypted envelope")
	ErrDecryptFailed   = errors.New("envelope: authentication failed")
	ErrMalformedFields = errors.New("envelope: malformed iv, tag or data")
)

// Envelope is the stored shape of one sealed blob. All fields are base64.
type Envelope struct {
	IV   string `json:"iv"`
	Tag  string `json:"tag"`
	Data string `json:"data"`
}

// Sealer encrypts blobs with AES-256-GCM. Each purpose gets its own HKDF subkey,
// and the purpose is bound as additional data so a blob cannot be moved between columns.
type Sealer struct {
	master []byte
}

func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySizeAES256 {
		return nil, ErrInvalidKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Sealer{master: k}, nil
}

// Seal encrypts plaintext with a fresh random nonce and returns the envelope.
func (s *Sealer) Seal(purpose string, plaintext []byte) (*Envelope, error) {
	gcm, err := s.gcm(purpose)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, AESGCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, []byte(purpose))
	ct, tag := sealed[:len(sealed)-AESGCMTagSize], sealed[len(sealed)-AESGCMTagSize:]

	return &Envelope{
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Tag:  base64.StdEncoding.EncodeToString(tag),
		Data: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// SealString seals plaintext and returns the envelope serialized as JSON.
func (s *Sealer) SealString(purpose string, plaintext []byte) (string, error) {
	env, err := s.Seal(purpose, plaintext)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Open authenticates and decrypts the envelope.
func (s *Sealer) Open(purpose string, env *Envelope) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != AESGCMNonceSize {
		return nil, ErrMalformedFields
	}
	tag, err := base64.StdEncoding.DecodeString(env.Tag)
	if err != nil || len(tag) != AESGCMTagSize {
		return nil, ErrMalformedFields
	}
	ct, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, ErrMalformedFields
	}

	gcm, err := s.gcm(purpose)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(purpose))
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func (s *Sealer) gcm(purpose string) (cipher.AEAD, error) {
	key, err := deriveKey(s.master, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

// Parse decodes raw as an envelope. It returns ErrNotAnEnvelope for anything that
// does not carry all three fields, so callers can fall back to plaintext.
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrNotAnEnvelope
	}
	if env.IV == "" || env.Tag == "" || env.Data == "" {
		return nil, ErrNotAnEnvelope
	}
	return &env, nil
}

// deriveKey derives the per-purpose AES-256 subkey from the master key using HKDF-SHA256.
func deriveKey(master []byte, purpose string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, master, nil, []byte(hkdfInfoPrefix+purpose))

	key := make([]byte, KeySizeAES256)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyFromPassphrase stretches an operator passphrase into a 32-byte master key with scrypt.
func KeyFromPassphrase(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("envelope: empty passphrase")
	}
	if len(salt) == 0 {
		salt = []byte("guardian-storage-salt")
	}
	return scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, KeySizeAES256)
}

// DecodeKey accepts a hex (64 chars) or base64 encoded 32-byte key.
func DecodeKey(s string) ([]byte, error) {
	if len(s) == 2*KeySizeAES256 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("envelope: key is neither hex nor base64: %w", err)
	}
	if len(b) != KeySizeAES256 {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// NewKey returns a random 32-byte master key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySizeAES256)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
