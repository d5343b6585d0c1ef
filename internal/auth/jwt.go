package auth

import (
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var ErrInvalidSubject = errors.New("token subject is not an address")

// CallerClaims defines the custom claims of an API caller.
// The subject is the caller's checksummed address.
type CallerClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Address returns the caller address carried in the subject.
func (c *CallerClaims) Address() (common.Address, error) {
	if !common.IsHexAddress(c.Subject) {
		return common.Address{}, ErrInvalidSubject
	}
	return common.HexToAddress(c.Subject), nil
}

// JWTManager handles JWT generation and validation
type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
	clock         time2.Clock
}

// NewJWTManager creates a new JWTManager
func NewJWTManager(secretKey string, issuer string, tokenDuration time.Duration, clock time2.Clock) *JWTManager {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
		clock:         clock,
	}
}

// Generate creates a new JWT token for the caller address
func (m *JWTManager) Generate(caller common.Address, role string) (string, time.Time, error) {
	if len(m.secretKey) == 0 {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}

	now := m.clock.Now()
	validUntil := now.Add(m.tokenDuration)
	claims := CallerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(validUntil),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   caller.Hex(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "failed to sign token")
	}
	return signed, validUntil, nil
}

// Validate validates the JWT token and returns the claims
func (m *JWTManager) Validate(tokenString string) (*CallerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, err := claims.Address(); err != nil {
		return nil, err
	}

	return claims, nil
}
