package auth

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Caller is the authenticated principal of one API request.
type Caller struct {
	Address common.Address
	Role    string
}

// Result is returned when a token is issued.
type Result struct {
	Token      string
	Caller     Caller
	ValidUntil time.Time
}
