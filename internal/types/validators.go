package types

import (
	"math/big"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func init() {
	govalidator.TagMap["eth_address"] = govalidator.Validator(common.IsHexAddress)
	govalidator.TagMap["hex_bytes"] = govalidator.Validator(func(s string) bool {
		_, err := hexutil.Decode(s)
		return err == nil
	})
	govalidator.TagMap["uint256"] = govalidator.Validator(func(s string) bool {
		_, ok := ParseAmount(s)
		return ok
	})
}

// ParseAmount parses a positive base-10 integer that fits into 256 bits.
func ParseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 || v.BitLen() > 256 {
		return nil, false
	}
	return v, true
}
