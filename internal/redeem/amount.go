package redeem

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

// ErrInvalidAmount is returned for anything that is not a positive integer.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a redeem request in raw base units. Only a string of
// decimal digits with a value in (0, 2^256) is accepted.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a whole number", ErrInvalidAmount, s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := CheckAmount(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CheckAmount rejects nil, zero and negative amounts, and anything a uint256
// argument cannot hold.
func CheckAmount(n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if n.Cmp(math.MaxBig256) > 0 {
		return fmt.Errorf("%w: exceeds uint256", ErrInvalidAmount)
	}
	return nil
}

// SanitizeAmountInput keeps only the digits of interactive input.
func SanitizeAmountInput(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
