package chain

import (
	"math/big"
	"strings"
)

// Pow10 returns 10^decimals.
func Pow10(decimals int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// Units returns n whole tokens expressed in base units.
func Units(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Pow10(decimals))
}

// FormatUnits renders a raw token amount with the given decimals, trimming
// trailing zeros: 1500000000000000000 with 18 decimals is "1.5".
func FormatUnits(raw *big.Int, decimals int) string {
	if raw == nil {
		return "-"
	}
	if decimals <= 0 {
		return raw.String()
	}
	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)
	q, r := new(big.Int).QuoRem(abs, Pow10(decimals), new(big.Int))

	s := q.String()
	if r.Sign() != 0 {
		frac := r.String()
		frac = strings.Repeat("0", decimals-len(frac)) + frac
		s += "." + strings.TrimRight(frac, "0")
	}
	if neg {
		s = "-" + s
	}
	return s
}
