package model

import (
	"math/big"
	"strings"
)

func pow10(decimals int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// Normalize divides raw minor units by 10^decimals without any float step.
func Normalize(raw *big.Int, decimals int) *big.Rat {
	if raw == nil {
		return new(big.Rat)
	}
	if decimals <= 0 {
		return new(big.Rat).SetInt(raw)
	}
	return new(big.Rat).SetFrac(raw, pow10(decimals))
}

// FormatUnits renders n with the given decimals, trimming trailing zeros.
// decimals=0 prints the integer as is.
func FormatUnits(n *big.Int, decimals int) string {
	if n == nil || n.Sign() == 0 {
		return "0"
	}
	if decimals <= 0 {
		return n.String()
	}

	sign := ""
	x := new(big.Int).Set(n)
	if x.Sign() < 0 {
		sign = "-"
		x.Abs(x)
	}

	denom := pow10(decimals)
	intPart := new(big.Int).Quo(x, denom)
	frac := new(big.Int).Mod(x, denom)
	if frac.Sign() == 0 {
		return sign + intPart.String()
	}

	fracStr := frac.Text(10)
	if len(fracStr) < decimals {
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	}
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + intPart.String() + "." + fracStr
}
