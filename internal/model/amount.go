package model

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

const etherDecimals = 18

var weiPerEther = uint256.NewInt(1e18)

// Ether returns n whole ether expressed in wei.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), weiPerEther)
}

// Bps returns amount*bps/10000, truncated.
func Bps(amount *uint256.Int, bps uint64) *uint256.Int {
	out := new(uint256.Int).Mul(amount, uint256.NewInt(bps))
	return out.Div(out, uint256.NewInt(BpsDenominator))
}

// Zero reports whether a is nil or zero.
func Zero(a *uint256.Int) bool {
	return a == nil || a.IsZero()
}

// Clone returns a copy of a, treating nil as zero.
func Clone(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(a)
}

// ParseAmount accepts either a plain wei integer ("1000000000000000000")
// or a decimal ether quantity with an "ether" suffix ("0.01 ether").
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	lower := strings.ToLower(s)
	if !strings.HasSuffix(lower, "ether") {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", s, err)
		}
		return v, nil
	}

	num := strings.TrimSpace(strings.TrimSuffix(lower, "ether"))
	whole, frac, _ := strings.Cut(num, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("parse amount %q: more than %d decimals", s, etherDecimals)
	}
	frac += strings.Repeat("0", etherDecimals-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// FormatEther renders wei as a decimal ether string with trailing zeros
// trimmed, e.g. 190000000000000000 -> "0.19".
func FormatEther(a *uint256.Int) string {
	if Zero(a) {
		return "0"
	}
	whole, rem := new(uint256.Int).DivMod(a, weiPerEther, new(uint256.Int))
	if rem.IsZero() {
		return whole.Dec()
	}
	frac := rem.Dec()
	frac = strings.Repeat("0", etherDecimals-len(frac)) + frac
	return whole.Dec() + "." + strings.TrimRight(frac, "0")
}
