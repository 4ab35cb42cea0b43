// Package wad provides arithmetic on 1e18-scaled fixed-point integers, the
// scale every price in the system is expressed in.
package wad

import "math/big"

// Decimals is the fixed-point precision of a wad.
const Decimals = 18

var one = big.NewInt(1_000_000_000_000_000_000)

// One returns 1e18 as a fresh big.Int.
func One() *big.Int {
	return new(big.Int).Set(one)
}

// Pow10 returns 10^n as a fresh big.Int. n must be non-negative.
func Pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// FromDecimals rescales a quantity with the given decimal count to 18
// decimals: x * 1e18 / 10^decimals. For decimals <= 18 the result is exact;
// for larger counts the excess precision is truncated toward zero.
func FromDecimals(x *big.Int, decimals uint8) *big.Int {
	scaled := new(big.Int).Mul(x, one)
	return scaled.Quo(scaled, Pow10(int(decimals)))
}

// Mul multiplies two wads: a * b / 1e18.
func Mul(a, b *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, one)
}
