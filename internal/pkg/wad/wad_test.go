package wad

import (
	"math/big"
	"testing"
)

func TestFromDecimals(t *testing.T) {
	tests := []struct {
		name     string
		x        string
		decimals uint8
		want     string
	}{
		{name: "8 decimals scales up", x: "200000000000", decimals: 8, want: "2000000000000000000000"},
		{name: "18 decimals unchanged", x: "1500000000000000000", decimals: 18, want: "1500000000000000000"},
		{name: "36 decimals scales down", x: "1000000000000000000000000000000000000", decimals: 36, want: "1000000000000000000"},
		{name: "36 decimals truncates", x: "1000000000000000000999999999999999999", decimals: 36, want: "1000000000000000000"},
		{name: "zero decimals", x: "3", decimals: 0, want: "3000000000000000000"},
		{name: "zero value", x: "0", decimals: 8, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := mustBig(t, tt.x)
			got := FromDecimals(x, tt.decimals)
			if got.String() != tt.want {
				t.Errorf("FromDecimals(%s, %d) = %s, want %s", tt.x, tt.decimals, got, tt.want)
			}
			if x.String() != tt.x {
				t.Errorf("FromDecimals mutated its input: %s", x)
			}
		})
	}
}

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want string
	}{
		{name: "identity", a: "2000000000000000000000", b: "1000000000000000000", want: "2000000000000000000000"},
		{name: "half", a: "2000000000000000000000", b: "500000000000000000", want: "1000000000000000000000"},
		{name: "zero", a: "2000000000000000000000", b: "0", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mul(mustBig(t, tt.a), mustBig(t, tt.b))
			if got.String() != tt.want {
				t.Errorf("Mul(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestOneIsFresh(t *testing.T) {
	a := One()
	a.SetInt64(7)
	if One().String() != "1000000000000000000" {
		t.Error("One() returned a shared value that was mutated")
	}
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big int literal %q", s)
	}
	return v
}
