package hexutil

import "testing"

func TestParseInt64(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"zero", "0x0", 0},
		{"small quantity", "0x10", 16},
		{"mainnet block height", "0x14532a1", 21312161},
		{"unix timestamp", "0x66f2b4c0", 1727182016},
		{"no prefix", "1b4", 436},
		{"uppercase digits", "0xABCD", 43981},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInt64(tc.input)
			if err != nil {
				t.Fatalf("ParseInt64(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("ParseInt64(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseInt64_RejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "0x", "not-hex", "0xGG"} {
		if _, err := ParseInt64(input); err == nil {
			t.Errorf("ParseInt64(%q): expected error", input)
		}
	}
}
