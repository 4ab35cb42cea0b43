// Package hexutil provides utilities for parsing Ethereum hex-encoded values.
package hexutil

import (
	"strconv"
	"strings"
)

// ParseInt64 parses a hex quantity string ("0x1b4" or "1b4") to int64.
func ParseInt64(hexNum string) (int64, error) {
	hexNum = strings.TrimPrefix(hexNum, "0x")
	return strconv.ParseInt(hexNum, 16, 64)
}
