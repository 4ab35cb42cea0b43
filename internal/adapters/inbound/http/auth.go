package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Principals maps bearer tokens to the on-chain principal they act as.
// Admin requests carry a token; the mapped address is what the pricing core
// authorizes against its admin/guardian roles.
type Principals map[string]common.Address

// ParsePrincipals parses the AUTH_PRINCIPALS format:
//
//	token1:0xAddress1,token2:0xAddress2
//
// Tokens must be unique and non-empty; addresses must be valid hex addresses.
func ParsePrincipals(raw string) (Principals, error) {
	principals := make(Principals)
	if strings.TrimSpace(raw) == "" {
		return principals, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, addr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed principal entry %q: want token:address", pair)
		}
		token = strings.TrimSpace(token)
		addr = strings.TrimSpace(addr)
		if token == "" {
			return nil, fmt.Errorf("empty token in principal entry %q", pair)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid address %q for token", addr)
		}
		if _, exists := principals[token]; exists {
			return nil, fmt.Errorf("duplicate token in principals")
		}
		principals[token] = common.HexToAddress(addr)
	}

	return principals, nil
}

// principal resolves the caller address from the request's bearer token.
// Returns false when the token is missing or unknown.
func (p Principals) principal(r *http.Request) (common.Address, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return common.Address{}, false
	}
	addr, ok := p[token]
	return addr, ok
}
