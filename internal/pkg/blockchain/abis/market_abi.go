package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMarketABI returns the ABI surface of a wrapped money-market token
// (cToken-style): the accessor for the asset it wraps.
func GetMarketABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "underlying",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
