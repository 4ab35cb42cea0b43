package coingecko

// simplePriceResponse is the response from the /simple/price endpoint,
// keyed by asset ID.
type simplePriceResponse map[string]simplePriceData

type simplePriceData struct {
	USD float64 `json:"usd"`
}

// coinGeckoError is the error response shape from the CoinGecko API.
type coinGeckoError struct {
	Error string `json:"error"`
}
