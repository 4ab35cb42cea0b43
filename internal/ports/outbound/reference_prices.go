package outbound

import "context"

// ReferencePrice is one off-chain market quote, in USD.
type ReferencePrice struct {
	AssetID  string
	PriceUSD float64
}

// ReferencePriceProvider fetches off-chain market prices used to cross-check
// on-chain resolution results. Asset IDs are provider-specific.
type ReferencePriceProvider interface {
	// Name returns the provider name (e.g., "coingecko").
	Name() string

	// CurrentPrices fetches current USD prices for the given asset IDs.
	// Unknown IDs are simply absent from the result.
	CurrentPrices(ctx context.Context, assetIDs []string) ([]ReferencePrice, error)
}
