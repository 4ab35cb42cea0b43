package outbound

import "context"

// BlockHeader represents an Ethereum block header from an eth_newHeads
// subscription. Numeric fields are hex quantity strings as delivered by the
// node.
type BlockHeader struct {
	Number     string `json:"number"`
	Hash       string `json:"hash"`
	ParentHash string `json:"parentHash"`
	Timestamp  string `json:"timestamp"`
}

// BlockSubscriber defines the interface for subscribing to new chain heads
// over a WebSocket connection. The price server uses it to flush the price
// cache on every new block.
type BlockSubscriber interface {
	// Subscribe starts listening for new block headers.
	// The returned channel emits BlockHeader events as new blocks are mined.
	Subscribe(ctx context.Context) (<-chan BlockHeader, error)

	// Unsubscribe stops the subscription and closes the header channel.
	Unsubscribe() error
}
