package outbound

// BlockEvent is the queue message announcing a new chain head. It is produced
// by the upstream block watcher; the snapshot worker consumes it to know when
// to re-resolve prices.
type BlockEvent struct {
	// ChainID identifies which blockchain this block is from.
	ChainID int64 `json:"chainId"`

	// BlockNumber is the block number.
	BlockNumber int64 `json:"blockNumber"`

	// BlockHash is the block hash.
	BlockHash string `json:"blockHash"`

	// BlockTimestamp is when the block was produced (unix timestamp).
	BlockTimestamp int64 `json:"blockTimestamp"`

	// IsReorg indicates this block replaces a previously announced one.
	IsReorg bool `json:"isReorg,omitempty"`
}
