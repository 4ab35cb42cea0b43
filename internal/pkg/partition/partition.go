// Package partition generates S3 partition keys for block-ranged data.
package partition

import "fmt"

// BlockRangeSize is the number of blocks per S3 partition.
const BlockRangeSize = 1000

// ForBlock returns the partition string covering a block number.
// Block 0-999 -> "0-999", block 1000-1999 -> "1000-1999", and so on.
func ForBlock(blockNumber int64) string {
	start := blockNumber / BlockRangeSize * BlockRangeSize
	end := start + BlockRangeSize - 1
	return fmt.Sprintf("%d-%d", start, end)
}
