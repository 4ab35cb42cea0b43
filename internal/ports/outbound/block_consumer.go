package outbound

import "context"

// BlockEventMessage is a decoded queue message: the block event itself plus
// the receipt handle needed to acknowledge it after processing.
type BlockEventMessage struct {
	// MessageID is the unique ID of the underlying queue message.
	MessageID string

	// ReceiptHandle is needed to delete the message after processing.
	ReceiptHandle string

	// Event is the decoded block announcement.
	Event BlockEvent
}

// BlockEventConsumer delivers decoded block events from the upstream queue.
// Decoding happens at this boundary; consumers only ever see valid events.
type BlockEventConsumer interface {
	// ReceiveBlockEvents fetches up to maxMessages events from the queue.
	// Returns an empty slice if none are available.
	ReceiveBlockEvents(ctx context.Context, maxMessages int) ([]BlockEventMessage, error)

	// DeleteMessage removes a successfully processed message from the queue.
	DeleteMessage(ctx context.Context, receiptHandle string) error

	// Close closes the consumer and releases resources.
	Close() error
}
