// Package sqs consumes block events from an AWS SQS queue. Messages are
// decoded here, at the boundary: the snapshot worker only ever sees valid
// block events. Bodies may arrive raw or wrapped in an SNS notification
// envelope, depending on how the queue is subscribed.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// sqsAPI defines the subset of SQS operations needed by the Consumer.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Compile-time check that Consumer implements outbound.BlockEventConsumer
var _ outbound.BlockEventConsumer = (*Consumer)(nil)

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the URL of the SQS queue to consume from.
	QueueURL string

	// WaitTimeSeconds is how long to wait for messages (long polling).
	// Max is 20 seconds.
	WaitTimeSeconds int32
}

// ConfigDefaults returns sensible defaults for SQS consumer configuration.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
	}
}

// Consumer is an SQS implementation of the outbound.BlockEventConsumer port.
type Consumer struct {
	client   sqsAPI
	queueURL string
	config   Config
	logger   *slog.Logger
}

// NewConsumer creates a new SQS block event consumer.
func NewConsumer(cfg aws.Config, sqsConfig Config, logger *slog.Logger) (*Consumer, error) {
	return NewConsumerWithOptions(cfg, sqsConfig, logger)
}

// NewConsumerWithOptions creates a new SQS consumer with optional SQS client
// options, used by tests to point at a local endpoint.
func NewConsumerWithOptions(cfg aws.Config, sqsConfig Config, logger *slog.Logger, optFns ...func(*sqs.Options)) (*Consumer, error) {
	if sqsConfig.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sqs-consumer")

	defaults := ConfigDefaults()
	if sqsConfig.WaitTimeSeconds == 0 {
		sqsConfig.WaitTimeSeconds = defaults.WaitTimeSeconds
	}

	return &Consumer{
		client:   sqs.NewFromConfig(cfg, optFns...),
		queueURL: sqsConfig.QueueURL,
		config:   sqsConfig,
		logger:   logger,
	}, nil
}

// ReceiveBlockEvents fetches up to maxMessages from the queue and decodes
// them. Undecodable messages are logged and skipped, not deleted: the queue's
// redrive policy moves them to the dead-letter queue after enough receives.
func (c *Consumer) ReceiveBlockEvents(ctx context.Context, maxMessages int) ([]outbound.BlockEventMessage, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > 10 {
		maxMessages = 10 // SQS max is 10
	}

	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       c.config.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	events := make([]outbound.BlockEventMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			continue
		}

		event, err := decodeBlockEvent(*msg.Body)
		if err != nil {
			c.logger.Warn("skipping undecodable block event",
				"messageId", *msg.MessageId, "error", err)
			continue
		}

		events = append(events, outbound.BlockEventMessage{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Event:         event,
		})
	}

	if len(events) > 0 {
		c.logger.Debug("received block events", "count", len(events))
	}

	return events, nil
}

// decodeBlockEvent parses a message body into a block event, unwrapping an
// SNS notification envelope first when the queue is topic-subscribed.
func decodeBlockEvent(body string) (outbound.BlockEvent, error) {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var event outbound.BlockEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return outbound.BlockEvent{}, fmt.Errorf("parsing block event: %w", err)
	}
	if event.BlockNumber <= 0 {
		return outbound.BlockEvent{}, fmt.Errorf("block event without block number")
	}
	return event, nil
}

// DeleteMessage removes a successfully processed message from the queue.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Close closes the consumer (no-op for SQS, but satisfies the interface).
func (c *Consumer) Close() error {
	return nil
}
