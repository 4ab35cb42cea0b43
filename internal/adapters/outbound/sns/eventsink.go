// Package sns implements the EventSink interface using AWS SNS.
//
// This adapter publishes configuration change events to a single SNS topic.
// Downstream consumers filter on the eventType and subject message
// attributes rather than subscribing to per-type topics, because routing,
// feed and role changes are low-volume and almost always consumed together.
//
// Message Attributes:
//   - eventType: "source_change", "default_source_change", "feed_change" or "role_change"
//   - subject: the asset address in hex, or the role name for role changes
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// TopicARN is the ARN of the SNS topic all change events are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Set to 0 to disable retries.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// EventSink publishes configuration change events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	// Apply defaults for unset values
	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes a configuration change event to SNS.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("event sink is closed")
	}
	s.mu.RUnlock()

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	attributes := map[string]types.MessageAttributeValue{
		"eventType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.EventType())),
		},
		"subject": {
			DataType:    aws.String("String"),
			StringValue: aws.String(event.Subject()),
		},
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(messageBytes)),
		MessageAttributes: attributes,
	}

	return s.publishWithRetry(ctx, input, event)
}

// publishWithRetry attempts to publish with exponential backoff on transient failures.
func (s *EventSink) publishWithRetry(ctx context.Context, input *sns.PublishInput, event outbound.Event) error {
	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("publish failed, retrying",
				"attempt", attempt,
				"maxRetries", s.config.MaxRetries,
				"backoff", backoff,
				"error", lastErr,
				"eventType", event.EventType(),
				"subject", event.Subject(),
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
		}

		_, err := s.client.Publish(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return fmt.Errorf("failed to publish to SNS: %w", err)
		}
	}

	s.logger.Error("publish failed after all retries",
		"maxRetries", s.config.MaxRetries,
		"error", lastErr,
		"eventType", event.EventType(),
		"subject", event.Subject(),
	)

	return fmt.Errorf("failed to publish to SNS after %d retries: %w", s.config.MaxRetries, lastErr)
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}

	var internalErr *types.InternalErrorException
	if errors.As(err, &internalErr) {
		return true
	}

	// KMS throttling (if topic uses KMS encryption)
	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Default to retrying on unknown errors (network issues, etc.)
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}
