// Package s3 archives per-block price snapshots to AWS S3.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/citrus-finance/citrus-oracle/internal/domain/entity"
	"github.com/citrus-finance/citrus-oracle/internal/pkg/partition"
	"github.com/citrus-finance/citrus-oracle/internal/ports/outbound"
)

// s3API defines the subset of S3 operations needed by the ArchiveWriter.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile-time check that ArchiveWriter implements outbound.SnapshotArchive
var _ outbound.SnapshotArchive = (*ArchiveWriter)(nil)

// archivedPrice is the JSON shape of one asset price inside an archive object.
type archivedPrice struct {
	Asset      string `json:"asset"`
	Price      string `json:"price"`
	ResolvedAt string `json:"resolvedAt"`
}

// archiveObject is the JSON document stored per block.
type archiveObject struct {
	BlockNumber int64           `json:"blockNumber"`
	Prices      []archivedPrice `json:"prices"`
}

// Config holds configuration for the snapshot archive.
type Config struct {
	// Bucket is the S3 bucket archives are written to.
	Bucket string
	// KeyPrefix is prepended to every archive key.
	KeyPrefix string
}

// ArchiveWriter writes one gzip-compressed JSON object per block, keyed by
// a block-range partition so listing a range stays cheap:
//
//	{prefix}/snapshots/{partition}/{blockNumber}.json.gz
type ArchiveWriter struct {
	client s3API
	config Config
	logger *slog.Logger
}

// NewArchiveWriter creates a new S3 archive writer with the given AWS config.
func NewArchiveWriter(cfg aws.Config, archiveConfig Config, logger *slog.Logger) (*ArchiveWriter, error) {
	return NewArchiveWriterWithOptions(cfg, archiveConfig, logger)
}

// NewArchiveWriterWithOptions creates a new S3 archive writer with optional S3
// client options, used by tests to point at a local endpoint.
func NewArchiveWriterWithOptions(cfg aws.Config, archiveConfig Config, logger *slog.Logger, optFns ...func(*s3.Options)) (*ArchiveWriter, error) {
	if archiveConfig.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveWriter{
		client: s3.NewFromConfig(cfg, optFns...),
		config: archiveConfig,
		logger: logger.With("component", "s3-archive"),
	}, nil
}

// newArchiveWriterWithClient is used by tests to inject a mock client.
func newArchiveWriterWithClient(client s3API, archiveConfig Config, logger *slog.Logger) *ArchiveWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveWriter{
		client: client,
		config: archiveConfig,
		logger: logger.With("component", "s3-archive"),
	}
}

func (w *ArchiveWriter) key(blockNumber int64) string {
	return fmt.Sprintf("%s/snapshots/%s/%d.json.gz",
		w.config.KeyPrefix, partition.ForBlock(blockNumber), blockNumber)
}

// ArchiveBlock writes the block's snapshots if no archive exists for the
// block yet. A conditional put keeps re-delivered blocks from rewriting
// history; the first write wins and later attempts return false.
func (w *ArchiveWriter) ArchiveBlock(ctx context.Context, blockNumber int64, snapshots []*entity.PriceSnapshot) (bool, error) {
	obj := archiveObject{
		BlockNumber: blockNumber,
		Prices:      make([]archivedPrice, 0, len(snapshots)),
	}
	for _, s := range snapshots {
		obj.Prices = append(obj.Prices, archivedPrice{
			Asset:      s.Asset.Hex(),
			Price:      s.Price.String(),
			ResolvedAt: s.ResolvedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return false, fmt.Errorf("failed to marshal archive object: %w", err)
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	if _, err := gzWriter.Write(data); err != nil {
		return false, fmt.Errorf("failed to compress archive object: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return false, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	key := w.key(blockNumber)
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(w.config.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		IfNoneMatch:     aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "412") {
			return false, nil
		}
		return false, fmt.Errorf("failed to write archive to S3: %w", err)
	}

	w.logger.Debug("archived block snapshots",
		"bucket", w.config.Bucket, "key", key, "prices", len(snapshots))
	return true, nil
}
