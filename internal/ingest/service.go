// Package ingest orchestrates one upload end to end: archive the raw bytes,
// parse, merge by natural key, then feed the row store and the search index.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bukken/internal/bucket"
	"github.com/hyperjump/bukken/internal/index"
	"github.com/hyperjump/bukken/internal/merge"
	"github.com/hyperjump/bukken/internal/models"
	"github.com/hyperjump/bukken/internal/store"
	"github.com/hyperjump/bukken/internal/tabular"
)

// Service wires the parser, merger, and sinks into the ingest pipeline.
type Service struct {
	parser *tabular.Parser
	merger *merge.Merger
	store  store.Store
	index  index.Index
	bucket *bucket.Bucket
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for ingest progress output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBucket sets a raw-payload archive. Without one, uploads are parsed but
// the original bytes are not kept.
func WithBucket(b *bucket.Bucket) Option {
	return func(s *Service) { s.bucket = b }
}

// NewService creates the ingest pipeline over the given parser, merger, and
// sinks.
func NewService(parser *tabular.Parser, merger *merge.Merger, st store.Store, idx index.Index, opts ...Option) *Service {
	s := &Service{
		parser: parser,
		merger: merger,
		store:  st,
		index:  idx,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest runs one upload through the pipeline and returns what it produced.
// Parse errors (unsupported format, oversized payload, corrupt workbook)
// come back unwrapped so callers can map them to responses; sink failures
// are wrapped with context.
func (s *Service) Ingest(ctx context.Context, filename string, data []byte) (*models.UploadResult, error) {
	result, err := s.parser.Parse(data, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}

	uploadID := uuid.NewString()
	if s.bucket != nil {
		if _, err := s.bucket.Put(uploadID, filename, data); err != nil {
			return nil, fmt.Errorf("failed to archive upload %s: %w", uploadID, err)
		}
	}

	units, stats := s.merger.Merge(result.Records)
	s.logger.Info("upload parsed",
		zap.String("upload_id", uploadID),
		zap.String("filename", filename),
		zap.Int("rows", stats.InputRows),
		zap.Int("units", stats.Units),
		zap.Int("dropped_no_key", stats.Dropped))
	if stats.Dropped > 0 {
		s.logger.Warn("rows dropped for missing natural key",
			zap.String("upload_id", uploadID),
			zap.Int("dropped", stats.Dropped),
			zap.Ints("sample_rows", stats.DroppedRows))
	}

	fields := orderedFields(result)
	if len(units) > 0 {
		if err := s.store.EnsureColumns(ctx, fields); err != nil {
			return nil, fmt.Errorf("failed to provision columns: %w", err)
		}
		// Store and index writes are independent; run them concurrently.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := s.store.UpsertUnits(gctx, s.merger.KeyField(), units); err != nil {
				return fmt.Errorf("failed to store units: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			if err := s.index.IndexUnits(gctx, units, result.FieldInfo, s.merger.KeyField()); err != nil {
				return fmt.Errorf("failed to index units: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	up := &models.Upload{
		ID:           uploadID,
		Filename:     filename,
		SizeBytes:    int64(len(data)),
		ParsedRows:   stats.InputRows,
		Units:        stats.Units,
		DroppedNoKey: stats.Dropped,
	}
	if err := s.store.RecordUpload(ctx, up); err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	return &models.UploadResult{
		UploadID:     uploadID,
		Filename:     filename,
		SizeBytes:    up.SizeBytes,
		ParsedRows:   stats.InputRows,
		Units:        stats.Units,
		DroppedNoKey: stats.Dropped,
		Fields:       fields,
	}, nil
}

// IngestFile reads a file from disk and ingests it, used by the drop
// directory watcher.
func (s *Service) IngestFile(ctx context.Context, path string) (*models.UploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), data)
}

// orderedFields returns the parse result's descriptors in field order.
func orderedFields(result *models.ParseResult) []*models.FieldDescriptor {
	fields := make([]*models.FieldDescriptor, 0, len(result.Fields))
	for _, name := range result.Fields {
		if fd, ok := result.FieldInfo[name]; ok {
			fields = append(fields, fd)
		}
	}
	return fields
}
