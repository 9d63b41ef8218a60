// Package store defines the row-store interface for merged property units
// and the upload history.
package store

import (
	"context"

	"github.com/hyperjump/bukken/internal/models"
)

// Store persists merged unit records in a tabular row store. Columns are
// provisioned dynamically: the column set is discovered per upload from the
// parser's field descriptors.
type Store interface {
	// EnsureColumns provisions one column per field descriptor, issuing DDL
	// for columns not seen before. Safe to call repeatedly.
	EnsureColumns(ctx context.Context, fields []*models.FieldDescriptor) error

	// UpsertUnits writes merged records keyed by the natural-key field.
	UpsertUnits(ctx context.Context, keyField string, units []models.Record) error

	// GetUnit returns the stored record for a natural key.
	GetUnit(ctx context.Context, key string) (models.Record, error)

	// ListUnits returns stored records with offset and limit, most recently
	// updated first.
	ListUnits(ctx context.Context, offset, limit int) ([]models.Record, error)

	// CountUnits returns the total number of stored units.
	CountUnits(ctx context.Context) (int64, error)

	// Upload history
	RecordUpload(ctx context.Context, up *models.Upload) error
	ListUploads(ctx context.Context, offset, limit int) ([]*models.Upload, error)

	Close() error
}
