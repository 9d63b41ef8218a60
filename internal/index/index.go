// Package index provides the search-index sink for merged unit records.
package index

import (
	"context"

	"github.com/hyperjump/bukken/internal/models"
)

// Index is the search index over merged unit records.
type Index interface {
	// IndexUnits indexes merged records, one document per natural key.
	// Field descriptors drive per-field treatment (text vs numeric) and
	// numeric derivation from currency-formatted strings.
	IndexUnits(ctx context.Context, units []models.Record, fields map[string]*models.FieldDescriptor, keyField string) error

	// Search runs a full-text/faceted query.
	Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)

	// Delete removes a unit document by its natural key.
	Delete(ctx context.Context, key string) error

	// DocCount returns the number of indexed units.
	DocCount() (uint64, error)

	Close() error
}
