package index

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/bukken/internal/models"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reopened and reused so re-uploads update documents in place.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): unit names like
	// "A-101" and phases like "Phase 2" should match their literal words.
	im.DefaultAnalyzer = standard.Name

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexUnits indexes merged records in one batch, keyed by natural key.
func (b *BleveIndex) IndexUnits(ctx context.Context, units []models.Record, fields map[string]*models.FieldDescriptor, keyField string) error {
	batch := b.index.NewBatch()
	for _, unit := range units {
		key := keyValue(unit, keyField)
		if key == "" {
			continue
		}
		doc := buildDoc(unit, fields)
		if err := batch.Index(key, doc); err != nil {
			return fmt.Errorf("failed to batch unit %q: %w", key, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index units: %w", err)
	}
	return nil
}

// buildDoc converts a record into the indexed document. Numeric fields index
// as numbers; string fields whose values are currency-formatted numbers get
// a synthesized sortable numeric variant alongside the original text.
func buildDoc(unit models.Record, fields map[string]*models.FieldDescriptor) map[string]interface{} {
	doc := make(map[string]interface{}, len(unit))
	for field, v := range unit {
		doc[field] = v
		s, isStr := v.(string)
		if !isStr {
			continue
		}
		if fd, ok := fields[field]; ok && fd.Type == models.FieldNumber {
			// Parser-coerced columns can still carry stray string values
			// (e.g. after merge concatenation); index what parses.
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				doc[field] = f
			}
			continue
		}
		if f, ok := DeriveNumeric(s); ok {
			doc[numericVariant(field)] = f
		}
	}
	return doc
}

// numericVariant names the synthesized numeric field derived from a
// currency-formatted string field.
func numericVariant(field string) string {
	return field + " (numeric)"
}

// currencyNumberPattern accepts a number with optional thousands separators
// and an optional currency marker: a symbol, or a short letter code set off
// by a space ("EGP 1,200,000", "$1,200.50", "1200 EGP"). Codes glued to the
// number (unit names like "A-101") do not match.
var currencyNumberPattern = regexp.MustCompile(`^(?:\p{Sc}|[A-Za-z]{1,3} )?\s*(-?\d[\d,]*(?:\.\d+)?)\s*(?: [A-Za-z]{1,3}|\p{Sc})?$`)

// DeriveNumeric strips a currency marker and thousands separators from a
// string and returns the remaining number, if any.
func DeriveNumeric(s string) (float64, bool) {
	m := currencyNumberPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Search runs a match query with optional per-field filters and term facets.
func (b *BleveIndex) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var queries []blevequery.Query
	if q.Query != "" {
		queries = append(queries, bleve.NewMatchQuery(q.Query))
	}
	for field, value := range q.Filters {
		// Numeric filter values match the stored number exactly; match
		// queries only work against analyzed text.
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			nq := bleve.NewNumericRangeInclusiveQuery(&f, &f, boolPtr(true), boolPtr(true))
			nq.SetField(field)
			queries = append(queries, nq)
			continue
		}
		mq := bleve.NewMatchQuery(value)
		mq.SetField(field)
		queries = append(queries, mq)
	}
	var query blevequery.Query
	if len(queries) == 1 {
		query = queries[0]
	} else {
		query = bleve.NewConjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequestOptions(query, q.Limit, q.Offset, false)
	req.Fields = []string{"*"}
	for _, field := range q.Facets {
		req.AddFacet(field, bleve.NewFacetRequest(field, 10))
	}

	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	resp := &models.SearchResponse{
		Hits:   make([]*models.SearchHit, 0, len(results.Hits)),
		Total:  results.Total,
		TookMS: time.Since(start).Milliseconds(),
	}
	for _, hit := range results.Hits {
		unit := models.Record{}
		for k, v := range hit.Fields {
			unit[k] = v
		}
		resp.Hits = append(resp.Hits, &models.SearchHit{Key: hit.ID, Score: hit.Score, Unit: unit})
	}
	if len(results.Facets) > 0 {
		resp.Facets = make(map[string]map[string]int, len(results.Facets))
		for name, facet := range results.Facets {
			terms := make(map[string]int)
			for _, term := range facet.Terms.Terms() {
				terms[term.Term] = term.Count
			}
			resp.Facets[name] = terms
		}
	}
	return resp, nil
}

// Delete removes a unit document by its natural key.
func (b *BleveIndex) Delete(ctx context.Context, key string) error {
	return b.index.Delete(key)
}

// DocCount returns the number of indexed units.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func boolPtr(b bool) *bool { return &b }

func keyValue(rec models.Record, keyField string) string {
	switch v := rec[keyField].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
