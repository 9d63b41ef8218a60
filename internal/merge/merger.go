// Package merge folds normalized records that describe the same property
// unit (rows split across phases or installments) into one record per
// natural key. Deterministic, no I/O.
package merge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/bukken/internal/models"
)

// DefaultKeyField is the natural-key column used when none is configured.
const DefaultKeyField = "Unit Name"

// droppedSampleLimit caps how many dropped row indices are reported back.
const droppedSampleLimit = 5

// summableFields are the monetary/area columns whose numeric values are
// added together during a merge. Numeric fields outside this set keep the
// first value seen. Matched case-insensitively.
var summableFields = map[string]struct{}{
	"unit price":        {},
	"finishing price":   {},
	"total price":       {},
	"plot area":         {},
	"gross area":        {},
	"land area":         {},
	"garden area":       {},
	"sellable area":     {},
	"maintenance fee":   {},
	"maintenance value": {},
	"amenities fee":     {},
	"parking price":     {},
}

// Stats reports what the merge did, including rows dropped for lacking the
// natural key. Dropped rows are excluded from the output rather than failing
// the batch; callers surface the count instead of losing it silently.
type Stats struct {
	InputRows   int   `json:"input_rows"`
	Units       int   `json:"units"`
	Dropped     int   `json:"dropped"`
	DroppedRows []int `json:"dropped_rows,omitempty"` // input indices, capped sample
}

// Merger groups records by a natural-key field and folds duplicates.
type Merger struct {
	keyField string
}

// NewMerger creates a merger keyed on keyField; empty means DefaultKeyField.
func NewMerger(keyField string) *Merger {
	if keyField == "" {
		keyField = DefaultKeyField
	}
	return &Merger{keyField: keyField}
}

// KeyField returns the configured natural-key field name.
func (m *Merger) KeyField() string { return m.keyField }

// Merge folds records sharing the same natural-key value into one record
// per key. The fold is order-stable: output key order follows first
// appearance in the input, and within a group records fold left-to-right in
// input order. Records with a missing or empty key are dropped and counted.
func (m *Merger) Merge(records []models.Record) ([]models.Record, Stats) {
	stats := Stats{InputRows: len(records)}
	merged := make(map[string]models.Record)
	order := make([]string, 0, len(records))

	for i, rec := range records {
		key := recordKey(rec, m.keyField)
		if key == "" {
			stats.Dropped++
			if len(stats.DroppedRows) < droppedSampleLimit {
				stats.DroppedRows = append(stats.DroppedRows, i)
			}
			continue
		}
		acc, ok := merged[key]
		if !ok {
			merged[key] = rec.Clone()
			order = append(order, key)
			continue
		}
		foldInto(acc, rec)
	}

	out := make([]models.Record, len(order))
	for i, key := range order {
		out[i] = merged[key]
	}
	stats.Units = len(out)
	return out, stats
}

// recordKey returns the record's natural-key value as a trimmed string, or
// "" when the field is absent or empty.
func recordKey(rec models.Record, field string) string {
	v, ok := rec[field]
	if !ok {
		return ""
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s)
	}
	// Numeric keys are legal (e.g. purely numeric unit codes).
	return formatKeyValue(v)
}

// formatKeyValue renders a non-string key value without a float exponent or
// trailing zeros, so unit code 101 groups as "101".
func formatKeyValue(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// foldInto merges one incoming record into the accumulator, field by field:
// absent fields are adopted; numeric pairs sum when the field is summable
// and otherwise keep the first value; differing strings concatenate in fold
// order; anything else keeps the accumulator's value.
func foldInto(acc, incoming models.Record) {
	for field, inVal := range incoming {
		cur, ok := acc[field]
		if !ok {
			acc[field] = inVal
			continue
		}
		curNum, curIsNum := cur.(float64)
		inNum, inIsNum := inVal.(float64)
		if curIsNum && inIsNum {
			if isSummable(field) {
				acc[field] = curNum + inNum
			}
			continue
		}
		curStr, curIsStr := cur.(string)
		inStr, inIsStr := inVal.(string)
		if curIsStr && inIsStr && curStr != inStr {
			acc[field] = curStr + ", " + inStr
		}
		// Identical or mixed-type values: accumulator wins.
	}
}

func isSummable(field string) bool {
	_, ok := summableFields[strings.ToLower(strings.TrimSpace(field))]
	return ok
}
