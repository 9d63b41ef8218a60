// Package models defines core data structures for records, uploads, and search.
package models

import "time"

// Record is one normalized property unit: a flat mapping from column name to
// a scalar value. Values are either string or float64; absent fields are
// simply missing keys. The column set is discovered per upload, so records
// are dynamic bags rather than fixed structs.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldType is the inferred type of a column.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// FieldDescriptor holds inferred metadata for one column, built once per
// column by scanning records until the first non-empty value.
type FieldDescriptor struct {
	Name    string      `json:"name"`
	Type    FieldType   `json:"type"`
	Label   string      `json:"label"`
	Example interface{} `json:"example,omitempty"`
}

// ParseResult is the output of the tabular parser: normalized records in
// input order, the ordered list of valid field names, and per-field
// descriptors keyed by field name.
type ParseResult struct {
	Records   []Record                    `json:"records"`
	Fields    []string                    `json:"fields"`
	FieldInfo map[string]*FieldDescriptor `json:"field_info"`
}

// Upload records one ingest run for the upload history.
type Upload struct {
	ID           string    `json:"id" db:"id"`
	Filename     string    `json:"filename" db:"filename"`
	SizeBytes    int64     `json:"size_bytes" db:"size_bytes"`
	ParsedRows   int       `json:"parsed_rows" db:"parsed_rows"`
	Units        int       `json:"units" db:"units"`
	DroppedNoKey int       `json:"dropped_no_key" db:"dropped_no_key"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// UploadResult is returned to the caller after a successful ingest.
type UploadResult struct {
	UploadID     string             `json:"upload_id"`
	Filename     string             `json:"filename"`
	SizeBytes    int64              `json:"size_bytes"`
	ParsedRows   int                `json:"parsed_rows"`
	Units        int                `json:"units"`
	DroppedNoKey int                `json:"dropped_no_key"`
	Fields       []*FieldDescriptor `json:"fields"`
}
