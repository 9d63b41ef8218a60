// Package tabular converts uploaded spreadsheet bytes (CSV/XLS/XLSX) into
// normalized flat records plus inferred per-column type metadata. It is pure:
// no I/O, no shared state, safe for concurrent use across invocations.
package tabular

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/bukken/internal/models"
)

// HeaderPolicy controls how blank or auto-generated header names are handled.
// Both behaviors shipped at different times; the choice is per deployment.
type HeaderPolicy string

const (
	// HeaderExcludeBlank drops blank and placeholder headers; their column
	// indices are excluded when mapping value rows.
	HeaderExcludeBlank HeaderPolicy = "exclude"
	// HeaderAutoName keeps blank headers under a synthesized "Column N" name.
	HeaderAutoName HeaderPolicy = "autoname"
)

// DefaultMaxBytes is the ingest ceiling: inputs larger than this are rejected
// before any parsing is attempted.
const DefaultMaxBytes = 50 << 20 // 50 MiB

// Config holds parser policy knobs. Passed explicitly at construction; the
// parser performs no ambient configuration lookup.
type Config struct {
	HeaderPolicy HeaderPolicy
	MaxBytes     int64
}

// Parser normalizes tabular files into records.
type Parser struct {
	policy   HeaderPolicy
	maxBytes int64
}

// NewParser creates a parser. Zero-value config fields get defaults
// (exclude-blank headers, 50 MiB ceiling).
func NewParser(cfg Config) *Parser {
	if cfg.HeaderPolicy == "" {
		cfg.HeaderPolicy = HeaderExcludeBlank
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Parser{policy: cfg.HeaderPolicy, maxBytes: cfg.MaxBytes}
}

// Parse converts raw file bytes into normalized records. The format hint is
// the file extension with or without the leading dot, case-insensitive:
// "csv" takes the delimited-text path, "xls" and "xlsx" the workbook path.
// Any other hint returns ErrUnsupportedFormat. Inputs over the configured
// ceiling return ErrPayloadTooLarge. Empty input is not an error: it yields
// an empty result set.
func (p *Parser) Parse(data []byte, hint string) (*models.ParseResult, error) {
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	switch ext {
	case "csv", "xls", "xlsx":
	default:
		return nil, ErrUnsupportedFormat
	}
	if int64(len(data)) > p.maxBytes {
		return nil, ErrPayloadTooLarge
	}
	if ext == "csv" {
		return p.parseDelimited(data), nil
	}
	return p.parseWorkbook(data)
}

// emptyResult is the zero-row outcome: no records, no fields, no descriptors.
func emptyResult() *models.ParseResult {
	return &models.ParseResult{
		Records:   []models.Record{},
		Fields:    []string{},
		FieldInfo: map[string]*models.FieldDescriptor{},
	}
}

// headerColumn pairs a valid header name with its original column index.
// Indices are tracked independently of header positions so that skipping an
// invalid header does not shift values into the wrong columns.
type headerColumn struct {
	Name  string
	Index int
}

var placeholderPattern = regexp.MustCompile(`(?i)^column[ _]?\d+$`)

// validHeaders applies the header validity filter to raw header cells.
// Under HeaderExcludeBlank, blank and placeholder names are dropped. Under
// HeaderAutoName, blank names are synthesized as "Column N" (1-based) and
// placeholder names are kept verbatim.
func (p *Parser) validHeaders(cells []string) []headerColumn {
	cols := make([]headerColumn, 0, len(cells))
	for i, cell := range cells {
		name := stripQuotes(strings.TrimSpace(cell))
		if p.policy == HeaderAutoName {
			if name == "" {
				name = "Column " + strconv.Itoa(i+1)
			}
			cols = append(cols, headerColumn{Name: name, Index: i})
			continue
		}
		if name == "" || placeholderPattern.MatchString(name) {
			continue
		}
		cols = append(cols, headerColumn{Name: name, Index: i})
	}
	return cols
}

// stripQuotes removes a single layer of surrounding matching quotes.
// It does not make splitting quote-aware: a delimiter inside quotes has
// already split the cell by the time this runs.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// coerceValue returns a float64 when the entire trimmed string parses as a
// finite number, otherwise the string unchanged.
func coerceValue(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}
