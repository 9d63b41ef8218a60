package tabular

import (
	"strings"

	"github.com/hyperjump/bukken/internal/models"
)

// delimiterCandidates in sniffing order; comma wins ties by being first.
var delimiterCandidates = []string{",", ";", "\t", "|"}

// sniffDelimiter picks the candidate that splits the header line into the
// most fields. Ties are broken by candidate order.
func sniffDelimiter(headerLine string) string {
	best := delimiterCandidates[0]
	bestCount := len(strings.Split(headerLine, best))
	for _, cand := range delimiterCandidates[1:] {
		if n := len(strings.Split(headerLine, cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

// parseDelimited handles the delimited-text path. Splitting is naive: it is
// not quote-aware, so a quoted cell containing the active delimiter splits
// incorrectly. Only a single layer of surrounding quotes is stripped after
// the split. This matches long-standing behavior and is pinned by tests.
func (p *Parser) parseDelimited(data []byte) *models.ParseResult {
	text := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	if text == "" {
		return emptyResult()
	}
	lines := strings.Split(text, "\n")

	delim := sniffDelimiter(lines[0])
	headers := p.validHeaders(strings.Split(lines[0], delim))
	if len(headers) == 0 {
		return emptyResult()
	}

	records := make([]models.Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, delim)
		rec := models.Record{}
		for _, col := range headers {
			if col.Index >= len(cells) {
				continue
			}
			v := stripQuotes(strings.TrimSpace(cells[col.Index]))
			if v == "" {
				continue
			}
			rec[col.Name] = coerceValue(v)
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	return buildResult(records, headers)
}
