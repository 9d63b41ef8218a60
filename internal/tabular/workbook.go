package tabular

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/bukken/internal/models"
)

// headerScanLimit caps how many leading rows are scanned for the header row.
const headerScanLimit = 10

// Workbook parse strategies. The strict stage uses default options; when it
// fails, the relaxed stage re-parses with raw cell values (everything read
// as stored text, no number or date formatting applied) and accepts whatever
// that yields. Both stages are independently testable via parseWorkbookWith.
var (
	strictWorkbookOptions  = excelize.Options{}
	relaxedWorkbookOptions = excelize.Options{RawCellValue: true}
)

// parseWorkbook handles the spreadsheet-binary path with the two-stage
// strategy. If both stages fail, the error from the strict stage is
// surfaced wrapped in a ParseError.
func (p *Parser) parseWorkbook(data []byte) (*models.ParseResult, error) {
	res, err := p.parseWorkbookWith(data, strictWorkbookOptions)
	if err == nil {
		return res, nil
	}
	res, fbErr := p.parseWorkbookWith(data, relaxedWorkbookOptions)
	if fbErr != nil {
		return nil, &ParseError{Cause: err}
	}
	return res, nil
}

// parseWorkbookWith parses the first sheet of the workbook using the given
// excelize options.
func (p *Parser) parseWorkbookWith(data []byte, opts excelize.Options) (*models.ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return emptyResult(), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return emptyResult(), nil
	}

	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		return emptyResult(), nil
	}
	headers := p.validHeaders(rows[headerIdx])
	if len(headers) == 0 {
		return emptyResult(), nil
	}

	records := make([]models.Record, 0, len(rows)-headerIdx-1)
	for _, row := range rows[headerIdx+1:] {
		if rowEmpty(row) {
			continue
		}
		rec := models.Record{}
		empty := 0
		for _, col := range headers {
			var v string
			if col.Index < len(row) {
				v = strings.TrimSpace(row[col.Index])
			}
			if v == "" {
				empty++
				continue
			}
			rec[col.Name] = coerceValue(stripQuotes(v))
		}
		// Sparse spreadsheets are expected; a row survives unless strictly
		// more than half of its mapped fields are empty.
		if empty*2 > len(headers) {
			continue
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}

	return buildResult(records, headers), nil
}

// findHeaderRow scans up to the first headerScanLimit rows and returns the
// index of the first row containing at least one non-empty cell, or -1.
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		if !rowEmpty(rows[i]) {
			return i
		}
	}
	return -1
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
