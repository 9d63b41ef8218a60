package tabular

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when the format hint is neither
// delimited-text nor a spreadsheet binary. Fatal, no retry.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrPayloadTooLarge is returned when the input exceeds the size ceiling.
var ErrPayloadTooLarge = errors.New("payload too large")

// ParseError reports a malformed workbook that failed both the strict parse
// and the relaxed fallback. Cause is the error from the first (strict) stage.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("workbook parse failed: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }
