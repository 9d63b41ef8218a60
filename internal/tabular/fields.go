package tabular

import (
	"strconv"
	"strings"

	"github.com/hyperjump/bukken/internal/models"
)

// buildResult assembles the final parse result: records in input order, the
// ordered valid field list, and one descriptor per field.
func buildResult(records []models.Record, headers []headerColumn) *models.ParseResult {
	fields := make([]string, len(headers))
	for i, col := range headers {
		fields[i] = col.Name
	}
	info := make(map[string]*models.FieldDescriptor, len(fields))
	for _, name := range fields {
		info[name] = describeField(name, records)
	}
	return &models.ParseResult{Records: records, Fields: fields, FieldInfo: info}
}

// describeField infers a column's type from the first record carrying a
// non-empty value for it. A value is numeric when its entire trimmed string
// form parses as a finite number; the example is then normalized to the
// numeric value. Columns with no populated value default to string.
func describeField(name string, records []models.Record) *models.FieldDescriptor {
	desc := &models.FieldDescriptor{
		Name:  name,
		Type:  models.FieldString,
		Label: fieldLabel(name),
	}
	for _, rec := range records {
		v, ok := rec[name]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			desc.Type = models.FieldNumber
			desc.Example = val
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				desc.Type = models.FieldNumber
				desc.Example = f
			} else {
				desc.Example = val
			}
		default:
			desc.Example = v
		}
		return desc
	}
	return desc
}

// fieldLabel returns the display label for a header: generated placeholder
// names get word-boundary title casing, everything else is the raw name.
func fieldLabel(name string) string {
	if !placeholderPattern.MatchString(name) {
		return name
	}
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
