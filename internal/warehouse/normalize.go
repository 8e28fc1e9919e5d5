package warehouse

import (
	"strings"
	"time"
)

// canonicalDateFormat is what every recognized date column is rewritten to
// before loading, whatever precision or separator the source used.
const canonicalDateFormat = "2006-01-02 15:04:05"

// sourceDateLayouts covers the timestamp shapes the ERP emits. Order matters
// only for speed; the first successful parse wins.
var sourceDateLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// NormalizeRecords prepares a raw batch for loading: every field name is
// lower-cased and recognized date columns are rewritten to the canonical
// format. Values that fail to parse as dates become nil instead of aborting
// the batch. The input records are not mutated.
func NormalizeRecords(records []map[string]any, dateColumns map[string]bool) []map[string]any {
	normalized := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record))
		for field, value := range record {
			name := strings.ToLower(field)
			if dateColumns[name] {
				row[name] = normalizeDate(value)
			} else {
				row[name] = value
			}
		}
		normalized = append(normalized, row)
	}
	return normalized
}

// normalizeDate coerces a source value to the canonical timestamp string, or
// nil when the value is absent or unparsable.
func normalizeDate(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(canonicalDateFormat)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		for _, layout := range sourceDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(canonicalDateFormat)
			}
		}
		return nil
	default:
		return nil
	}
}

// DateColumnSet builds the lookup used by NormalizeRecords from a configured
// column list.
func DateColumnSet(columns []string) map[string]bool {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[strings.ToLower(c)] = true
	}
	return set
}
