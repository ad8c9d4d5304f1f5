// Package normalize flattens catalog records into tabular rows.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

// Flatten maps records to a dataset with a consistent column set. Nested
// sequences and mappings become their JSON text form, nulls become empty
// strings, and scalars pass through unchanged. It is total: no record is
// dropped and no value aborts the pass.
//
// Columns are the union of record keys. Map iteration order is random, so
// keys are sorted within each record before merging; the resulting column
// order is deterministic for a given record sequence.
func Flatten(records []extract.Record) extract.Dataset {
	columns := make([]string, 0)
	seen := make(map[string]struct{})
	rows := make([]extract.Row, 0, len(records))

	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := make(extract.Row, len(rec))
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
			row[k] = flattenValue(rec[k])
		}
		rows = append(rows, row)
	}
	return extract.Dataset{Columns: columns, Rows: rows}
}

func flattenValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case map[string]any, []any:
		return jsonText(val)
	default:
		return val
	}
}

// jsonText serializes a nested structure as readable text. HTML escaping is
// disabled so French punctuation and angle brackets round-trip as written.
func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
