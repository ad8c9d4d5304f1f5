// Package depmatch filters datasets by administrative department code.
package depmatch

import (
	"fmt"
	"strings"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

// Filter returns the rows whose department codes intersect the target set,
// each tagged with the first matching code, plus the count of surviving
// rows per matched code. Row order is preserved (stable filter). Rows with
// an absent, null, or empty department field are excluded: a missing value
// never matches.
func Filter(ds extract.Dataset, departments []string) (extract.Dataset, map[string]int) {
	targets := make(map[string]struct{}, len(departments))
	for _, d := range departments {
		targets[d] = struct{}{}
	}

	columns := make([]string, 0, len(ds.Columns)+1)
	columns = append(columns, ds.Columns...)
	columns = append(columns, extract.ColumnMatchedDepartment)

	filtered := extract.Dataset{Columns: columns, Rows: make([]extract.Row, 0)}
	distribution := make(map[string]int)

	for _, row := range ds.Rows {
		matched, ok := matchRow(row, targets)
		if !ok {
			continue
		}
		tagged := make(extract.Row, len(row)+1)
		for k, v := range row {
			tagged[k] = v
		}
		tagged[extract.ColumnMatchedDepartment] = matched
		filtered.Rows = append(filtered.Rows, tagged)
		distribution[matched]++
	}
	return filtered, distribution
}

// matchRow scans the row's decoded department tokens in order; the first
// token present in the target set wins.
func matchRow(row extract.Row, targets map[string]struct{}) (string, bool) {
	tokens := DecodeTokens(row[extract.FieldDepartmentCode])
	for _, tok := range tokens {
		if _, ok := targets[tok]; ok {
			return tok, true
		}
	}
	return "", false
}

// DecodeTokens resolves the three serialization shapes the catalog uses for
// department codes into a flat token list: an actual list, a single scalar,
// or a text string carrying a serialized list (brackets and quotes stripped,
// comma-separated). Empty tokens are discarded; a malformed value decodes
// to no tokens rather than an error.
func DecodeTokens(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		tokens := make([]string, 0, len(val))
		for _, item := range val {
			if tok := scalarToken(item); tok != "" {
				tokens = append(tokens, tok)
			}
		}
		return tokens
	case string:
		return splitEncodedList(val)
	default:
		if tok := scalarToken(val); tok != "" {
			return []string{tok}
		}
		return nil
	}
}

func splitEncodedList(s string) []string {
	cleaned := strings.Trim(s, "[]")
	cleaned = strings.NewReplacer(`"`, "", "'", "").Replace(cleaned)
	if cleaned == "" {
		return nil
	}
	parts := strings.Split(cleaned, ",")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if tok := strings.TrimSpace(p); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func scalarToken(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	// JSON numbers decode as float64; %v renders integral codes without
	// a fractional part.
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
