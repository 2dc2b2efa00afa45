package core

// validation.go checks a header row against the source column contract.

import (
	"fmt"
	"strings"
)

// ValidateHeaders checks that all required columns are present in the header.
// Returns the header index on success, or an error listing missing columns.
func ValidateHeaders(headers []string, specs []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, spec := range specs {
		if spec.Required {
			if _, ok := idx[headerKey(spec.Name)]; !ok {
				missing = append(missing, spec.Name)
			}
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	return idx, nil
}

// MissingColumns returns the keys in cols that idx does not contain.
func MissingColumns(idx HeaderIndex, cols []string) []string {
	var missing []string
	for _, col := range cols {
		if _, ok := idx[headerKey(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// PIIColumns returns the header keys of columns never carried past the reader.
func PIIColumns() map[string]bool {
	out := make(map[string]bool)
	for _, spec := range SourceColumns {
		if spec.PII {
			out[headerKey(spec.Name)] = true
		}
	}
	return out
}
