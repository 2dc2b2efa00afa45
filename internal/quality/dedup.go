package quality

import (
	"sort"
	"strings"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// keySep joins key parts; it cannot appear in a CSV cell that survived CleanCell.
const keySep = "\x1f"

// dedupExact collapses rows identical on every carried column to the first
// occurrence. PII columns are not compared because they are never carried.
func dedupExact(rows []row) ([]row, int) {
	if len(rows) == 0 {
		return rows, 0
	}

	positions := carriedPositions(rows[0].idx)
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]

	for _, r := range rows {
		parts := make([]string, len(positions))
		for i, pos := range positions {
			if pos < len(r.cells) {
				parts[i] = r.cells[pos]
			}
		}
		k := strings.Join(parts, keySep)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// dedupByKey collapses rows sharing the natural key to the first occurrence.
// Rows with an empty key part are kept; the validity filter decides their fate.
func dedupByKey(rows []row, key []string) ([]row, int) {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]

	for _, r := range rows {
		k, ok := naturalKey(r, key)
		if !ok {
			out = append(out, r)
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

func naturalKey(r row, key []string) (string, bool) {
	parts := make([]string, len(key))
	for i, col := range key {
		v := r.get(col)
		if v == "" {
			return "", false
		}
		parts[i] = v
	}
	return strings.Join(parts, keySep), true
}

// carriedPositions returns the sorted positions of every non-PII column.
func carriedPositions(idx core.HeaderIndex) []int {
	pii := core.PIIColumns()
	var positions []int
	for col, pos := range idx {
		if !pii[col] {
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)
	return positions
}
