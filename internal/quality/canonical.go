package quality

import (
	"strings"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// row is one canonicalized source row.
type row struct {
	cells []string
	idx   core.HeaderIndex
	line  int
}

func (r row) get(col string) string {
	pos, ok := r.idx[col]
	if !ok || pos >= len(r.cells) {
		return ""
	}
	return r.cells[pos]
}

// canonicalizers rewrite one column into its canonical form. Each one is
// idempotent: applying it to its own output changes nothing.
func (e *Engine) canonicalizers() map[string]func(string) string {
	title := func(s string) string { return e.title.String(strings.ToLower(s)) }

	return map[string]func(string) string{
		core.ColSKU:        strings.ToUpper,
		core.ColEmail:      strings.ToLower,
		core.ColFirstName:  title,
		core.ColLastName:   title,
		core.ColCategory:   title,
		core.ColGender:     canonicalGender,
		core.ColState:      NormalizeUsState,
		core.ColCustomerID: core.CanonicalID,
		core.ColItemID:     core.CanonicalID,
		core.ColAge:        core.CanonicalID,
		core.ColStatus:     strings.ToLower,
	}
}

// canonicalize copies every row of t with cleaned, canonical cell values.
// Null tokens become empty strings.
func (e *Engine) canonicalize(t *core.Table) []row {
	idx := t.Index()
	byPos := make(map[int]func(string) string)
	for col, fn := range e.canonicalizers() {
		if pos, ok := idx[col]; ok {
			byPos[pos] = fn
		}
	}

	rows := make([]row, t.Len())
	for i, src := range t.Rows {
		cells := make([]string, len(src))
		for j, v := range src {
			v = core.CleanCell(v)
			if core.IsNull(v) {
				continue
			}
			if fn, ok := byPos[j]; ok {
				v = fn(v)
			}
			cells[j] = v
		}
		rows[i] = row{cells: cells, idx: idx, line: t.Line(i)}
	}
	return rows
}

// canonicalGender maps male/female spellings to M/F.
func canonicalGender(s string) string {
	switch strings.ToLower(s) {
	case "m", "male":
		return "M"
	case "f", "female":
		return "F"
	default:
		return strings.ToUpper(s)
	}
}
