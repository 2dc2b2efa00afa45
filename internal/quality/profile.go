package quality

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// Report describes the defects found in a raw table before cleaning.
type Report struct {
	Rows               int `json:"rows"`
	DuplicateOrderIDs  int `json:"duplicate_order_ids"`
	ExactDuplicateRows int `json:"exact_duplicate_rows"`
	LineTotalErrors    int `json:"line_total_errors"`
	TotalErrors        int `json:"total_errors"`
	MissingEmails      int `json:"missing_emails"`
	MissingFirstNames  int `json:"missing_first_names"`
}

// Profile counts raw defects in t without modifying it. Financial errors are
// differences larger than tolerance; rows with unparseable amounts are not
// counted as financial errors.
//
// DuplicateOrderIDs counts rows whose order id was already seen, so it
// includes the extra lines of legitimate multi-item orders.
func Profile(t *core.Table, tolerance decimal.Decimal) Report {
	rep := Report{Rows: t.Len()}

	orderIDs := make(map[string]struct{}, t.Len())
	exact := make(map[string]struct{}, t.Len())

	for i, cells := range t.Rows {
		id := core.CleanCell(t.Value(i, core.ColOrderID))
		if _, seen := orderIDs[id]; seen {
			rep.DuplicateOrderIDs++
		}
		orderIDs[id] = struct{}{}

		k := strings.Join(cells, keySep)
		if _, seen := exact[k]; seen {
			rep.ExactDuplicateRows++
		}
		exact[k] = struct{}{}

		qty, okQ := core.ParseDecimal(t.Value(i, core.ColQuantity))
		price, okP := core.ParseDecimal(t.Value(i, core.ColPrice))
		value, okV := core.ParseDecimal(t.Value(i, core.ColValue))
		if okQ && okP && okV && qty.Mul(price).Sub(value).Abs().GreaterThan(tolerance) {
			rep.LineTotalErrors++
		}

		discount, okD := core.ParseDecimal(t.Value(i, core.ColDiscount))
		total, okT := core.ParseDecimal(t.Value(i, core.ColTotal))
		if okV && okD && okT && value.Sub(discount).Sub(total).Abs().GreaterThan(tolerance) {
			rep.TotalErrors++
		}

		if core.IsNull(t.Value(i, core.ColEmail)) {
			rep.MissingEmails++
		}
		if core.IsNull(t.Value(i, core.ColFirstName)) {
			rep.MissingFirstNames++
		}
	}

	return rep
}
