package quality

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// maxAge bounds a plausible customer age; larger values are treated as unknown.
const maxAge = 150

// outcome records what reconcile did to one row.
type outcome struct {
	itemIDParsed     bool
	customerIDParsed bool
	quantityParsed   bool
	priceParsed      bool
	priceNegative    bool
	lineTotalFixed   bool
	totalFixed       bool
}

// reconcile parses r into a Record and repairs its financial fields:
//
//	line_total = round(quantity * unit_price, 2)
//	total      = round(line_total - discount_amount, 2)
//
// The unit price is kept exact; only the amounts derived from it are
// rounded. A stored value is kept (rounded to cents) when it lies within
// the tolerance of the recomputed one, and replaced otherwise. A missing
// discount counts as zero. Rows whose quantity or price cannot be parsed
// are left unreconciled for the filter to drop.
func (e *Engine) reconcile(r row) (Record, outcome) {
	var out outcome

	rec := Record{
		OrderID:       r.get(core.ColOrderID),
		Status:        r.get(core.ColStatus),
		SKU:           r.get(core.ColSKU),
		Category:      r.get(core.ColCategory),
		PaymentMethod: r.get(core.ColPaymentMethod),
		FirstName:     r.get(core.ColFirstName),
		LastName:      r.get(core.ColLastName),
		Email:         r.get(core.ColEmail),
		Gender:        r.get(core.ColGender),
		Phone:         r.get(core.ColPhone),
		PlaceName:     r.get(core.ColPlaceName),
		County:        r.get(core.ColCounty),
		City:          r.get(core.ColCity),
		State:         r.get(core.ColState),
		Zip:           r.get(core.ColZip),
		Region:        r.get(core.ColRegion),
		SourceLine:    r.line,
	}

	year := e.rules.ReferenceYear
	rec.ItemID, out.itemIDParsed = core.ParseInt(r.get(core.ColItemID))
	rec.CustomerID, out.customerIDParsed = core.ParseInt(r.get(core.ColCustomerID))
	rec.OrderDate, _ = core.ParseDate(r.get(core.ColOrderDate), year)
	rec.CustomerSince, _ = core.ParseDate(r.get(core.ColCustomerSince), year)
	if age, ok := core.ParseInt(r.get(core.ColAge)); ok && age > 0 && age <= maxAge {
		rec.Age = int(age)
	}

	rec.Quantity, out.quantityParsed = core.ParseInt(r.get(core.ColQuantity))
	price, ok := core.ParseDecimal(r.get(core.ColPrice))
	out.priceParsed = ok
	out.priceNegative = price.IsNegative()
	rec.UnitPrice = price

	if discount, ok := core.ParseDecimal(r.get(core.ColDiscount)); ok {
		rec.DiscountAmount = discount.Round(2)
	}

	if !out.quantityParsed || !out.priceParsed {
		return rec, out
	}

	expectedLine := decimal.NewFromInt(rec.Quantity).Mul(rec.UnitPrice).Round(2)
	rec.LineTotal, out.lineTotalFixed = e.settle(r.get(core.ColValue), expectedLine)

	expectedTotal := rec.LineTotal.Sub(rec.DiscountAmount).Round(2)
	rec.Total, out.totalFixed = e.settle(r.get(core.ColTotal), expectedTotal)

	return rec, out
}

// settle returns the stored value when it parses and lies within tolerance
// of expected, otherwise expected. The bool reports a replacement.
func (e *Engine) settle(stored string, expected decimal.Decimal) (decimal.Decimal, bool) {
	v, ok := core.ParseDecimal(stored)
	if !ok || v.Sub(expected).Abs().GreaterThan(e.rules.Tolerance) {
		return expected, true
	}
	return v.Round(2), false
}
