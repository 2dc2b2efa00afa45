package quality

import (
	"errors"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Drop reasons reported in Stats.Dropped.
const (
	ReasonMissingOrderID     = "missing_order_id"
	ReasonMissingItemID      = "missing_item_id"
	ReasonMissingCustomerID  = "missing_customer_id"
	ReasonMissingSKU         = "missing_sku"
	ReasonBadOrderDate       = "invalid_order_date"
	ReasonBadQuantity        = "unparseable_quantity"
	ReasonNonPositiveQty     = "non_positive_quantity"
	ReasonQuantityOutOfRange = "quantity_out_of_range"
	ReasonBadPrice           = "unparseable_price"
	ReasonNegativePrice      = "negative_price"
	ReasonAmountOutOfRange   = "amount_out_of_range"
	ReasonInvalid            = "invalid"
)

// MaxQuantity is the largest quantity the orders table can store.
const MaxQuantity = math.MaxInt32

// fieldRule maps a failing Record field, and optionally the failing tag,
// to a drop reason.
type fieldRule struct {
	field  string
	tag    string
	reason string
}

// fieldRules is in report order: the first failing rule names the reason.
var fieldRules = []fieldRule{
	{field: "OrderID", reason: ReasonMissingOrderID},
	{field: "ItemID", reason: ReasonMissingItemID},
	{field: "OrderDate", reason: ReasonBadOrderDate},
	{field: "SKU", reason: ReasonMissingSKU},
	{field: "CustomerID", reason: ReasonMissingCustomerID},
	{field: "Quantity", tag: "lte", reason: ReasonQuantityOutOfRange},
	{field: "Quantity", reason: ReasonNonPositiveQty},
	{field: "UnitPrice", reason: ReasonNegativePrice},
	{field: "LineTotal", reason: ReasonAmountOutOfRange},
	{field: "DiscountAmount", reason: ReasonAmountOutOfRange},
	{field: "Total", reason: ReasonAmountOutOfRange},
}

// newValidator returns a validator that compares decimal fields numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// filter returns the reason rec must be dropped, or "" when it is valid.
// Unparseable quantity and price are reported first; every other failure is
// reported in fieldRules order. Identifiers are checked on the parse result,
// so a literal 0 is a valid id.
func (e *Engine) filter(rec *Record, out outcome) string {
	if !out.quantityParsed {
		return ReasonBadQuantity
	}
	if !out.priceParsed {
		return ReasonBadPrice
	}

	failed := make(map[string]string)
	if !out.itemIDParsed {
		failed["ItemID"] = "required"
	}
	if !out.customerIDParsed {
		failed["CustomerID"] = "required"
	}
	if out.priceNegative {
		failed["UnitPrice"] = "gte"
	}

	if err := e.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ReasonInvalid
		}
		for _, fe := range verrs {
			if _, seen := failed[fe.StructField()]; !seen {
				failed[fe.StructField()] = fe.Tag()
			}
		}
	}
	if len(failed) == 0 {
		return ""
	}

	for _, r := range fieldRules {
		tag, ok := failed[r.field]
		if ok && (r.tag == "" || r.tag == tag) {
			return r.reason
		}
	}
	return ReasonInvalid
}
