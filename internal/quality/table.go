package quality

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// CleanHeader is the column layout written by ToTable. It uses the source
// column names so the result can be fed back through Clean.
var CleanHeader = []string{
	"order_id", "order_date", "status", "item_id", "sku", "qty_ordered", "price", "value",
	"discount_amount", "total", "category", "payment_method", "cust_id",
	"First Name", "Last Name", "Gender", "age", "E Mail", "Customer Since", "Phone No.",
	"Place Name", "County", "City", "State", "Zip", "Region",
}

const dateLayout = "2006-01-02"

// ToTable renders records as a raw table in source layout. Amounts are
// written with two decimals, unit prices exactly (see core.FormatPrice) and
// dates as YYYY-MM-DD.
func ToTable(records []Record) *core.Table {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.OrderID,
			formatDate(r.OrderDate),
			r.Status,
			strconv.FormatInt(r.ItemID, 10),
			r.SKU,
			strconv.FormatInt(r.Quantity, 10),
			core.FormatPrice(r.UnitPrice),
			r.LineTotal.StringFixed(2),
			r.DiscountAmount.StringFixed(2),
			r.Total.StringFixed(2),
			r.Category,
			r.PaymentMethod,
			strconv.FormatInt(r.CustomerID, 10),
			r.FirstName,
			r.LastName,
			r.Gender,
			formatAge(r.Age),
			r.Email,
			formatDate(r.CustomerSince),
			r.Phone,
			r.PlaceName,
			r.County,
			r.City,
			r.State,
			r.Zip,
			r.Region,
		}
	}
	return core.NewTable(append([]string(nil), CleanHeader...), rows)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatAge(age int) string {
	if age == 0 {
		return ""
	}
	return strconv.Itoa(age)
}
