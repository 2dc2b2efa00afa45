package loader

import (
	"fmt"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/normalize"
)

const insertCustomerSQL = `INSERT INTO customers (
	customer_id, first_name, last_name, email, gender, age, phone, customer_since,
	place_name, county, city, state, zip, region
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (customer_id) DO NOTHING`

const insertProductSQL = `INSERT INTO products (sku, category, unit_price)
VALUES ($1, $2, $3)
ON CONFLICT (sku) DO NOTHING`

const insertRunSQL = `INSERT INTO etl_runs (
	run_id, started_at, finished_at, success, stage, error_code, error_message,
	rows_raw, rows_cleaned, orders_loaded
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// orderColumns is the COPY column list; orderRow yields values in this order.
var orderColumns = []string{
	"item_id", "order_id", "order_date", "status", "customer_id", "sku", "quantity",
	"unit_price", "line_total", "discount_amount", "total", "payment_method", "year", "month",
}

func customerArgs(customers []normalize.Customer) [][]any {
	rows := make([][]any, len(customers))
	for i, c := range customers {
		rows[i] = []any{
			c.CustomerID,
			core.ToPgText(c.FirstName),
			core.ToPgText(c.LastName),
			core.ToPgText(c.Email),
			core.ToPgText(c.Gender),
			core.ToPgInt4(c.Age),
			core.ToPgText(c.Phone),
			core.ToPgDate(c.CustomerSince),
			core.ToPgText(c.PlaceName),
			core.ToPgText(c.County),
			core.ToPgText(c.City),
			core.ToPgText(c.State),
			core.ToPgText(c.Zip),
			core.ToPgText(c.Region),
		}
	}
	return rows
}

func productArgs(products []normalize.Product) [][]any {
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = []any{
			p.SKU,
			core.ToPgText(p.Category),
			core.ToPgNumeric(p.UnitPrice),
		}
	}
	return rows
}

// orderRow fails when the quantity does not fit the INTEGER column.
func orderRow(o normalize.OrderLine) ([]any, error) {
	qty, ok := core.Int32(o.Quantity)
	if !ok {
		return nil, fmt.Errorf("order %s item %d: quantity %d out of range", o.OrderID, o.ItemID, o.Quantity)
	}
	return []any{
		o.ItemID,
		o.OrderID,
		core.ToPgDate(o.OrderDate),
		core.ToPgText(o.Status),
		o.CustomerID,
		o.SKU,
		qty,
		core.ToPgNumeric(o.UnitPrice),
		core.ToPgNumeric(o.LineTotal),
		core.ToPgNumeric(o.DiscountAmount),
		core.ToPgNumeric(o.Total),
		core.ToPgText(o.PaymentMethod),
		core.ToPgInt4(o.Year),
		core.ToPgInt4(o.Month),
	}, nil
}
