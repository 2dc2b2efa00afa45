package loader

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// topCategoryLimit is the number of categories reported by revenue.
const topCategoryLimit = 5

// CategoryRevenue is one entry of the top categories by revenue.
type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Verification holds the figures read back from the database before commit.
type Verification struct {
	Customers       int64             `json:"customers"`
	Products        int64             `json:"products"`
	Orders          int64             `json:"orders"`
	OrphanCustomers int64             `json:"orphan_customers"`
	OrphanProducts  int64             `json:"orphan_products"`
	TotalRevenue    decimal.Decimal   `json:"total_revenue"`
	AvgOrderValue   decimal.Decimal   `json:"avg_order_value"`
	TopCategories   []CategoryRevenue `json:"top_categories"`
}

const (
	countsSQL = `SELECT
	(SELECT COUNT(*) FROM customers),
	(SELECT COUNT(*) FROM products),
	(SELECT COUNT(*) FROM orders)`

	orphansSQL = `SELECT
	(SELECT COUNT(*) FROM orders o LEFT JOIN customers c ON c.customer_id = o.customer_id WHERE c.customer_id IS NULL),
	(SELECT COUNT(*) FROM orders o LEFT JOIN products p ON p.sku = o.sku WHERE p.sku IS NULL)`

	revenueSQL = `SELECT
	COALESCE(SUM(total), 0)::text,
	COALESCE(ROUND(SUM(total) / NULLIF(COUNT(DISTINCT order_id), 0), 2), 0)::text
FROM orders`

	topCategoriesSQL = `SELECT COALESCE(p.category, ''), SUM(o.total)::text AS revenue
FROM orders o
JOIN products p ON p.sku = o.sku
GROUP BY p.category
ORDER BY SUM(o.total) DESC, p.category
LIMIT $1`
)

func verify(ctx context.Context, tx pgx.Tx) (Verification, error) {
	var v Verification

	if err := tx.QueryRow(ctx, countsSQL).Scan(&v.Customers, &v.Products, &v.Orders); err != nil {
		return v, classify("verify", "", fmt.Errorf("row counts: %w", err))
	}
	if err := tx.QueryRow(ctx, orphansSQL).Scan(&v.OrphanCustomers, &v.OrphanProducts); err != nil {
		return v, classify("verify", "orders", fmt.Errorf("orphan check: %w", err))
	}

	var revenue, avg string
	if err := tx.QueryRow(ctx, revenueSQL).Scan(&revenue, &avg); err != nil {
		return v, classify("verify", "orders", fmt.Errorf("revenue: %w", err))
	}
	var err error
	if v.TotalRevenue, err = decimal.NewFromString(revenue); err != nil {
		return v, classify("verify", "orders", fmt.Errorf("revenue %q: %w", revenue, err))
	}
	if v.AvgOrderValue, err = decimal.NewFromString(avg); err != nil {
		return v, classify("verify", "orders", fmt.Errorf("average order value %q: %w", avg, err))
	}

	rows, err := tx.Query(ctx, topCategoriesSQL, topCategoryLimit)
	if err != nil {
		return v, classify("verify", "products", fmt.Errorf("top categories: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c   CategoryRevenue
			rev string
		)
		if err := rows.Scan(&c.Category, &rev); err != nil {
			return v, classify("verify", "products", err)
		}
		if c.Revenue, err = decimal.NewFromString(rev); err != nil {
			return v, classify("verify", "products", fmt.Errorf("category revenue %q: %w", rev, err))
		}
		v.TopCategories = append(v.TopCategories, c)
	}
	if err := rows.Err(); err != nil {
		return v, classify("verify", "products", err)
	}

	return v, nil
}

// check compares the read-back figures with what was written.
func (v Verification) check(res *Result) error {
	if v.OrphanCustomers > 0 || v.OrphanProducts > 0 {
		return &core.LoadError{
			Op:    "verify",
			Table: "orders",
			Code:  core.CodeVerification,
			Err:   fmt.Errorf("%d orphan customer refs, %d orphan product refs", v.OrphanCustomers, v.OrphanProducts),
		}
	}
	if v.Customers != res.Customers || v.Products != res.Products || v.Orders != res.Orders {
		return &core.LoadError{
			Op:   "verify",
			Code: core.CodeVerification,
			Err: fmt.Errorf("row counts differ: wrote %d/%d/%d, found %d/%d/%d",
				res.Customers, res.Products, res.Orders, v.Customers, v.Products, v.Orders),
		}
	}
	return nil
}
