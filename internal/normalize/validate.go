package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Check is the outcome of one post-normalization assertion.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Failed int    `json:"failed,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Validate runs the post-normalization assertions over t. It never fails;
// callers decide what a failed check means.
func Validate(t *Tables, tolerance decimal.Decimal) []Check {
	var (
		dupCustomers, badEmails     int
		dupProducts, negativePrices int
		badQuantity, lineErrors     int
		totalErrors                 int
	)

	customers := make(map[int64]struct{}, len(t.Customers))
	for _, c := range t.Customers {
		if _, dup := customers[c.CustomerID]; dup {
			dupCustomers++
		}
		customers[c.CustomerID] = struct{}{}
		if c.Email != "" && !strings.Contains(c.Email, "@") {
			badEmails++
		}
	}

	products := make(map[string]struct{}, len(t.Products))
	for _, p := range t.Products {
		if _, dup := products[p.SKU]; dup {
			dupProducts++
		}
		products[p.SKU] = struct{}{}
		if p.UnitPrice.IsNegative() {
			negativePrices++
		}
	}

	for _, o := range t.Orders {
		if o.Quantity <= 0 {
			badQuantity++
		}
		line := o.UnitPrice.Mul(decimal.NewFromInt(o.Quantity))
		if line.Sub(o.LineTotal).Abs().GreaterThan(tolerance) {
			lineErrors++
		}
		if o.LineTotal.Sub(o.DiscountAmount).Sub(o.Total).Abs().GreaterThan(tolerance) {
			totalErrors++
		}
	}

	integrity := "ok"
	if err := Verify(t); err != nil {
		integrity = err.Error()
	}

	return []Check{
		count("unique_customer_ids", dupCustomers, "duplicate customer ids"),
		count("valid_emails", badEmails, "emails without @"),
		count("unique_skus", dupProducts, "duplicate skus"),
		count("non_negative_prices", negativePrices, "negative product prices"),
		count("positive_quantities", badQuantity, "non-positive quantities"),
		count("line_totals", lineErrors, "line totals outside tolerance"),
		count("order_totals", totalErrors, "totals outside tolerance"),
		{Name: "referential_integrity", Passed: integrity == "ok", Detail: integrity},
	}
}

// Failed returns the checks that did not pass.
func Failed(checks []Check) []Check {
	var out []Check
	for _, c := range checks {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

func count(name string, failed int, what string) Check {
	c := Check{Name: name, Passed: failed == 0, Failed: failed}
	if failed > 0 {
		c.Detail = fmt.Sprintf("%d %s", failed, what)
	}
	return c
}
