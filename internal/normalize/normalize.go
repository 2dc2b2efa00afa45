// Package normalize splits cleaned records into the star schema relations:
// customers and products (dimensions) and order lines (facts).
//
// Tie-break rules:
//   - customers: first occurrence wins, per column; the first non-empty value
//     seen for each attribute is kept
//   - products: latest price wins; the unit price comes from the line with
//     the latest order date, ties keep the first seen line; category is the
//     first non-empty value
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/quality"
)

// maxReportedKeys caps the offending keys carried in a NormalizationError.
const maxReportedKeys = 10

// Customer is one row of the customers dimension.
type Customer struct {
	CustomerID    int64
	FirstName     string
	LastName      string
	Email         string
	Gender        string
	Age           int
	Phone         string
	CustomerSince time.Time
	PlaceName     string
	County        string
	City          string
	State         string
	Zip           string
	Region        string
}

// Product is one row of the products dimension.
type Product struct {
	SKU       string
	Category  string
	UnitPrice decimal.Decimal

	priceDate time.Time
}

// OrderLine is one row of the orders fact table.
type OrderLine struct {
	ItemID         int64
	OrderID        string
	OrderDate      time.Time
	Status         string
	CustomerID     int64
	SKU            string
	Quantity       int64
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	Year           int
	Month          int
}

// Tables holds the three normalized relations.
type Tables struct {
	Customers []Customer
	Products  []Product
	Orders    []OrderLine
}

// Normalize projects records into customers, products and orders.
// Customers are sorted by id, products by sku, orders by (order date,
// order id, item id). Fails with *core.NormalizationError when records is
// empty or the result breaks referential integrity.
func Normalize(records []quality.Record) (*Tables, error) {
	if len(records) == 0 {
		return nil, &core.NormalizationError{
			Relation: "orders",
			Code:     core.CodeNothingToProcess,
			Err:      errors.New("no records"),
		}
	}

	customers := make(map[int64]*Customer)
	products := make(map[string]*Product)
	orders := make([]OrderLine, 0, len(records))

	for i := range records {
		r := &records[i]

		if c, ok := customers[r.CustomerID]; ok {
			mergeCustomer(c, r)
		} else {
			customers[r.CustomerID] = newCustomer(r)
		}

		if p, ok := products[r.SKU]; ok {
			mergeProduct(p, r)
		} else {
			products[r.SKU] = &Product{SKU: r.SKU, Category: r.Category, UnitPrice: r.UnitPrice, priceDate: r.OrderDate}
		}

		orders = append(orders, OrderLine{
			ItemID:         r.ItemID,
			OrderID:        r.OrderID,
			OrderDate:      r.OrderDate,
			Status:         r.Status,
			CustomerID:     r.CustomerID,
			SKU:            r.SKU,
			Quantity:       r.Quantity,
			UnitPrice:      r.UnitPrice,
			LineTotal:      r.LineTotal,
			DiscountAmount: r.DiscountAmount,
			Total:          r.Total,
			PaymentMethod:  r.PaymentMethod,
			Year:           r.OrderDate.Year(),
			Month:          int(r.OrderDate.Month()),
		})
	}

	t := &Tables{
		Customers: make([]Customer, 0, len(customers)),
		Products:  make([]Product, 0, len(products)),
		Orders:    orders,
	}
	for _, c := range customers {
		t.Customers = append(t.Customers, *c)
	}
	for _, p := range products {
		t.Products = append(t.Products, *p)
	}

	sort.Slice(t.Customers, func(i, j int) bool { return t.Customers[i].CustomerID < t.Customers[j].CustomerID })
	sort.Slice(t.Products, func(i, j int) bool { return t.Products[i].SKU < t.Products[j].SKU })
	sort.SliceStable(t.Orders, func(i, j int) bool {
		a, b := t.Orders[i], t.Orders[j]
		if !a.OrderDate.Equal(b.OrderDate) {
			return a.OrderDate.Before(b.OrderDate)
		}
		if a.OrderID != b.OrderID {
			return a.OrderID < b.OrderID
		}
		return a.ItemID < b.ItemID
	})

	if err := Verify(t); err != nil {
		return nil, err
	}
	return t, nil
}

func newCustomer(r *quality.Record) *Customer {
	return &Customer{
		CustomerID:    r.CustomerID,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Email:         r.Email,
		Gender:        r.Gender,
		Age:           r.Age,
		Phone:         r.Phone,
		CustomerSince: r.CustomerSince,
		PlaceName:     r.PlaceName,
		County:        r.County,
		City:          r.City,
		State:         r.State,
		Zip:           r.Zip,
		Region:        r.Region,
	}
}

// mergeCustomer fills attributes of c that are still empty from r.
func mergeCustomer(c *Customer, r *quality.Record) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.FirstName, r.FirstName)
	fill(&c.LastName, r.LastName)
	fill(&c.Email, r.Email)
	fill(&c.Gender, r.Gender)
	fill(&c.Phone, r.Phone)
	fill(&c.PlaceName, r.PlaceName)
	fill(&c.County, r.County)
	fill(&c.City, r.City)
	fill(&c.State, r.State)
	fill(&c.Zip, r.Zip)
	fill(&c.Region, r.Region)
	if c.Age == 0 {
		c.Age = r.Age
	}
	if c.CustomerSince.IsZero() {
		c.CustomerSince = r.CustomerSince
	}
}

// mergeProduct takes r's price when r is strictly newer than the line the
// current price came from.
func mergeProduct(p *Product, r *quality.Record) {
	if r.OrderDate.After(p.priceDate) {
		p.UnitPrice = r.UnitPrice
		p.priceDate = r.OrderDate
	}
	if p.Category == "" {
		p.Category = r.Category
	}
}

// Verify checks that every order line references a known customer and
// product and that item ids are unique.
func Verify(t *Tables) error {
	customers := make(map[int64]struct{}, len(t.Customers))
	for _, c := range t.Customers {
		customers[c.CustomerID] = struct{}{}
	}
	products := make(map[string]struct{}, len(t.Products))
	for _, p := range t.Products {
		products[p.SKU] = struct{}{}
	}

	var orphanCustomers, orphanProducts, dupItems []string
	items := make(map[int64]struct{}, len(t.Orders))

	for _, o := range t.Orders {
		if _, ok := customers[o.CustomerID]; !ok {
			orphanCustomers = appendCapped(orphanCustomers, strconv.FormatInt(o.CustomerID, 10))
		}
		if _, ok := products[o.SKU]; !ok {
			orphanProducts = appendCapped(orphanProducts, o.SKU)
		}
		if _, dup := items[o.ItemID]; dup {
			dupItems = appendCapped(dupItems, strconv.FormatInt(o.ItemID, 10))
		}
		items[o.ItemID] = struct{}{}
	}

	switch {
	case len(orphanCustomers) > 0:
		return &core.NormalizationError{
			Relation: "orders",
			Keys:     orphanCustomers,
			Code:     core.CodeOrphanCustomer,
			Err:      fmt.Errorf("order lines reference customers absent from customers"),
		}
	case len(orphanProducts) > 0:
		return &core.NormalizationError{
			Relation: "orders",
			Keys:     orphanProducts,
			Code:     core.CodeOrphanProduct,
			Err:      fmt.Errorf("order lines reference products absent from products"),
		}
	case len(dupItems) > 0:
		return &core.NormalizationError{
			Relation: "orders",
			Keys:     dupItems,
			Code:     core.CodeDuplicateItem,
			Err:      fmt.Errorf("item ids appear on more than one order line"),
		}
	}
	return nil
}

func appendCapped(keys []string, k string) []string {
	if len(keys) >= maxReportedKeys {
		return keys
	}
	return append(keys, k)
}
