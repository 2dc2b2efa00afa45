// Package export writes the processed relations as CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/quality"
)

// File names under the processed directory.
const (
	CustomersFile = "customers.csv"
	ProductsFile  = "products.csv"
	OrdersFile    = "orders.csv"
	CleanedFile   = "cleaned_sales.csv"
)

// flushInterval is the number of rows written between flushes.
const flushInterval = 1000

var (
	customerHeader = []string{
		"customer_id", "first_name", "last_name", "email", "gender", "age", "phone",
		"customer_since", "place_name", "county", "city", "state", "zip", "region",
	}
	productHeader = []string{"sku", "category", "unit_price"}
	orderHeader   = []string{
		"item_id", "order_id", "order_date", "status", "customer_id", "sku", "quantity",
		"unit_price", "line_total", "discount_amount", "total", "payment_method", "year", "month",
	}
)

// Files lists the paths written by WriteAll.
type Files struct {
	Customers string `json:"customers"`
	Products  string `json:"products"`
	Orders    string `json:"orders"`
	Cleaned   string `json:"cleaned,omitempty"`
}

// WriteAll writes the three relations to dir and, when records is non-nil,
// the cleaned flat table as well. Each file is replaced atomically.
func WriteAll(dir string, t *normalize.Tables, records []quality.Record) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create %s: %w", dir, err)
	}

	files := Files{
		Customers: filepath.Join(dir, CustomersFile),
		Products:  filepath.Join(dir, ProductsFile),
		Orders:    filepath.Join(dir, OrdersFile),
	}

	if err := writeFile(files.Customers, func(w io.Writer) error { return WriteCustomers(w, t.Customers) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Products, func(w io.Writer) error { return WriteProducts(w, t.Products) }); err != nil {
		return Files{}, err
	}
	if err := writeFile(files.Orders, func(w io.Writer) error { return WriteOrders(w, t.Orders) }); err != nil {
		return Files{}, err
	}

	if records != nil {
		files.Cleaned = filepath.Join(dir, CleanedFile)
		table := quality.ToTable(records)
		if err := writeFile(files.Cleaned, func(w io.Writer) error { return writeRows(w, table.Header, table.Rows) }); err != nil {
			return Files{}, err
		}
	}

	return files, nil
}

// WriteCustomers writes the customers relation as CSV.
func WriteCustomers(w io.Writer, customers []normalize.Customer) error {
	rows := make([][]string, len(customers))
	for i, c := range customers {
		rows[i] = []string{
			strconv.FormatInt(c.CustomerID, 10),
			c.FirstName,
			c.LastName,
			c.Email,
			c.Gender,
			optionalInt(c.Age),
			c.Phone,
			formatDate(c.CustomerSince),
			c.PlaceName,
			c.County,
			c.City,
			c.State,
			c.Zip,
			c.Region,
		}
	}
	return writeRows(w, customerHeader, rows)
}

// WriteProducts writes the products relation as CSV.
func WriteProducts(w io.Writer, products []normalize.Product) error {
	rows := make([][]string, len(products))
	for i, p := range products {
		rows[i] = []string{p.SKU, p.Category, core.FormatPrice(p.UnitPrice)}
	}
	return writeRows(w, productHeader, rows)
}

// WriteOrders writes the orders relation as CSV.
func WriteOrders(w io.Writer, orders []normalize.OrderLine) error {
	rows := make([][]string, len(orders))
	for i, o := range orders {
		rows[i] = []string{
			strconv.FormatInt(o.ItemID, 10),
			o.OrderID,
			formatDate(o.OrderDate),
			o.Status,
			strconv.FormatInt(o.CustomerID, 10),
			o.SKU,
			strconv.FormatInt(o.Quantity, 10),
			core.FormatPrice(o.UnitPrice),
			o.LineTotal.StringFixed(2),
			o.DiscountAmount.StringFixed(2),
			o.Total.StringFixed(2),
			o.PaymentMethod,
			strconv.Itoa(o.Year),
			strconv.Itoa(o.Month),
		}
	}
	return writeRows(w, orderHeader, rows)
}

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
		if (i+1)%flushInterval == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFile writes through a temp file in the same directory and renames
// it over path.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export %s: %w", filepath.Base(path), err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func optionalInt(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i)
}
