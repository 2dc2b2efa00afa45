package loader

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/normalize"
	"github.com/JonMunkholm/salesetl/internal/quality"
)

// testPool connects to SALESETL_TEST_DATABASE_URL or skips. The database
// is wiped by every load, so never point it at real data.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("SALESETL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SALESETL_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func sampleTables(t *testing.T) *normalize.Tables {
	t.Helper()

	day := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	rec := func(order string, item, cust int64, sku, category, price string, qty int64) quality.Record {
		p := decimal.RequireFromString(price)
		line := p.Mul(decimal.NewFromInt(qty))
		return quality.Record{
			OrderID: order, ItemID: item, OrderDate: day, Status: "complete",
			SKU: sku, Category: category, CustomerID: cust, Quantity: qty,
			UnitPrice: p, LineTotal: line, DiscountAmount: decimal.Zero, Total: line,
			FirstName: "Rosario", Email: "rosario@example.com",
		}
	}

	tables, err := normalize.Normalize([]quality.Record{
		rec("100-1", 1, 10, "A", "Appliances", "10.00", 2),
		rec("100-1", 2, 10, "B", "Books", "5.50", 1),
		rec("101", 3, 11, "A", "Appliances", "10.00", 1),
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return tables
}

func TestLoad_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	l := New(pool, Options{BatchSize: 1})
	res, err := l.Load(ctx, sampleTables(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.Customers != 2 || res.Products != 2 || res.Orders != 3 {
		t.Errorf("wrote %d/%d/%d, want 2/2/3", res.Customers, res.Products, res.Orders)
	}
	v := res.Verification
	if v.OrphanCustomers != 0 || v.OrphanProducts != 0 {
		t.Errorf("orphans = %d/%d", v.OrphanCustomers, v.OrphanProducts)
	}
	if got := v.TotalRevenue.StringFixed(2); got != "35.50" {
		t.Errorf("TotalRevenue = %s, want 35.50", got)
	}
	if got := v.AvgOrderValue.StringFixed(2); got != "17.75" {
		t.Errorf("AvgOrderValue = %s, want 17.75", got)
	}
	if len(v.TopCategories) != 2 || v.TopCategories[0].Category != "Appliances" {
		t.Errorf("TopCategories = %+v", v.TopCategories)
	}

	var orderID string
	if err := pool.QueryRow(ctx, `SELECT order_id FROM orders WHERE item_id = 1`).Scan(&orderID); err != nil {
		t.Fatalf("query: %v", err)
	}
	if orderID != "100-1" {
		t.Errorf("order_id = %q, want text id preserved", orderID)
	}

	var lines int
	if err := pool.QueryRow(ctx, `SELECT line_count FROM order_summary WHERE order_id = '100-1'`).Scan(&lines); err != nil {
		t.Fatalf("order_summary: %v", err)
	}
	if lines != 2 {
		t.Errorf("order_summary line_count = %d, want 2", lines)
	}
}

func TestLoad_Integration_LargestQuantityAndSubCentPrice(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	price := decimal.RequireFromString("1.005")
	qty := int64(quality.MaxQuantity)
	line := price.Mul(decimal.NewFromInt(qty)).Round(2)

	tables, err := normalize.Normalize([]quality.Record{{
		OrderID: "200", ItemID: 1, OrderDate: time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC),
		SKU: "A", CustomerID: 10, Quantity: qty,
		UnitPrice: price, LineTotal: line, DiscountAmount: decimal.Zero, Total: line,
	}})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if _, err := New(pool, Options{}).Load(ctx, tables); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var gotPrice, gotTotal string
	err = pool.QueryRow(ctx, `SELECT unit_price::text, total::text FROM orders WHERE item_id = 1`).Scan(&gotPrice, &gotTotal)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if gotPrice != "1.005" {
		t.Errorf("unit_price = %s, want 1.005", gotPrice)
	}
	if gotTotal != line.StringFixed(2) {
		t.Errorf("total = %s, want %s", gotTotal, line.StringFixed(2))
	}
}

func TestLoad_Integration_RollsBackOnFailure(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	l := New(pool, Options{})
	if _, err := l.Load(ctx, sampleTables(t)); err != nil {
		t.Fatalf("initial Load: %v", err)
	}

	broken := sampleTables(t)
	broken.Orders = append(broken.Orders, normalize.OrderLine{
		ItemID: 99, OrderID: "999", OrderDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		CustomerID: 404, SKU: "A", Quantity: 1, Year: 2021, Month: 1,
	})

	_, err := l.Load(ctx, broken)
	if err == nil {
		t.Fatal("Load with orphan customer succeeded")
	}
	if code := core.ErrorCode(err); code != core.CodeForeignKey {
		t.Errorf("ErrorCode = %q, want %q (%v)", code, core.CodeForeignKey, err)
	}

	var orders int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
		t.Fatalf("previous tables gone after failed load: %v", err)
	}
	if orders != 3 {
		t.Errorf("orders = %d after rollback, want 3", orders)
	}
}

func TestRecordRun_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	runID := "test-" + time.Now().Format("20060102150405.000000000")
	l := New(pool, Options{})

	err := l.RecordRun(ctx, RunRecord{
		RunID:      runID,
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
		Success:    false,
		Stage:      "load",
		ErrorCode:  core.CodeForeignKey,
	})
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	var success bool
	if err := pool.QueryRow(ctx, `SELECT success FROM etl_runs WHERE run_id = $1`, runID).Scan(&success); err != nil {
		t.Fatalf("query etl_runs: %v", err)
	}
	if success {
		t.Error("success = true, want false")
	}
}
