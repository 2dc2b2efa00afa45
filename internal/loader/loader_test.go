package loader

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/normalize"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		table     string
		wantCode  string
		wantTable string
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", TableName: "customers"}, "", core.CodeDuplicateKey, "customers"},
		{"foreign key", &pgconn.PgError{Code: "23503"}, "orders", core.CodeForeignKey, "orders"},
		{"not null", &pgconn.PgError{Code: "23502"}, "orders", core.CodeNotNull, "orders"},
		{"connection class", &pgconn.PgError{Code: "08006"}, "", core.CodeConnection, ""},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, "", core.CodeSchema, ""},
		{"wrapped pg error", fmt.Errorf("row 3: %w", &pgconn.PgError{Code: "23505"}), "products", core.CodeDuplicateKey, "products"},
		{"other", errors.New("boom"), "orders", core.CodeLoadFailed, "orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("insert", tt.table, tt.err)

			var le *core.LoadError
			if !errors.As(err, &le) {
				t.Fatalf("classify() = %T, want *core.LoadError", err)
			}
			if le.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", le.Code, tt.wantCode)
			}
			if le.Table != tt.wantTable {
				t.Errorf("Table = %q, want %q", le.Table, tt.wantTable)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classify() does not wrap the cause")
			}
		})
	}
}

func TestClassify_KeepsLoadError(t *testing.T) {
	orig := &core.LoadError{Op: "verify", Code: core.CodeVerification, Err: errors.New("orphans")}

	err := classify("insert", "orders", fmt.Errorf("context: %w", orig))

	var le *core.LoadError
	if !errors.As(err, &le) || le != orig {
		t.Fatalf("classify() replaced an existing LoadError: %v", err)
	}
}

func TestCustomerArgs_Nulls(t *testing.T) {
	rows := customerArgs([]normalize.Customer{{CustomerID: 42, FirstName: "Rosario"}})
	if len(rows) != 1 || len(rows[0]) != 14 {
		t.Fatalf("customerArgs() shape = %d rows", len(rows))
	}
	args := rows[0]

	if args[0] != int64(42) {
		t.Errorf("customer_id = %v", args[0])
	}
	if first := args[1].(pgtype.Text); !first.Valid || first.String != "Rosario" {
		t.Errorf("first_name = %+v", first)
	}
	if email := args[3].(pgtype.Text); email.Valid {
		t.Errorf("empty email should be NULL, got %+v", email)
	}
	if age := args[5].(pgtype.Int4); age.Valid {
		t.Errorf("zero age should be NULL, got %+v", age)
	}
	if since := args[7].(pgtype.Date); since.Valid {
		t.Errorf("zero customer_since should be NULL, got %+v", since)
	}
}

func TestOrderRow(t *testing.T) {
	o := normalize.OrderLine{
		ItemID:         574772,
		OrderID:        "100354678",
		OrderDate:      time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
		CustomerID:     60124,
		SKU:            "OASIS_OASIS-094",
		Quantity:       21,
		UnitPrice:      decimal.RequireFromString("89.90"),
		LineTotal:      decimal.RequireFromString("1798.00"),
		DiscountAmount: decimal.Zero,
		Total:          decimal.RequireFromString("1798.00"),
		Year:           2020,
		Month:          10,
	}

	row, err := orderRow(o)
	if err != nil {
		t.Fatalf("orderRow() error = %v", err)
	}
	if len(row) != len(orderColumns) {
		t.Fatalf("orderRow() has %d values for %d columns", len(row), len(orderColumns))
	}
	if row[1] != "100354678" {
		t.Errorf("order_id = %v, want text id", row[1])
	}
	if row[6] != int32(21) {
		t.Errorf("quantity = %v", row[6])
	}
	price := row[7].(pgtype.Numeric)
	if price.Int.Int64() != 8990 || price.Exp != -2 {
		t.Errorf("unit_price = %v e%d", price.Int, price.Exp)
	}
	if status := row[3].(pgtype.Text); status.Valid {
		t.Errorf("empty status should be NULL")
	}
	if year := row[12].(pgtype.Int4); !year.Valid || year.Int32 != 2020 {
		t.Errorf("year = %+v", year)
	}
}

func TestOrderRow_QuantityOutOfRange(t *testing.T) {
	for _, qty := range []int64{4294967301, 1 << 31, -(1 << 32)} {
		o := normalize.OrderLine{ItemID: 1, OrderID: "100", Quantity: qty}
		if row, err := orderRow(o); err == nil {
			t.Errorf("orderRow(quantity %d) = %v, want error", qty, row)
		}
	}
}

func TestEmbeddedSQL(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"schema", schemaSQL, []string{"DROP TABLE IF EXISTS orders", "CREATE TABLE customers", "CREATE TABLE products", "CREATE TABLE orders", "REFERENCES customers", "line_total      NUMERIC(18, 2)", "total           NUMERIC(18, 2)", "unit_price      NUMERIC NOT NULL"}},
		{"indexes", indexesSQL, []string{"orders (order_id)", "orders (customer_id)", "orders (sku)", "orders (order_date)", "customers (email)"}},
		{"views", viewsSQL, []string{"CREATE VIEW order_summary", "CREATE VIEW product_performance", "ORDER BY revenue DESC"}},
		{"runs", runsSQL, []string{"CREATE TABLE IF NOT EXISTS etl_runs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, w := range tt.want {
				if !strings.Contains(tt.sql, w) {
					t.Errorf("%s SQL missing %q", tt.name, w)
				}
			}
		})
	}

	if strings.Contains(schemaSQL, "etl_runs") {
		t.Error("schema recreation must not drop etl_runs")
	}
}

func TestVerification_Check(t *testing.T) {
	written := &Result{Customers: 2, Products: 3, Orders: 5}

	tests := []struct {
		name    string
		v       Verification
		wantErr bool
	}{
		{"matches", Verification{Customers: 2, Products: 3, Orders: 5}, false},
		{"orphans", Verification{Customers: 2, Products: 3, Orders: 5, OrphanCustomers: 1}, true},
		{"count mismatch", Verification{Customers: 2, Products: 3, Orders: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.check(written)
			if (err != nil) != tt.wantErr {
				t.Fatalf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && core.ErrorCode(err) != core.CodeVerification {
				t.Errorf("ErrorCode = %q, want %q", core.ErrorCode(err), core.CodeVerification)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	l := New(nil, Options{})
	if l.opts.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", l.opts.BatchSize, DefaultBatchSize)
	}
}
