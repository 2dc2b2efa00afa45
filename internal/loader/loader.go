// Package loader persists normalized sales tables into PostgreSQL.
//
// A load runs in a single transaction: the schema is dropped and recreated,
// dimensions are inserted in batches, facts are copied, then indexes, views
// and verification queries run before commit. Any failure rolls the whole
// load back.
package loader

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/logging"
	"github.com/JonMunkholm/salesetl/internal/normalize"
)

var (
	//go:embed sql/schema.sql
	schemaSQL string

	//go:embed sql/indexes.sql
	indexesSQL string

	//go:embed sql/views.sql
	viewsSQL string

	//go:embed sql/runs.sql
	runsSQL string
)

// DefaultBatchSize is the number of dimension rows queued per batch.
const DefaultBatchSize = 1000

// DB is the subset of *pgxpool.Pool used by the loader.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Options tunes a load.
type Options struct {
	BatchSize int
	Timeout   time.Duration
}

// Result reports what a committed load wrote.
type Result struct {
	Customers    int64         `json:"customers"`
	Products     int64         `json:"products"`
	Orders       int64         `json:"orders"`
	Verification Verification  `json:"verification"`
	Duration     time.Duration `json:"-"`
}

// Loader writes normalized tables to the destination database.
type Loader struct {
	db   DB
	opts Options
}

// New returns a loader over db. Zero options take defaults.
func New(db DB, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Loader{db: db, opts: opts}
}

// Load replaces the star schema with t. It commits only when every step
// and the verification succeed.
func (l *Loader) Load(ctx context.Context, t *normalize.Tables) (*Result, error) {
	start := time.Now()
	logger := logging.WithFields(ctx, "stage", "load")

	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, classify("begin", "", err)
	}
	defer tx.Rollback(ctx) // No-op once committed

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return nil, classify("create schema", "", err)
	}
	logger.Debug("schema recreated")

	res := &Result{}

	if res.Customers, err = insertBatched(ctx, tx, insertCustomerSQL, "customers", customerArgs(t.Customers), l.opts.BatchSize); err != nil {
		return nil, err
	}
	if res.Products, err = insertBatched(ctx, tx, insertProductSQL, "products", productArgs(t.Products), l.opts.BatchSize); err != nil {
		return nil, err
	}
	logger.Info("dimensions loaded", "customers", res.Customers, "products", res.Products)

	res.Orders, err = tx.CopyFrom(ctx, pgx.Identifier{"orders"}, orderColumns, pgx.CopyFromSlice(len(t.Orders), func(i int) ([]any, error) {
		return orderRow(t.Orders[i])
	}))
	if err != nil {
		return nil, classify("copy", "orders", err)
	}
	logger.Info("facts loaded", "orders", res.Orders)

	if _, err := tx.Exec(ctx, indexesSQL); err != nil {
		return nil, classify("create indexes", "", err)
	}
	if _, err := tx.Exec(ctx, viewsSQL); err != nil {
		return nil, classify("create views", "", err)
	}

	v, err := verify(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := v.check(res); err != nil {
		return nil, err
	}
	res.Verification = v

	if err := tx.Commit(ctx); err != nil {
		return nil, classify("commit", "", err)
	}

	res.Duration = time.Since(start)
	logger.Info("load committed",
		"orders", res.Orders,
		"total_revenue", v.TotalRevenue.StringFixed(2),
		"duration", res.Duration,
	)
	return res, nil
}

// insertBatched queues one INSERT per row and sends them batchSize rows at
// a time. Returns the number of rows inserted.
func insertBatched(ctx context.Context, tx pgx.Tx, sql, table string, rows [][]any, batchSize int) (int64, error) {
	var inserted int64

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		batch := &pgx.Batch{}
		for _, args := range rows[start:end] {
			batch.Queue(sql, args...)
		}

		br := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return inserted, classify("insert", table, fmt.Errorf("row %d: %w", i, err))
			}
			inserted += tag.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return inserted, classify("insert", table, err)
		}
	}

	return inserted, nil
}

// EnsureRunsTable creates the run audit table when it does not exist.
func EnsureRunsTable(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, runsSQL); err != nil {
		return classify("create", "etl_runs", err)
	}
	return nil
}

// RunRecord is one row of the etl_runs audit table.
type RunRecord struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Success      bool
	Stage        string
	ErrorCode    string
	ErrorMessage string
	RowsRaw      int
	RowsCleaned  int
	OrdersLoaded int
}

// RecordRun appends r to etl_runs, creating the table first if needed.
// The audit table survives schema recreation.
func (l *Loader) RecordRun(ctx context.Context, r RunRecord) error {
	if err := EnsureRunsTable(ctx, l.db); err != nil {
		return err
	}
	_, err := l.db.Exec(ctx, insertRunSQL,
		r.RunID,
		r.StartedAt,
		r.FinishedAt,
		r.Success,
		core.ToPgText(r.Stage),
		core.ToPgText(r.ErrorCode),
		core.ToPgText(r.ErrorMessage),
		r.RowsRaw,
		r.RowsCleaned,
		r.OrdersLoaded,
	)
	if err != nil {
		return classify("insert", "etl_runs", err)
	}
	return nil
}
