// Package core holds the pieces every stage of the sales ETL shares: the raw
// table reader, cell conversion, the source column contract and the stage
// error taxonomy.
//
// It has no knowledge of cleaning rules or the destination schema, so it can
// be used by the pipeline, the CLI, or tests without modification.
//
// # Reading
//
// [ReadTable] loads the export into a [Table] of text cells:
//
//	tbl, err := core.ReadTable("data/raw/sales.csv")
//	if err != nil {
//	    // *core.IngestError: missing file, bad CSV, schema mismatch
//	}
//	qty := tbl.Value(0, core.ColQuantity)
//
// Input is wrapped with [WrapForStreaming] so a BOM or stray invalid UTF-8
// bytes never reach encoding/csv. Header lookup is case-insensitive.
//
// # Conversion
//
// The Parse* helpers ([ParseDecimal], [ParseInt], [ParseDate]) accept the
// formats found in real exports and report failure with a bool. The ToPg*
// helpers build pgtype values for COPY.
//
// # Errors
//
// Each stage fails with one typed error carrying a stable code
// (see [ErrorCode] and [MapError]).
package core
