package core

// reader.go loads the raw sales export into memory.
//
// Every cell is kept as text exactly as written, apart from BOM removal and
// invalid UTF-8 replacement. Identifier columns such as order_id carry values
// like "100468520-1", so no type inference happens here.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ReadTable reads the CSV file at path and checks it against SourceColumns.
func ReadTable(path string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &IngestError{Path: path, Code: CodeSourceMissing, Err: err}
		}
		return nil, &IngestError{Path: path, Code: CodeSourceUnreadable, Err: err}
	}
	if info.IsDir() {
		return nil, &IngestError{Path: path, Code: CodeSourceUnreadable, Err: fmt.Errorf("is a directory")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &IngestError{Path: path, Code: CodeSourceUnreadable, Err: err}
	}
	defer f.Close()

	return parseTable(path, f)
}

// ParseTable reads CSV from r and checks it against SourceColumns.
func ParseTable(r io.Reader) (*Table, error) {
	return parseTable("<stream>", r)
}

func parseTable(name string, src io.Reader) (*Table, error) {
	sanitized, counter := WrapForStreaming(src)

	r := csv.NewReader(sanitized)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &IngestError{Path: name, Code: CodeEmptySource, Err: errors.New("no header row")}
	}
	if err != nil {
		return nil, ingestCSVError(name, err)
	}

	idx, err := ValidateHeaders(header, SourceColumns)
	if err != nil {
		return nil, &IngestError{Path: name, Line: 1, Code: CodeSchemaMismatch, Err: err}
	}

	t := &Table{Header: header, idx: idx}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ingestCSVError(name, err)
		}
		if isEmptyRow(row) {
			continue
		}

		line, _ := r.FieldPos(0)
		t.Rows = append(t.Rows, fitRow(row, len(header)))
		t.Lines = append(t.Lines, line)
	}

	t.Bytes = counter.BytesRead
	t.InvalidBytes = sanitized.Replaced
	return t, nil
}

// ingestCSVError converts an encoding/csv error into an IngestError with its line.
func ingestCSVError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &IngestError{Path: name, Line: pe.Line, Code: CodeMalformedCSV, Err: pe.Err}
	}
	return &IngestError{Path: name, Code: CodeSourceUnreadable, Err: err}
}

// fitRow pads short rows with empty cells and drops cells past the header.
func fitRow(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
