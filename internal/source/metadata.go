package source

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/salesetl/internal/core"
)

// MetadataFile is the extraction record written next to the raw data.
const MetadataFile = "extraction_metadata.json"

// Metadata records one successful extraction.
type Metadata struct {
	FetchedAt time.Time `json:"fetched_at"`
	Dataset   string    `json:"dataset"`
	File      string    `json:"file"`
	SizeBytes int64     `json:"size_bytes"`
	RowCount  int       `json:"row_count"`
	SHA256    string    `json:"sha256"`
}

// ReadMetadata loads the metadata at path. A missing file yields nil, nil.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return &m, nil
}

func (f *Fetcher) writeMetadata(path string) (*Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, f.fetchErr(core.CodeTransfer, err)
	}
	sum, rows, err := digestFile(path)
	if err != nil {
		return nil, f.fetchErr(core.CodeTransfer, err)
	}

	m := &Metadata{
		FetchedAt: f.now().UTC(),
		Dataset:   f.src.Dataset,
		File:      f.src.FileName,
		SizeBytes: info.Size(),
		RowCount:  rows,
		SHA256:    sum,
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, f.fetchErr(core.CodeTransfer, err)
	}
	if err := writeFileAtomic(f.MetadataPath(), data); err != nil {
		return nil, f.fetchErr(core.CodeTransfer, err)
	}
	return m, nil
}

// digestFile returns the hex SHA-256 of the file and its CSV data row count.
func digestFile(path string) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h := sha256.New()
	r := csv.NewReader(io.TeeReader(file, h))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	records := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("count rows in %s: %w", path, err)
		}
		records++
	}

	rows := records - 1
	if rows < 0 {
		rows = 0
	}
	return hex.EncodeToString(h.Sum(nil)), rows, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
