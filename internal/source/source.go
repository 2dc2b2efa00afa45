// Package source keeps a local copy of the raw sales dataset.
//
// The cached file under raw/ is reused while it is valid: present, at least
// the configured minimum size, younger than the configured maximum age and,
// when extraction metadata exists, matching the recorded checksum. Otherwise
// the dataset archive is downloaded from Kaggle, the previous file is backed
// up and new metadata is written.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JonMunkholm/salesetl/internal/config"
	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/logging"
)

// Reasons a cached file is not usable.
const (
	ReasonMissing  = "missing"
	ReasonTooSmall = "too_small"
	ReasonStale    = "stale"
	ReasonChecksum = "checksum_mismatch"
)

// CacheState describes the cached source file.
type CacheState struct {
	Path   string        `json:"path"`
	Exists bool          `json:"exists"`
	Valid  bool          `json:"valid"`
	Reason string        `json:"reason,omitempty"`
	Size   int64         `json:"size_bytes"`
	Age    time.Duration `json:"-"`
}

// Result reports where the source file is and how it got there.
type Result struct {
	Path     string     `json:"path"`
	Fetched  bool       `json:"fetched"`
	Backup   string     `json:"backup,omitempty"`
	Cache    CacheState `json:"cache"`
	Metadata *Metadata  `json:"metadata,omitempty"`
}

// Fetcher resolves the raw source file, downloading it when needed.
type Fetcher struct {
	src    config.SourceConfig
	paths  config.PathsConfig
	client *http.Client
	now    func() time.Time

	newBackOff func() backoff.BackOff
}

// NewFetcher returns a fetcher. A nil client uses http.DefaultClient.
func NewFetcher(src config.SourceConfig, paths config.PathsConfig, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		src:    src,
		paths:  paths,
		client: client,
		now:    time.Now,

		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Path returns the location of the cached source file.
func (f *Fetcher) Path() string {
	return filepath.Join(f.paths.RawDir(), f.src.FileName)
}

// MetadataPath returns the location of the extraction metadata file.
func (f *Fetcher) MetadataPath() string {
	return filepath.Join(f.paths.MetadataDir(), MetadataFile)
}

// Inspect reports whether the cached file can be used as is.
func (f *Fetcher) Inspect() (CacheState, error) {
	st := CacheState{Path: f.Path()}

	info, err := os.Stat(st.Path)
	if errors.Is(err, fs.ErrNotExist) {
		st.Reason = ReasonMissing
		return st, nil
	}
	if err != nil {
		return st, &core.FetchError{Dataset: f.src.Dataset, Code: core.CodeCacheInvalid, Err: err}
	}

	st.Exists = true
	st.Size = info.Size()
	st.Age = f.now().Sub(info.ModTime())

	switch {
	case st.Size < f.src.MinFileSize:
		st.Reason = ReasonTooSmall
	case f.src.MaxAge > 0 && st.Age > f.src.MaxAge:
		st.Reason = ReasonStale
	}
	if st.Reason != "" {
		return st, nil
	}

	meta, err := ReadMetadata(f.MetadataPath())
	if err != nil {
		return st, &core.FetchError{Dataset: f.src.Dataset, Code: core.CodeCacheInvalid, Err: err}
	}
	if meta != nil && meta.File == f.src.FileName {
		sum, _, err := digestFile(st.Path)
		if err != nil {
			return st, &core.FetchError{Dataset: f.src.Dataset, Code: core.CodeCacheInvalid, Err: err}
		}
		if sum != meta.SHA256 {
			st.Reason = ReasonChecksum
			return st, nil
		}
	}

	st.Valid = true
	return st, nil
}

// Ensure returns a usable source file. A valid cached copy is used unless
// force is set. Without credentials a stale cached copy is still used; any
// other missing or invalid copy is an error.
func (f *Fetcher) Ensure(ctx context.Context, force bool) (*Result, error) {
	logger := logging.WithFields(ctx, "stage", "extract", "dataset", f.src.Dataset)

	st, err := f.Inspect()
	if err != nil {
		return nil, err
	}
	res := &Result{Path: st.Path, Cache: st}

	if st.Valid && !force {
		logger.Info("using cached source", "path", st.Path, "size_bytes", st.Size)
		return res, nil
	}

	if !f.src.HasCredentials() {
		if !force && st.Reason == ReasonStale {
			logger.Warn("cached source is stale and no Kaggle credentials are configured, using it anyway",
				"path", st.Path, "age", st.Age.Round(time.Hour))
			return res, nil
		}
		return nil, &core.FetchError{
			Dataset: f.src.Dataset,
			Code:    core.CodeNoCredentials,
			Err:     fmt.Errorf("cached source %s (%s) and KAGGLE_USERNAME/KAGGLE_KEY not set", st.Path, reasonOrForced(st, force)),
		}
	}

	logger.Info("fetching source", "reason", reasonOrForced(st, force))

	for _, dir := range []string{f.paths.RawDir(), f.paths.BackupDir(), f.paths.MetadataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &core.FetchError{Dataset: f.src.Dataset, Code: core.CodeTransfer, Err: err}
		}
	}

	if st.Exists {
		backup, err := f.backup(st.Path)
		if err != nil {
			logger.Warn("failed to back up cached source", "error", err)
		} else {
			res.Backup = backup
			logger.Info("backed up cached source", "backup", backup)
		}
	}

	start := f.now()
	if err := f.download(ctx, st.Path); err != nil {
		return nil, err
	}

	meta, err := f.writeMetadata(st.Path)
	if err != nil {
		return nil, err
	}
	res.Fetched = true
	res.Metadata = meta

	logger.Info("source fetched",
		"path", st.Path,
		"size_bytes", meta.SizeBytes,
		"rows", meta.RowCount,
		"duration", f.now().Sub(start),
	)
	return res, nil
}

func reasonOrForced(st CacheState, force bool) string {
	if force {
		return "forced"
	}
	return st.Reason
}

// backup copies path into the backup directory with a timestamp suffix.
func (f *Fetcher) backup(path string) (string, error) {
	ext := filepath.Ext(f.src.FileName)
	base := f.src.FileName[:len(f.src.FileName)-len(ext)]
	dst := filepath.Join(f.paths.BackupDir(), fmt.Sprintf("%s_%s%s", base, f.now().Format("20060102_150405"), ext))

	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
