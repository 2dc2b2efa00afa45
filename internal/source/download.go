package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/salesetl/internal/core"
	"github.com/JonMunkholm/salesetl/internal/logging"
)

// maxDownloadTries bounds attempts for transient failures.
const maxDownloadTries = 4

var zipMagic = []byte("PK\x03\x04")

// download fetches the dataset and installs the source file at dst.
func (f *Fetcher) download(ctx context.Context, dst string) error {
	logger := logging.WithFields(ctx, "stage", "extract")

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if err := tmp.Truncate(0); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := f.fetchOnce(ctx, tmp)
		if err != nil {
			logger.Warn("download attempt failed", "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(maxDownloadTries),
	)
	if err != nil {
		var fe *core.FetchError
		if errors.As(err, &fe) {
			return fe
		}
		return f.fetchErr(core.CodeTransfer, err)
	}

	if err := tmp.Sync(); err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	return f.install(tmp, dst)
}

// fetchOnce performs one GET and streams the body into w.
func (f *Fetcher) fetchOnce(ctx context.Context, w io.Writer) error {
	if f.src.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.src.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.downloadURL(), nil)
	if err != nil {
		return backoff.Permanent(f.fetchErr(core.CodeTransfer, err))
	}
	req.SetBasicAuth(f.src.Username, f.src.Key)
	req.Header.Set("Accept", "application/zip, text/csv, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := f.fetchErr(core.CodeRemoteStatus, fmt.Errorf("GET %s: %s: %s",
			req.URL.Redacted(), resp.Status, strings.TrimSpace(string(snippet))))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return f.fetchErr(core.CodeTransfer, fmt.Errorf("read body: %w", err))
	}
	return nil
}

func (f *Fetcher) downloadURL() string {
	base := strings.TrimRight(f.src.APIURL, "/")
	parts := strings.Split(f.src.Dataset, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/datasets/download/" + strings.Join(parts, "/")
}

// install moves the downloaded payload to dst. A zip archive is searched
// for the configured file name; any other payload is taken as the file.
func (f *Fetcher) install(payload *os.File, dst string) error {
	info, err := payload.Stat()
	if err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}

	head, err := bufio.NewReader(payload).Peek(len(zipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return f.fetchErr(core.CodeTransfer, err)
	}

	var src io.Reader = payload
	if bytes.Equal(head, zipMagic) {
		zr, err := zip.NewReader(payload, info.Size())
		if err != nil {
			return f.fetchErr(core.CodeArchiveContent, fmt.Errorf("open archive: %w", err))
		}
		entry, err := f.findEntry(zr)
		if err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return f.fetchErr(core.CodeArchiveContent, fmt.Errorf("open %s: %w", entry.Name, err))
		}
		defer rc.Close()
		src = rc
	} else if _, err := payload.Seek(0, io.SeekStart); err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}

	out, err := os.CreateTemp(filepath.Dir(dst), ".extract-*")
	if err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	defer os.Remove(out.Name())

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return f.fetchErr(core.CodeArchiveContent, fmt.Errorf("extract: %w", err))
	}
	if err := out.Close(); err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}

	if err := os.Rename(out.Name(), dst); err != nil {
		return f.fetchErr(core.CodeTransfer, err)
	}
	return nil
}

func (f *Fetcher) findEntry(zr *zip.Reader) (*zip.File, error) {
	names := make([]string, 0, len(zr.File))
	for _, e := range zr.File {
		if e.FileInfo().IsDir() {
			continue
		}
		if strings.EqualFold(path.Base(e.Name), f.src.FileName) {
			return e, nil
		}
		names = append(names, e.Name)
	}
	return nil, f.fetchErr(core.CodeArchiveContent,
		fmt.Errorf("%s not found in archive (entries: %s)", f.src.FileName, strings.Join(names, ", ")))
}

func (f *Fetcher) fetchErr(code string, err error) *core.FetchError {
	return &core.FetchError{Dataset: f.src.Dataset, Code: code, Err: err}
}
