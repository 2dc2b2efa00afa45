// Package report renders a standalone HTML page describing one pipeline run.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/JonMunkholm/salesetl/internal/pipeline"
)

// FileName returns the report file name for a run.
func FileName(s *pipeline.Summary) string {
	id := s.RunID
	if id == "" {
		id = s.StartedAt.UTC().Format("20060102_150405")
	}
	return "run_" + id + ".html"
}

// WriteFile renders s into dir and returns the written path. The file is
// written to a temporary name first and renamed into place.
func WriteFile(ctx context.Context, dir string, s *pipeline.Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	var buf bytes.Buffer
	if err := Page(s).Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	path := filepath.Join(dir, FileName(s))
	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install report: %w", err)
	}
	return path, nil
}

func formatRemoved(n int, ratio float64) string {
	return fmt.Sprintf("%d (%.2f%%)", n, ratio*100)
}

// sortedReasons returns the drop reasons in name order.
func sortedReasons(dropped map[string]int) []string {
	reasons := make([]string, 0, len(dropped))
	for r := range dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64) + "s"
}
