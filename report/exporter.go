package report

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
)

const filePrefix = "wb_ranking_"

// Exporter writes ranking results into a directory and prunes old reports.
type Exporter struct {
	dir       string
	format    string
	retention time.Duration
	now       func() time.Time
}

// NewExporter builds an exporter for format (csv, xlsx, json or dual).
func NewExporter(dir, format string, retention time.Duration) *Exporter {
	return &Exporter{dir: dir, format: format, retention: retention, now: time.Now}
}

// Filename renders the report file name for a product at ts.
func Filename(productID int64, ts time.Time, ext string) string {
	return fmt.Sprintf("%s%d_%s.%s", filePrefix, productID, ts.Format("20060102_150405"), ext)
}

// Export writes result and stamps its ExportPath with the primary file.
func (e *Exporter) Export(result *models.RankingResult) (string, error) {
	if result == nil {
		return "", errors.New("nil ranking result")
	}
	ts := e.now()
	base := func(ext string) string {
		return filepath.Join(e.dir, Filename(result.ProductID, ts, ext))
	}

	var (
		writer  Writer
		primary string
		err     error
	)
	switch e.format {
	case "csv":
		primary = base("csv")
		writer, err = NewCSVWriter(primary)
	case "json":
		primary = base("jsonl")
		writer, err = NewJSONWriter(primary)
	case "dual":
		primary = base("csv")
		writer, err = NewDualWriter(primary, base("jsonl"))
	case "xlsx", "":
		primary = base("xlsx")
		writer, err = NewXLSXWriter(primary)
	default:
		return "", fmt.Errorf("unsupported output format: %s", e.format)
	}
	if err != nil {
		return "", err
	}

	if err := writer.Write(result); err != nil {
		writer.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return "", fmt.Errorf("validate report: %w", err)
	}

	result.ExportPath = primary
	slog.Info("report exported",
		slog.String("path", primary),
		slog.String("format", e.format),
		slog.Int("found", result.FoundKeywords),
	)

	if e.retention > 0 {
		if removed, err := e.CleanupOld(); err != nil {
			slog.Warn("report cleanup failed", slog.Any("error", err))
		} else if removed > 0 {
			slog.Info("old reports removed", slog.Int("count", removed))
		}
	}
	return primary, nil
}

// CleanupOld removes report files older than the retention period.
func (e *Exporter) CleanupOld() (int, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read output dir: %w", err)
	}

	cutoff := e.now().Add(-e.retention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
