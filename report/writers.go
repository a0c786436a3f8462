// Package report persists ranking results as CSV, XLSX or JSONL files.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// Writer persists one ranking result.
type Writer interface {
	Write(result *models.RankingResult) error
	Close() error
	Validate() error
}

const (
	statusFound    = "found"
	statusNotFound = "not_found"
	statusError    = "error"
)

func outcomeStatus(o models.SearchOutcome) string {
	switch {
	case o.IsFound():
		return statusFound
	case o.IsError():
		return statusError
	default:
		return statusNotFound
	}
}

// CSVWriter writes one row per found outcome.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"row", "keyword", "status", "position", "price", "page"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends the found outcomes of result.
func (cw *CSVWriter) Write(result *models.RankingResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	row := 0
	for _, o := range result.Outcomes {
		if !o.IsFound() {
			continue
		}
		row++
		record := []string{
			strconv.Itoa(row),
			o.Keyword,
			statusFound,
			strconv.Itoa(o.Position),
			strconv.FormatFloat(o.Product.Price, 'f', 2, 64),
			strconv.Itoa(o.Page),
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.file.Name(), "csv")
}

// outcomeRecord is the JSONL line layout.
type outcomeRecord struct {
	ProductID    int64    `json:"product_id"`
	Keyword      string   `json:"keyword"`
	Status       string   `json:"status"`
	Position     int      `json:"position,omitempty"`
	Page         int      `json:"page,omitempty"`
	PagesScanned int      `json:"pages_scanned"`
	Price        *float64 `json:"price,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// JSONWriter writes one JSON line per outcome, found or not.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends every outcome of result in JSONL format.
func (jw *JSONWriter) Write(result *models.RankingResult) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, o := range result.Outcomes {
		record := outcomeRecord{
			ProductID:    result.ProductID,
			Keyword:      o.Keyword,
			Status:       outcomeStatus(o),
			Position:     o.Position,
			Page:         o.Page,
			PagesScanned: o.PagesScanned,
			Error:        o.Error,
		}
		if o.IsFound() {
			price := o.Product.Price
			record.Price = &price
		}
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.file.Name(), "json")
}

func validateFile(name, kind string) error {
	info, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
