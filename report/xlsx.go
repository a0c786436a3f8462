package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/xuri/excelize/v2"
)

const (
	sheetResults    = "Results"
	sheetSummary    = "Summary"
	sheetStatistics = "Statistics"
)

// XLSXWriter builds a workbook with results, summary and statistics sheets.
// The file is written on Close.
type XLSXWriter struct {
	filename string
	book     *excelize.File
	now      func() time.Time
	mu       sync.Mutex
	closed   bool
}

// NewXLSXWriter prepares an empty workbook destined for filename.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", sheetResults); err != nil {
		book.Close()
		return nil, fmt.Errorf("rename results sheet: %w", err)
	}
	for _, name := range []string{sheetSummary, sheetStatistics} {
		if _, err := book.NewSheet(name); err != nil {
			book.Close()
			return nil, fmt.Errorf("create %s sheet: %w", name, err)
		}
	}
	return &XLSXWriter{filename: filename, book: book, now: time.Now}, nil
}

// Write fills all three sheets from result.
func (xw *XLSXWriter) Write(result *models.RankingResult) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if err := xw.writeResults(result); err != nil {
		return err
	}
	if err := xw.writeSummary(result); err != nil {
		return err
	}
	return xw.writeStatistics(result)
}

func (xw *XLSXWriter) writeResults(result *models.RankingResult) error {
	header := []any{"#", "Keyword", "Status", "Position", "Page", "Price", "Brand", "Rating", "Feedbacks"}
	if err := xw.setRow(sheetResults, 1, header); err != nil {
		return err
	}
	if err := xw.boldRow(sheetResults, len(header)); err != nil {
		return err
	}

	row := 1
	for _, o := range result.Outcomes {
		if !o.IsFound() {
			continue
		}
		row++
		values := []any{
			row - 1,
			o.Keyword,
			statusFound,
			o.Position,
			o.Page,
			o.Product.Price,
			o.Product.Brand,
			o.Product.Rating,
			o.Product.Feedbacks,
		}
		if err := xw.setRow(sheetResults, row, values); err != nil {
			return err
		}
	}
	if err := xw.book.SetColWidth(sheetResults, "B", "B", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func (xw *XLSXWriter) writeSummary(result *models.RankingResult) error {
	rows := [][]any{
		{"Parameter", "Value"},
		{"Product ID", result.ProductID},
		{"Product name", result.ProductName},
		{"Total keywords", result.TotalKeywords},
		{"Found", result.FoundKeywords},
		{"Not found", result.Stats.NotFound},
		{"Errors", result.Stats.Errored},
		{"Found, %", fmt.Sprintf("%.1f", result.FoundPercent())},
		{"Execution time", FormatDuration(result.ExecutionSeconds)},
		{"Report generated", xw.now().Format("2006-01-02 15:04:05")},
	}
	return xw.writeTable(sheetSummary, rows)
}

func (xw *XLSXWriter) writeStatistics(result *models.RankingResult) error {
	prices := summarise(result.Outcomes, func(o models.SearchOutcome) float64 { return o.Product.Price })
	pages := summarise(result.Outcomes, func(o models.SearchOutcome) float64 { return float64(o.Page) })

	rows := [][]any{
		{"Metric", "Value"},
		{"Mean position", fmt.Sprintf("%.1f", result.Stats.MeanPosition)},
		{"Best position", result.Stats.BestPosition},
		{"Worst position", result.Stats.WorstPosition},
		{"Mean price", fmt.Sprintf("%.2f", prices.mean)},
		{"Min price", fmt.Sprintf("%.2f", prices.min)},
		{"Max price", fmt.Sprintf("%.2f", prices.max)},
		{"Mean page", fmt.Sprintf("%.1f", pages.mean)},
		{"Max page", int(pages.max)},
		{"Errors", result.Stats.Errored},
	}
	return xw.writeTable(sheetStatistics, rows)
}

func (xw *XLSXWriter) writeTable(sheet string, rows [][]any) error {
	for i, values := range rows {
		if err := xw.setRow(sheet, i+1, values); err != nil {
			return err
		}
	}
	if err := xw.boldRow(sheet, 2); err != nil {
		return err
	}
	if err := xw.book.SetColWidth(sheet, "A", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func (xw *XLSXWriter) setRow(sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := xw.book.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (xw *XLSXWriter) boldRow(sheet string, columns int) error {
	style, err := xw.book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := xw.book.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}

// Close saves the workbook to disk.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.closed {
		return nil
	}
	xw.closed = true
	xw.book.SetActiveSheet(0)
	if err := xw.book.SaveAs(xw.filename); err != nil {
		xw.book.Close()
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return xw.book.Close()
}

// Validate ensures the workbook was written.
func (xw *XLSXWriter) Validate() error {
	return validateFile(xw.filename, "xlsx")
}

type summary struct {
	mean, min, max float64
}

func summarise(outcomes []models.SearchOutcome, value func(models.SearchOutcome) float64) summary {
	var s summary
	count := 0
	for _, o := range outcomes {
		if !o.IsFound() {
			continue
		}
		v := value(o)
		if count == 0 || v < s.min {
			s.min = v
		}
		if count == 0 || v > s.max {
			s.max = v
		}
		s.mean += v
		count++
	}
	if count > 0 {
		s.mean /= float64(count)
	}
	return s
}

// FormatDuration renders seconds as "1h 2m 3s", "2m 3s" or "3.4s".
func FormatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
