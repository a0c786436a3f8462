package keywords

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Format identifies a keyword file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported keyword file format")
	ErrFileTooLarge      = errors.New("keyword file too large")
	ErrEmpty             = errors.New("no valid keywords found")
)

var (
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
	zipHeader = []byte("PK\x03\x04")

	headerTerms = []string{"keyword", "query", "ключев", "запрос", "слово", "поисков"}
	// Report captions that marketplace analytics exports put above the data.
	captionTerms = []string{"период", "period", "выбранный", "предыдущий", "аналитика", "сводка", "статистика"}
)

// DetectFormat picks a format from a file name, falling back to sniffing data.
func DetectFormat(name string, data []byte) (Format, error) {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".txt"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return FormatXLSX, nil
	case strings.HasSuffix(lower, ".xls"):
		return "", fmt.Errorf("%w: legacy .xls, save the file as .xlsx", ErrUnsupportedFormat)
	}

	if bytes.HasPrefix(data, zipHeader) {
		return FormatXLSX, nil
	}
	if len(data) > 0 && (utf8.Valid(data) || !bytes.Contains(data, []byte{0})) {
		return FormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

// Parse extracts raw keyword cells from data. Header rows are skipped but no
// validation is applied; see Normalize.
func Parse(data []byte, format Format) ([]string, error) {
	switch format {
	case FormatCSV:
		return parseCSV(data)
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func decodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1251: %w", err)
	}
	slog.Debug("keyword file decoded as windows-1251")
	return decoded, nil
}

func parseCSV(data []byte) ([]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = sniffDelimiter(text)

	var out []string
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		cell := strings.TrimSpace(record[0])
		if first {
			first = false
			if isHeader(cell) {
				continue
			}
		}
		if cell != "" {
			out = append(out, cell)
		}
	}
	return out, nil
}

// sniffDelimiter prefers ';' when the first line uses it and has no commas.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	if bytes.IndexByte(line, ';') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return ';'
	}
	return ','
}

func isHeader(cell string) bool {
	return containsAny(strings.ToLower(cell), headerTerms)
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func parseXLSX(data []byte) ([]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmpty)
	}

	var fallback [][]string
	for i, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if i == 0 {
			fallback = rows
		}
		if row, col, ok := findKeywordColumn(rows); ok {
			slog.Debug("keyword column located",
				slog.String("sheet", sheet),
				slog.Int("header_row", row+1),
				slog.Int("column", col+1),
			)
			return columnValues(rows[row+1:], col), nil
		}
	}

	slog.Warn("no keyword column header found, using first column of first sheet",
		slog.String("sheet", sheets[0]),
	)
	if len(fallback) > 0 && len(fallback[0]) > 0 && isHeader(fallback[0][0]) {
		fallback = fallback[1:]
	}
	return columnValues(fallback, 0), nil
}

// findKeywordColumn scans the first rows of a sheet for a keyword-like header
// cell that has data below it.
func findKeywordColumn(rows [][]string) (int, int, bool) {
	const headerScanRows = 10
	for r := 0; r < len(rows) && r < headerScanRows; r++ {
		for c, cell := range rows[r] {
			if !isHeader(cell) {
				continue
			}
			if len(columnValues(rows[r+1:], c)) > 0 {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

func columnValues(rows [][]string, col int) []string {
	var out []string
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[col])
		if cell == "" {
			continue
		}
		if containsAny(strings.ToLower(cell), captionTerms) {
			slog.Debug("skipping caption cell", slog.String("value", cell))
			continue
		}
		out = append(out, cell)
	}
	return out
}
