package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/xuri/excelize/v2"
)

func sampleResult() *models.RankingResult {
	outcomes := []models.SearchOutcome{
		models.Found("dress", models.Product{ID: 5, Name: "Dress", Price: 1299, Brand: "Acme", Rating: 4.8, Feedbacks: 10}, 106, 2),
		models.NotFound("skirt", 5),
		models.Failed("hat", 0, "upstream error after 3 attempts: http status 500"),
		models.Found("summer dress", models.Product{ID: 5, Name: "Dress", Price: 1199}, 4, 1),
	}
	return &models.RankingResult{
		ProductID:        5,
		ProductName:      "Dress",
		Outcomes:         outcomes,
		TotalKeywords:    len(outcomes),
		FoundKeywords:    2,
		ExecutionSeconds: 75,
		Stats: models.Statistics{
			Processed: 4, Succeeded: 2, NotFound: 1, Errored: 1,
			PositionSum: 110, MeanPosition: 55, BestPosition: 4, WorstPosition: 106,
		},
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCSVWriterWritesFoundRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want header + 2 found rows", len(records))
	}
	if strings.Join(records[0], ",") != "row,keyword,status,position,price,page" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if got := strings.Join(records[1], ","); got != "1,dress,found,106,1299.00,2" {
		t.Fatalf("unexpected first row: %s", got)
	}
	if records[2][0] != "2" || records[2][1] != "summer dress" {
		t.Fatalf("unexpected second row: %v", records[2])
	}
}

func TestJSONWriterWritesEveryOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var records []outcomeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record outcomeRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, record)
	}
	if len(records) != 4 {
		t.Fatalf("records=%d, want 4", len(records))
	}
	statuses := []string{statusFound, statusNotFound, statusError, statusFound}
	for i, want := range statuses {
		if records[i].Status != want {
			t.Fatalf("records[%d].Status = %q, want %q", i, records[i].Status, want)
		}
	}
	if records[0].Price == nil || *records[0].Price != 1299 {
		t.Fatalf("found record should carry price: %+v", records[0])
	}
	if records[1].Price != nil {
		t.Fatalf("not-found record should have no price")
	}
	if !strings.Contains(records[2].Error, "3 attempts") {
		t.Fatalf("error record lost description: %+v", records[2])
	}
}

func TestXLSXWriterSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}

	book, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if strings.Join(sheets, ",") != "Results,Summary,Statistics" {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := book.GetRows(sheetResults)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("result rows = %d, want 3", len(rows))
	}
	if rows[1][1] != "dress" || rows[1][3] != "106" || rows[1][6] != "Acme" {
		t.Fatalf("unexpected results row: %v", rows[1])
	}

	name, err := book.GetCellValue(sheetSummary, "B3")
	if err != nil || name != "Dress" {
		t.Fatalf("summary product name = %q, %v", name, err)
	}
	best, err := book.GetCellValue(sheetStatistics, "B3")
	if err != nil || best != "4" {
		t.Fatalf("statistics best position = %q, %v", best, err)
	}
}

func TestDualWriter(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "r.csv")
	jsonPath := filepath.Join(dir, "r.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[float64]string{
		3.44:   "3.4s",
		75:     "1m 15s",
		3725.2: "1h 2m 5s",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}
