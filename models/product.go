// Package models defines data structures shared by the ranking engine.
package models

import "time"

// Product is a snapshot of one catalogue entry as returned by the search API.
type Product struct {
	ID        int64   `csv:"id" json:"id"`
	Name      string  `csv:"name" json:"name"`
	Price     float64 `csv:"price" json:"price"`
	Brand     string  `csv:"brand" json:"brand"`
	Rating    float64 `csv:"rating" json:"rating"`
	Feedbacks int     `csv:"feedbacks" json:"feedbacks"`
}

// SearchOutcome is the result of ranking one keyword.
//
// Position and Page are zero unless Product is set. Error is empty for both
// found and plain not-found outcomes.
type SearchOutcome struct {
	Keyword      string   `json:"keyword"`
	Product      *Product `json:"product,omitempty"`
	Position     int      `json:"position,omitempty"`
	Page         int      `json:"page,omitempty"`
	PagesScanned int      `json:"pages_scanned"`
	Error        string   `json:"error,omitempty"`
}

// Found builds an outcome for a keyword whose target was located.
func Found(keyword string, product Product, position, page int) SearchOutcome {
	return SearchOutcome{
		Keyword:      keyword,
		Product:      &product,
		Position:     position,
		Page:         page,
		PagesScanned: page,
	}
}

// NotFound builds an outcome for a keyword whose pages were exhausted.
func NotFound(keyword string, pagesScanned int) SearchOutcome {
	return SearchOutcome{Keyword: keyword, PagesScanned: pagesScanned}
}

// Failed builds an error outcome.
func Failed(keyword string, pagesScanned int, description string) SearchOutcome {
	return SearchOutcome{Keyword: keyword, PagesScanned: pagesScanned, Error: description}
}

// IsFound reports whether the target product was located.
func (o SearchOutcome) IsFound() bool {
	return o.Product != nil
}

// IsError reports whether the search ended with an error.
func (o SearchOutcome) IsError() bool {
	return o.Error != ""
}

// Statistics summarises positions over the found outcomes of a run.
type Statistics struct {
	Processed     int     `json:"processed"`
	Succeeded     int     `json:"succeeded"`
	NotFound      int     `json:"not_found"`
	Errored       int     `json:"errored"`
	PositionSum   int     `json:"position_sum"`
	MeanPosition  float64 `json:"mean_position"`
	BestPosition  int     `json:"best_position"`
	WorstPosition int     `json:"worst_position"`
}

// Failed returns the number of searches that did not locate the target.
func (s Statistics) Failed() int {
	return s.NotFound + s.Errored
}

// RankingResult holds the overall result of one ranking run.
type RankingResult struct {
	ProductID        int64           `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Outcomes         []SearchOutcome `json:"outcomes"`
	TotalKeywords    int             `json:"total_keywords"`
	FoundKeywords    int             `json:"found_keywords"`
	ExecutionSeconds float64         `json:"execution_seconds"`
	Stats            Statistics      `json:"stats"`
	StartedAt        time.Time       `json:"started_at"`
	ExportPath       string          `json:"export_path,omitempty"`
}

// FoundPercent returns the share of keywords with a found outcome.
func (r *RankingResult) FoundPercent() float64 {
	if r == nil || r.TotalKeywords == 0 {
		return 0
	}
	return float64(r.FoundKeywords) / float64(r.TotalKeywords) * 100
}
