// Package history records ranking runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a product has no recorded runs.
var ErrNotFound = errors.New("not found")

// Run is a stored summary of one ranking run.
type Run struct {
	ID            int64
	ProductID     int64
	ProductName   string
	StartedAt     time.Time
	TotalKeywords int
	FoundKeywords int
	Errored       int
	MeanPosition  float64
	BestPosition  int
	Seconds       float64
	ExportPath    string
}

// PositionPoint is the position of a product for one keyword in one run.
type PositionPoint struct {
	RunID     int64
	StartedAt time.Time
	Position  int
	Page      int
	Price     float64
}

// Store wraps the SQLite connection.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		total_keywords INTEGER NOT NULL,
		found_keywords INTEGER NOT NULL,
		errored INTEGER NOT NULL DEFAULT 0,
		mean_position REAL NOT NULL DEFAULT 0,
		best_position INTEGER NOT NULL DEFAULT 0,
		seconds REAL NOT NULL DEFAULT 0,
		export_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_product ON runs(product_id, started_at);

	CREATE TABLE IF NOT EXISTS outcomes (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		keyword TEXT NOT NULL,
		position INTEGER,
		page INTEGER,
		pages_scanned INTEGER NOT NULL,
		price REAL,
		error TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_keyword ON outcomes(keyword);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SaveRun stores result and its outcomes in one transaction and returns the run id.
func (s *Store) SaveRun(ctx context.Context, result *models.RankingResult) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (product_id, product_name, started_at, total_keywords, found_keywords,
		errored, mean_position, best_position, seconds, export_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ProductID, result.ProductName, result.StartedAt.UTC(), result.TotalKeywords,
		result.FoundKeywords, result.Stats.Errored, result.Stats.MeanPosition,
		result.Stats.BestPosition, result.ExecutionSeconds, result.ExportPath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO outcomes (run_id, seq, keyword, position, page, pages_scanned, price, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range result.Outcomes {
		var position, page sql.NullInt64
		var price sql.NullFloat64
		var errText sql.NullString
		if o.IsFound() {
			position = sql.NullInt64{Int64: int64(o.Position), Valid: true}
			page = sql.NullInt64{Int64: int64(o.Page), Valid: true}
			price = sql.NullFloat64{Float64: o.Product.Price, Valid: true}
		}
		if o.IsError() {
			errText = sql.NullString{String: o.Error, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, i, o.Keyword, position, page, o.PagesScanned, price, errText); err != nil {
			return 0, fmt.Errorf("insert outcome %q: %w", o.Keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit runs for productID, newest first.
func (s *Store) RecentRuns(ctx context.Context, productID int64, limit int) ([]Run, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, product_id, product_name, started_at, total_keywords, found_keywords,
		errored, mean_position, best_position, seconds, export_path
	FROM runs
	WHERE product_id = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.StartedAt, &r.TotalKeywords,
			&r.FoundKeywords, &r.Errored, &r.MeanPosition, &r.BestPosition, &r.Seconds, &r.ExportPath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs, nil
}

// PositionHistory returns the found positions of productID for keyword,
// oldest run first.
func (s *Store) PositionHistory(ctx context.Context, productID int64, keyword string) ([]PositionPoint, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT r.id, r.started_at, o.position, o.page, o.price
	FROM outcomes o
	JOIN runs r ON r.id = o.run_id
	WHERE r.product_id = ? AND o.keyword = ? AND o.position IS NOT NULL
	ORDER BY r.started_at ASC, r.id ASC`, productID, keyword)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var points []PositionPoint
	for rows.Next() {
		var p PositionPoint
		if err := rows.Scan(&p.RunID, &p.StartedAt, &p.Position, &p.Page, &p.Price); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
