// Package ranking drives keyword lists through the search client in bounded
// concurrent batches and aggregates the outcomes.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrTooManyKeywords is returned before any search when the keyword list
	// exceeds the configured ceiling.
	ErrTooManyKeywords = errors.New("too many keywords")
	ErrNoKeywords      = errors.New("no keywords to rank")
	ErrInvalidTarget   = errors.New("invalid target product")
)

// Searcher resolves one keyword into an outcome. Implementations never fail;
// per-keyword problems are carried in the outcome.
type Searcher interface {
	Search(ctx context.Context, keyword string, targetID int64, maxPages int) models.SearchOutcome
}

// Ranker is the ranking orchestrator.
type Ranker struct {
	searcher     Searcher
	observer     Observer
	maxKeywords  int
	maxExecution time.Duration
	batchPause   time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

// Option customises a Ranker.
type Option func(*Ranker)

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(r *Ranker) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock replaces the time source used for elapsed time and the ETA.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSleep replaces the pause between batches.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Ranker) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// New builds a Ranker over searcher with limits taken from cfg.
func New(searcher Searcher, cfg *config.Config, opts ...Option) *Ranker {
	r := &Ranker{
		searcher:     searcher,
		observer:     NopObserver{},
		maxKeywords:  cfg.MaxKeywords,
		maxExecution: cfg.MaxExecution,
		batchPause:   cfg.BatchPause,
		sleep:        sleepContext,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank searches every keyword for targetID and returns one outcome per
// keyword in input order. Run-global problems (invalid input, cancellation)
// are returned as errors; everything else ends up in the outcomes.
func (r *Ranker) Rank(ctx context.Context, targetID int64, keywords []string, maxPages, batchSize int) (*models.RankingResult, error) {
	if targetID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, targetID)
	}
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}
	if r.maxKeywords > 0 && len(keywords) > r.maxKeywords {
		return nil, fmt.Errorf("%w: %d exceeds the limit of %d", ErrTooManyKeywords, len(keywords), r.maxKeywords)
	}
	if maxPages < 1 {
		return nil, fmt.Errorf("max pages must be positive, got %d", maxPages)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	start := r.now()
	total := len(keywords)
	batches := (total + batchSize - 1) / batchSize
	outcomes := make([]models.SearchOutcome, total)
	acc := &accumulator{}
	eta := &etaEstimator{}

	slog.Info("ranking started",
		slog.Int64("product_id", targetID),
		slog.Int("keywords", total),
		slog.Int("max_pages", maxPages),
		slog.Int("batch_size", batchSize),
	)

	for batch := 0; batch < batches; batch++ {
		lo := batch * batchSize
		hi := min(lo+batchSize, total)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ranking cancelled: %w", err)
		}
		if r.maxExecution > 0 && r.now().Sub(start) >= r.maxExecution {
			message := fmt.Sprintf("execution time limit %s exceeded", r.maxExecution)
			for i := lo; i < total; i++ {
				outcomes[i] = models.Failed(keywords[i], 0, message)
			}
			acc.add(outcomes[lo:])
			slog.Warn("ranking deadline reached",
				slog.Int("processed", lo),
				slog.Int("skipped", total-lo),
				slog.Duration("limit", r.maxExecution),
			)
			r.observer.Error(fmt.Sprintf("%s after %d of %d keywords", message, lo, total))
			break
		}

		batchStart := r.now()
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				outcomes[i] = r.searcher.Search(ctx, keywords[i], targetID, maxPages)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ranking cancelled: %w", err)
		}

		acc.add(outcomes[lo:hi])
		eta.observe(r.now().Sub(batchStart))
		snapshot := acc.snapshot()
		r.observer.Progress(Progress{
			Current: hi,
			Total:   total,
			Message: fmt.Sprintf("%d found, %d not found, %d errors", snapshot.Succeeded, snapshot.NotFound, snapshot.Errored),
			ETA:     eta.remaining(batches - batch - 1),
		})

		if hi < total && r.batchPause > 0 {
			if err := r.sleep(ctx, r.batchPause); err != nil {
				return nil, fmt.Errorf("ranking cancelled: %w", err)
			}
		}
	}

	result := &models.RankingResult{
		ProductID:        targetID,
		ProductName:      productName(targetID, outcomes),
		Outcomes:         outcomes,
		TotalKeywords:    total,
		FoundKeywords:    countFound(outcomes),
		ExecutionSeconds: r.now().Sub(start).Seconds(),
		Stats:            acc.snapshot(),
		StartedAt:        start,
	}

	slog.Info("ranking finished",
		slog.Int64("product_id", targetID),
		slog.Int("found", result.FoundKeywords),
		slog.Int("total", result.TotalKeywords),
		slog.Float64("seconds", result.ExecutionSeconds),
	)

	if result.FoundKeywords == 0 {
		r.observer.Notice(fmt.Sprintf("product %d was not found in the first %d pages for any of %d keywords", targetID, maxPages, total))
	} else {
		r.observer.Success(fmt.Sprintf("product found for %d of %d keywords (%.1f%%)", result.FoundKeywords, total, result.FoundPercent()))
	}
	return result, nil
}

func countFound(outcomes []models.SearchOutcome) int {
	found := 0
	for _, o := range outcomes {
		if o.IsFound() {
			found++
		}
	}
	return found
}

// productName takes the name of the first found product.
func productName(targetID int64, outcomes []models.SearchOutcome) string {
	for _, o := range outcomes {
		if o.IsFound() && o.Product.Name != "" {
			return o.Product.Name
		}
	}
	return fmt.Sprintf("Product %d", targetID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
