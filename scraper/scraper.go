package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/parser"
	"golang.org/x/sync/semaphore"
)

// Client runs per-keyword searches with retries behind a shared concurrency gate.
type Client struct {
	transport Transport
	gate      *semaphore.Weighted
	policy    RetryPolicy
	minDelay  time.Duration
	maxDelay  time.Duration
	pageSize  int
	sleep     SleepFunc
	jitter    func(span time.Duration) time.Duration
	Metrics   *Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithSleep replaces the function used for every pause (jitter, rate-limit
// waits and backoff).
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithJitter replaces the random draw used for inter-page delays. fn receives
// the width of the configured delay range and returns an offset within it.
func WithJitter(fn func(span time.Duration) time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

// NewClient builds a client over transport configured from cfg. metrics may be nil.
func NewClient(cfg *config.Config, transport Transport, metrics *Metrics, opts ...Option) *Client {
	width := int64(cfg.Concurrency)
	if width < 1 {
		width = 1
	}
	c := &Client{
		transport: transport,
		gate:      semaphore.NewWeighted(width),
		policy:    PolicyFromConfig(cfg),
		minDelay:  cfg.MinDelay,
		maxDelay:  cfg.MaxDelay,
		pageSize:  cfg.PageSize,
		sleep:     sleepContext,
		jitter:    uniformJitter,
		Metrics:   metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func uniformJitter(span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	return rand.N(span + 1)
}

// Search looks for targetID in the first maxPages result pages for keyword.
// It always returns an outcome; retry exhaustion and rejected requests become
// error outcomes.
func (c *Client) Search(ctx context.Context, keyword string, targetID int64, maxPages int) models.SearchOutcome {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return c.finish(models.Failed(keyword, 0, fmt.Sprintf("search cancelled: %v", err)))
	}
	defer c.gate.Release(1)
	c.Metrics.AddInFlight(1)
	defer c.Metrics.AddInFlight(-1)

	attempts := c.policy.attempts()
	var lastErr error
	pagesScanned := 0

	for attempt := 0; attempt < attempts; attempt++ {
		outcome, scanned, err := c.scan(ctx, keyword, targetID, maxPages)
		if err == nil {
			return c.finish(outcome)
		}
		lastErr = err
		pagesScanned = scanned

		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.finish(models.Failed(keyword, pagesScanned, fmt.Sprintf("search cancelled: %v", ctxErr)))
		}

		label := errorTypeLabel(err)
		c.Metrics.IncError(label)

		var rejected ErrRequestRejected
		if errors.As(err, &rejected) {
			slog.Warn("search request rejected",
				slog.String("keyword", keyword),
				slog.Int("status", rejected.StatusCode),
				slog.Any("error", err),
			)
			return c.finish(models.Failed(keyword, pagesScanned, fmt.Sprintf("request rejected: %v", err)))
		}

		if attempt == attempts-1 {
			break
		}

		wait := c.policy.Backoff(attempt)
		var limited ErrRateLimited
		if errors.As(err, &limited) && limited.RetryAfter > wait {
			wait = limited.RetryAfter
		}
		c.Metrics.IncRetries()
		slog.Debug("retrying keyword search",
			slog.String("keyword", keyword),
			slog.Int("attempt", attempt+1),
			slog.String("category", label),
			slog.Duration("wait", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return c.finish(models.Failed(keyword, pagesScanned, fmt.Sprintf("search cancelled: %v", err)))
		}
	}

	slog.Warn("keyword search failed",
		slog.String("keyword", keyword),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr),
	)
	return c.finish(models.Failed(keyword, pagesScanned,
		fmt.Sprintf("upstream error after %d attempts: %v", attempts, lastErr)))
}

// scan walks pages sequentially. On error it reports how many pages were
// fully scanned before the failure.
func (c *Client) scan(ctx context.Context, keyword string, targetID int64, maxPages int) (models.SearchOutcome, int, error) {
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			delay := c.minDelay + c.jitter(c.maxDelay-c.minDelay)
			if err := c.sleep(ctx, delay); err != nil {
				return models.SearchOutcome{}, page - 1, err
			}
		}

		products, err := c.transport.SearchPage(ctx, keyword, page)
		if err != nil {
			return models.SearchOutcome{}, page - 1, err
		}

		for index, product := range products {
			if product.ID != targetID {
				continue
			}
			position, err := parser.Position(page, index, c.pageSize)
			if err != nil {
				return models.SearchOutcome{}, page, err
			}
			slog.Debug("target located",
				slog.String("keyword", keyword),
				slog.Int("page", page),
				slog.Int("position", position),
			)
			return models.Found(keyword, product, position, page), page, nil
		}
	}
	return models.NotFound(keyword, maxPages), maxPages, nil
}

func (c *Client) finish(outcome models.SearchOutcome) models.SearchOutcome {
	switch {
	case outcome.IsFound():
		c.Metrics.IncOutcome("found")
	case outcome.IsError():
		c.Metrics.IncOutcome("error")
	default:
		c.Metrics.IncOutcome("not_found")
	}
	return outcome
}

// HealthCheck issues a single first-page request and reports any failure.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.transport.SearchPage(ctx, "test", 1); err != nil {
		return fmt.Errorf("search api health check: %w", err)
	}
	return nil
}
