package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/history"
	"github.com/aluiziolira/go-wb-ranker/keywords"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/aluiziolira/go-wb-ranker/ranking"
	"github.com/aluiziolira/go-wb-ranker/report"
	"github.com/gofrs/flock"
)

const lockName = ".wb_ranker.lock"

var errRunInProgress = errors.New("another ranking run holds the lock")

// rankJob is one load, rank, export and record cycle.
type rankJob struct {
	cfg       *config.Config
	productID int64
	source    string
	loader    *keywords.Loader
	ranker    *ranking.Ranker
	exporter  *report.Exporter
	store     *history.Store
}

func (j *rankJob) Run(ctx context.Context) error {
	if err := os.MkdirAll(j.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(j.cfg.OutputDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return errRunInProgress
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("release run lock", slog.Any("error", err))
		}
	}()

	list, err := j.loader.Load(ctx, j.source)
	if err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}

	result, err := j.ranker.Rank(ctx, j.productID, list, j.cfg.MaxPages, j.cfg.Concurrency)
	if err != nil {
		return err
	}

	if _, err := j.exporter.Export(result); err != nil {
		return fmt.Errorf("export report: %w", err)
	}

	if j.store != nil {
		runID, err := j.store.SaveRun(ctx, result)
		if err != nil {
			slog.Error("saving run history", slog.Any("error", err))
		} else {
			slog.Debug("run recorded", slog.Int64("run_id", runID))
		}
	}

	printSummary(result)
	return nil
}

func printSummary(result *models.RankingResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Ranking complete")
	fmt.Printf("  Product:        %s (%d)\n", result.ProductName, result.ProductID)
	fmt.Printf("  Keywords:       %d\n", result.TotalKeywords)
	fmt.Printf("  Found:          %d (%.1f%%)\n", result.FoundKeywords, result.FoundPercent())
	fmt.Printf("  Not found:      %d\n", result.Stats.NotFound)
	fmt.Printf("  Errors:         %d\n", result.Stats.Errored)
	if result.FoundKeywords > 0 {
		fmt.Printf("  Mean position:  %.1f\n", result.Stats.MeanPosition)
		fmt.Printf("  Best / worst:   %d / %d\n", result.Stats.BestPosition, result.Stats.WorstPosition)
	}
	fmt.Printf("  Duration:       %s\n", report.FormatDuration(result.ExecutionSeconds))
	fmt.Printf("  Report:         %s\n", result.ExportPath)
	fmt.Println(separator)
}

func printHistory(ctx context.Context, store *history.Store, productID int64) error {
	runs, err := store.RecentRuns(ctx, productID, 10)
	if errors.Is(err, history.ErrNotFound) {
		fmt.Printf("No recorded runs for product %d\n", productID)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Recent runs for %s (%d)\n", runs[0].ProductName, productID)
	for _, run := range runs {
		fmt.Printf("  %s  found %d/%d  best %d  mean %.1f  errors %d\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.FoundKeywords, run.TotalKeywords,
			run.BestPosition, run.MeanPosition, run.Errored,
		)
	}
	return nil
}
