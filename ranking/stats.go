package ranking

import (
	"time"

	"github.com/aluiziolira/go-wb-ranker/models"
)

// accumulator tracks running statistics for one run. It is only touched by
// the orchestrating goroutine after a batch has joined.
type accumulator struct {
	stats models.Statistics
}

func (a *accumulator) add(outcomes []models.SearchOutcome) {
	for _, o := range outcomes {
		a.stats.Processed++
		switch {
		case o.IsFound():
			a.stats.Succeeded++
			a.stats.PositionSum += o.Position
			if a.stats.BestPosition == 0 || o.Position < a.stats.BestPosition {
				a.stats.BestPosition = o.Position
			}
			if o.Position > a.stats.WorstPosition {
				a.stats.WorstPosition = o.Position
			}
		case o.IsError():
			a.stats.Errored++
		default:
			a.stats.NotFound++
		}
	}
}

func (a *accumulator) snapshot() models.Statistics {
	out := a.stats
	if out.Succeeded > 0 {
		out.MeanPosition = float64(out.PositionSum) / float64(out.Succeeded)
	}
	return out
}

const (
	etaWindow       = 5
	defaultBatchETA = 2 * time.Second
)

// etaEstimator predicts remaining time from the mean of recent batch durations.
type etaEstimator struct {
	samples []time.Duration
}

func (e *etaEstimator) observe(d time.Duration) {
	e.samples = append(e.samples, d)
	if len(e.samples) > etaWindow {
		e.samples = e.samples[len(e.samples)-etaWindow:]
	}
}

func (e *etaEstimator) perBatch() time.Duration {
	if len(e.samples) == 0 {
		return defaultBatchETA
	}
	var total time.Duration
	for _, s := range e.samples {
		total += s
	}
	return total / time.Duration(len(e.samples))
}

func (e *etaEstimator) remaining(batchesLeft int) time.Duration {
	if batchesLeft <= 0 {
		return 0
	}
	return e.perBatch() * time.Duration(batchesLeft)
}
