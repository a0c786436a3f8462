package ranking

import (
	"fmt"
	"log/slog"
	"time"
)

// Progress is one tick emitted after each batch.
type Progress struct {
	Current int
	Total   int
	Message string
	ETA     time.Duration
}

// Observer receives progress ticks and terminal notifications of a run.
type Observer interface {
	Progress(p Progress)
	// Notice reports a non-fatal terminal condition, such as a run that
	// located the target for no keyword.
	Notice(message string)
	Success(message string)
	Error(message string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Progress(Progress) {}
func (NopObserver) Notice(string)     {}
func (NopObserver) Success(string)    {}
func (NopObserver) Error(string)      {}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o LogObserver) Progress(p Progress) {
	percent := 0.0
	if p.Total > 0 {
		percent = float64(p.Current) / float64(p.Total) * 100
	}
	o.logger().Info("ranking progress",
		slog.Int("current", p.Current),
		slog.Int("total", p.Total),
		slog.String("percent", fmt.Sprintf("%.1f%%", percent)),
		slog.Duration("eta", p.ETA.Round(time.Second)),
		slog.String("message", p.Message),
	)
}

func (o LogObserver) Notice(message string) {
	o.logger().Warn("ranking notice", slog.String("message", message))
}

func (o LogObserver) Success(message string) {
	o.logger().Info("ranking complete", slog.String("message", message))
}

func (o LogObserver) Error(message string) {
	o.logger().Error("ranking error", slog.String("message", message))
}
