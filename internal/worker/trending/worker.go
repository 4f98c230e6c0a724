package trending

import (
	"context"
	"time"

	"github.com/pulselabs/pulsevote/internal/setup/config"
	"github.com/pulselabs/pulsevote/internal/trending"
	"go.uber.org/zap"
)

const defaultInterval = time.Minute

// Worker recomputes the trending ranking on a fixed cadence. It runs once
// immediately so a fresh deployment serves a ranking without waiting a full
// interval.
type Worker struct {
	ranker *trending.Ranker
	cfg    *config.Trending
	logger *zap.Logger
}

// New creates a new trending worker.
func New(ranker *trending.Ranker, cfg *config.Trending, logger *zap.Logger) *Worker {
	return &Worker{
		ranker: ranker,
		cfg:    cfg,
		logger: logger.Named("trending_worker"),
	}
}

// Start runs the recompute loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	interval := w.interval()
	w.logger.Info("Trending worker started", zap.Duration("interval", interval))

	w.recompute(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Trending worker stopped")
			return
		case <-ticker.C:
			w.recompute(ctx)
		}
	}
}

// recompute runs one ranking pass. Failures are logged and the loop keeps
// its cadence; the previous snapshot stays serveable.
func (w *Worker) recompute(ctx context.Context) {
	start := time.Now()

	snapshot, err := w.ranker.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Trending recompute failed", zap.Error(err))
		return
	}

	w.logger.Debug("Trending recompute finished",
		zap.Int("ranked", len(snapshot.Entries)),
		zap.Duration("elapsed", time.Since(start)))
}

func (w *Worker) interval() time.Duration {
	if w.cfg.Interval > 0 {
		return time.Duration(w.cfg.Interval) * time.Second
	}

	return defaultInterval
}
