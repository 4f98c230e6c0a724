package maintenance

import (
	"context"
	"time"

	"github.com/pulselabs/pulsevote/internal/database"
	"go.uber.org/zap"
)

const sweepInterval = time.Minute

// Worker sweeps polls whose expiry has passed, marking them inactive so the
// vote path and the trending ranker stop considering them.
type Worker struct {
	db     database.Client
	logger *zap.Logger
}

// New creates a new maintenance worker.
func New(db database.Client, logger *zap.Logger) *Worker {
	return &Worker{
		db:     db,
		logger: logger.Named("maintenance_worker"),
	}
}

// Start runs the expiry sweep loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Maintenance worker started", zap.Duration("interval", sweepInterval))

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Maintenance worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep deactivates every poll whose expiry timestamp has passed.
func (w *Worker) sweep(ctx context.Context) {
	deactivated, err := w.db.Model().Poll().DeactivateExpired(ctx, time.Now())
	if err != nil {
		w.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}

	if deactivated > 0 {
		w.logger.Info("Deactivated expired polls", zap.Int64("count", deactivated))
	}
}
