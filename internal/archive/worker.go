package archive

import (
	"context"
	"fmt"
	"ms-admission/internal/logger"
	"time"
)

// Worker drives the sweep on a fixed interval until its context is
// cancelled. One sweep failure does not stop the loop.
type Worker struct {
	Sweeper  *Sweeper
	Interval time.Duration
	Logger   *logger.Logger
}

func NewWorker(sweeper *Sweeper, interval time.Duration, log *logger.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{Sweeper: sweeper, Interval: interval, Logger: log}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Logger.LogSweep("START", fmt.Sprintf("sweep worker running every %s", w.Interval))

	for {
		select {
		case <-ctx.Done():
			w.Logger.LogSweep("STOP", "sweep worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Sweeper.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					w.Logger.LogSweep("STOP", "sweep interrupted by shutdown")
					return
				}
				w.Logger.Error("SWEEP", fmt.Sprintf("scheduled sweep failed: %v", err))
			}
		}
	}
}
