package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job runs one round of background work and reports how many items it handled.
type Job func(ctx context.Context) (int, error)

// Ticker runs a job on a fixed interval until its context ends. Rounds
// never overlap: a slow round delays the next tick.
type Ticker struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger
}

func NewTicker(name string, interval time.Duration, job Job, logger *zap.Logger) *Ticker {
	return &Ticker{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With(zap.String("worker", name)),
	}
}

// Start runs the ticker in its own goroutine. The returned channel is
// closed once the loop has stopped.
func (t *Ticker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx)
	}()
	return done
}

func (t *Ticker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Worker stopped")
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	n, err := t.job(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		t.logger.Error("Worker round failed", zap.Error(err))
		return
	}
	if n > 0 {
		t.logger.Info("Worker round processed items", zap.Int("count", n))
	}
}
