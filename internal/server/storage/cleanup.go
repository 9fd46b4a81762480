package storage

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired files. It is implemented by the lifecycle engine.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// CleanupService periodically sweeps expired files, independent of list
// traffic.
type CleanupService struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(sweeper Sweeper, interval time.Duration) *CleanupService {
	return &CleanupService{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval)

	go func() {
		defer close(cs.done)

		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	start := time.Now()

	removed, err := cs.sweeper.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("cleanup cycle failed", "error", err)
		return
	}

	if removed == 0 {
		slog.Debug("no expired files to clean up")
		return
	}

	slog.Info("cleanup cycle complete",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
