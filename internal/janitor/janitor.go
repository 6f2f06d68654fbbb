// Package janitor runs the periodic maintenance of the content store: the
// expiry sweep and the weekly bulk purge.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pavel-fokin/dropcode/internal/content"
)

// Maintainer is the part of content.Service the janitor drives.
type Maintainer interface {
	PurgeAll(ctx context.Context) (*content.PurgeResult, error)
	SweepExpired(ctx context.Context) (*content.SweepResult, error)
}

// Janitor owns the maintenance goroutines. A zero interval disables the
// corresponding job.
type Janitor struct {
	svc           Maintainer
	purgeInterval time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a janitor; nothing runs until Start.
func New(svc Maintainer, purgeInterval, sweepInterval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		svc:           svc,
		purgeInterval: purgeInterval,
		sweepInterval: sweepInterval,
		logger:        logger.With("component", "janitor"),
	}
}

// Start launches the jobs. The sweep runs immediately and then on every
// tick; the purge only on ticks, so a restart does not wipe live content.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	if j.sweepInterval > 0 {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			j.RunSweep(ctx)
			j.loop(ctx, j.sweepInterval, j.RunSweep)
		}()
	}

	if j.purgeInterval > 0 {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			j.loop(ctx, j.purgeInterval, j.RunPurge)
		}()
	}

	j.logger.Info("Janitor started",
		"purge_interval", j.purgeInterval.String(),
		"sweep_interval", j.sweepInterval.String(),
	)
}

// Stop cancels the jobs and waits for a running one to return.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	j.logger.Info("Janitor stopped")
}

func (j *Janitor) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// RunPurge performs one scheduled bulk purge.
func (j *Janitor) RunPurge(ctx context.Context) {
	start := time.Now()
	result, err := j.svc.PurgeAll(ctx)
	if err != nil {
		j.logger.Error("Scheduled purge failed", "error", err)
		return
	}
	j.logger.Info("Scheduled purge complete",
		"records_deleted", result.RecordsDeleted,
		"blobs_deleted", result.BlobsDeleted,
		"blob_errors", result.BlobErrors,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// RunSweep performs one expiry sweep.
func (j *Janitor) RunSweep(ctx context.Context) {
	result, err := j.svc.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("Expiry sweep failed", "error", err)
		return
	}
	j.logger.Debug("Expiry sweep complete", "records_deleted", result.RecordsDeleted)
}
