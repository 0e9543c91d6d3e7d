// Package worker runs a job once at startup and then every day at a fixed
// wall-clock time.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is one run of the scheduled work. It returns how many records it touched.
type Job func(ctx context.Context) (int, error)

type Daily struct {
	Hour, Minute int
	// Timeout bounds each run. Zero means no deadline.
	Timeout time.Duration
	Job     Job
	Log     zerolog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// NextRun returns the first time strictly after now at hour:minute in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is done.
func (d *Daily) Run(ctx context.Context) {
	now := d.now
	if now == nil {
		now = time.Now
	}
	after := d.after
	if after == nil {
		after = time.After
	}

	d.runOnce(ctx)
	for {
		next := NextRun(now(), d.Hour, d.Minute)
		d.Log.Info().Time("next_run", next).Msg("sweep scheduled")
		select {
		case <-ctx.Done():
			d.Log.Info().Msg("shutdown signal received, stopping worker")
			return
		case <-after(next.Sub(now())):
			d.runOnce(ctx)
		}
	}
}

func (d *Daily) runOnce(ctx context.Context) {
	runCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := d.Job(runCtx)
	if err != nil {
		d.Log.Error().Err(err).Int("processed", n).Msg("sweep run error")
		return
	}
	d.Log.Info().Int("processed", n).Dur("took", time.Since(start)).Msg("sweep run complete")
}
