// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs a job on a fixed period, off the caller's
// goroutine. Each tick dispatches the job to its own worker so job
// latency never delays the next tick or the connection listener. Job
// failures and panics are logged and contained; they never propagate.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petitionworks/petitiond/lib/clock"
)

// DefaultInterval is the report cadence when none is configured.
const DefaultInterval = 20 * time.Second

// Runner drives a periodic job.
type Runner struct {
	// Interval between ticks. Defaults to DefaultInterval when zero.
	Interval time.Duration

	// Job is invoked once per tick on a fresh goroutine. Required.
	Job func(ctx context.Context) error

	// Clock provides the ticker. Defaults to the real clock.
	Clock clock.Clock

	// Logger receives job errors and panics. Required.
	Logger *slog.Logger
}

// Run ticks until ctx is cancelled, then waits for in-flight job
// invocations to finish before returning.
func (r *Runner) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			inFlight.Wait()
			return
		case <-ticker.C:
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				r.runOnce(ctx)
			}()
		}
	}
}

// runOnce executes the job with panic isolation. A panicking job must
// not take down the scheduler or the listener.
func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.Logger.Error("scheduled job panicked", "panic", recovered)
		}
	}()

	if err := r.Job(ctx); err != nil {
		r.Logger.Error("scheduled job failed", "error", err)
	}
}
