// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention purges journal records older than a window on a cron schedule.
type Retention struct {
	journal *Journal
	window  time.Duration
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewRetention validates schedule, a standard five-field cron expression or
// a descriptor such as "@hourly".
func NewRetention(j *Journal, schedule string, window time.Duration, logger *slog.Logger) (*Retention, error) {
	if window <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %s", window)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Retention{
		journal: j,
		window:  window,
		cron:    cron.New(),
		logger:  logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.purge); err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is done and any purge in
// progress has finished.
func (r *Retention) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("journal retention started", "window", r.window.String())
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}

func (r *Retention) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.journal.Purge(ctx, r.window); err != nil {
		r.logger.Error("journal purge failed", "error", err)
	}
}
