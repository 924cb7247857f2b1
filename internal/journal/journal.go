// SPDX-License-Identifier: Apache-2.0

// Package journal records ended demo runs without ever blocking a sequencer.
package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/metrics"
)

type Store interface {
	InsertRun(ctx context.Context, rec domain.RunRecord) error
	ListRecentRuns(ctx context.Context, demo string, limit int) ([]domain.RunRecord, error)
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Journal queues run records in a bounded channel drained by Run. When the
// queue is full the record is dropped and counted.
type Journal struct {
	store    Store
	queue    chan domain.RunRecord
	logger   *slog.Logger
	notifier Notifier
}

func New(store Store, buffer int, logger *slog.Logger) *Journal {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:  store,
		queue:  make(chan domain.RunRecord, buffer),
		logger: logger,
	}
}

// SetNotifier registers n to be called after each stored record. It must be
// called before Run.
func (j *Journal) SetNotifier(n Notifier) {
	j.notifier = n
}

// Record enqueues rec. It never blocks.
func (j *Journal) Record(rec domain.RunRecord) {
	select {
	case j.queue <- rec:
	default:
		metrics.IncJournalDropped()
		j.logger.Warn("journal queue full, run record dropped",
			"run_id", rec.ID,
			"demo", rec.Demo,
			"outcome", rec.Outcome,
		)
	}
}

// Run writes queued records until ctx is done, then flushes what is left
// with a short deadline.
func (j *Journal) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		case <-ctx.Done():
			j.flush()
			return nil
		}
	}
}

func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case rec := <-j.queue:
			j.write(ctx, rec)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, rec domain.RunRecord) {
	started := time.Now()
	err := j.store.InsertRun(ctx, rec)
	metrics.ObserveJournalWrite(time.Since(started))
	if err != nil {
		j.logger.Error("journal write failed", "run_id", rec.ID, "error", err)
		return
	}
	j.logger.Debug("run journaled", "run_id", rec.ID, "outcome", rec.Outcome)
	if j.notifier != nil {
		j.notifier.RunJournaled(ctx, rec)
	}
}

// Recent returns the newest records first, optionally for one demo.
func (j *Journal) Recent(ctx context.Context, demo string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return j.store.ListRecentRuns(ctx, demo, limit)
}

// Purge deletes records that ended more than retention ago.
func (j *Journal) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	n, err := j.store.PurgeRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("journal purged", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}
