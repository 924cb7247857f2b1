// SPDX-License-Identifier: Apache-2.0

// Package repository persists the run journal in Postgres.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRepository stores ended runs in demo_runs. It satisfies journal.Store.
type RunRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRunRepository(pool *pgxpool.Pool, logger *slog.Logger) *RunRepository {
	return &RunRepository{
		pool:   pool,
		logger: logger,
	}
}

// InsertRun is idempotent on the run ID.
func (r *RunRepository) InsertRun(ctx context.Context, rec domain.RunRecord) error {
	path := rec.Path
	if path == nil {
		path = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO demo_runs (
			id, session_id, demo, fixture, mode, path,
			outcome, speed, scripted_ms, started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID,
		rec.SessionID,
		rec.Demo,
		rec.Fixture,
		rec.Mode,
		path,
		rec.Outcome,
		rec.Speed,
		rec.Scripted.Milliseconds(),
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		r.logger.Error("insert demo run failed", "run_id", rec.ID, "error", err)
		return err
	}
	return nil
}

// ListRecentRuns returns up to limit runs, newest first. An empty demo lists
// every demo.
func (r *RunRepository) ListRecentRuns(ctx context.Context, demo string, limit int) ([]domain.RunRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, demo, fixture, mode, path,
		       outcome, speed, scripted_ms, started_at, ended_at
		FROM demo_runs
		WHERE ($1 = '' OR demo = $1)
		ORDER BY ended_at DESC, id
		LIMIT $2
	`, demo, limit)
	if err != nil {
		r.logger.Error("list demo runs failed", "demo", demo, "error", err)
		return nil, err
	}

	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		r.logger.Error("scan demo runs failed", "demo", demo, "error", err)
		return nil, err
	}
	return runs, nil
}

func (r *RunRepository) PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM demo_runs WHERE ended_at < $1`, cutoff)
	if err != nil {
		r.logger.Error("purge demo runs failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.CollectableRow) (domain.RunRecord, error) {
	var (
		rec        domain.RunRecord
		outcome    string
		scriptedMS int64
	)
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Demo,
		&rec.Fixture,
		&rec.Mode,
		&rec.Path,
		&outcome,
		&rec.Speed,
		&scriptedMS,
		&rec.StartedAt,
		&rec.EndedAt,
	)
	rec.Outcome = domain.RunOutcome(outcome)
	rec.Scripted = time.Duration(scriptedMS) * time.Millisecond
	return rec, err
}
