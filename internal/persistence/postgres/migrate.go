// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	embeddedmigrations "github.com/adiadia/flowsim/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaMigrationLockID int64 = 0x464c4f575f4d4752 // "FLOW_MGR"

// journalTable is the only table the service reads and writes.
const journalTable = "demo_runs"

var journalColumns = []string{
	"id", "session_id", "demo", "fixture", "mode", "path",
	"outcome", "speed", "scripted_ms", "started_at", "ended_at",
}

const outcomeConstraint = "demo_runs_outcome_check"

var errNilPool = errors.New("nil database pool")

type SchemaHealthChecker struct {
	pool *pgxpool.Pool
}

func NewSchemaHealthChecker(pool *pgxpool.Pool) *SchemaHealthChecker {
	return &SchemaHealthChecker{pool: pool}
}

func (h *SchemaHealthChecker) Check(ctx context.Context) error {
	return SchemaReady(ctx, h.pool)
}

// EnsureSchema applies the embedded migrations that have not run yet, under
// an advisory lock so concurrent replicas migrate once.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errNilPool
	}
	if logger == nil {
		logger = slog.Default()
	}

	started := time.Now()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection for schema bootstrap: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaMigrationLockID); err != nil {
		return fmt.Errorf("acquire schema bootstrap lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, unlockErr := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, schemaMigrationLockID); unlockErr != nil {
			logger.Error("schema bootstrap unlock failed", "error", unlockErr)
		}
	}()

	pending, err := pendingMigrations(ctx, conn)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		if err := applyMigration(ctx, conn, migration); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		logger.Info("migration applied", "file", migration.Name)
	}

	logger.Info("schema ready",
		"applied", len(pending),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return SchemaReady(ctx, pool)
}

// pendingMigrations returns the embedded files not yet recorded in
// schema_migrations, in filename order.
func pendingMigrations(ctx context.Context, conn *pgxpool.Conn) ([]embeddedmigrations.File, error) {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := embeddedmigrations.Ordered()
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no embedded migrations found")
	}

	rows, err := conn.Query(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	return unapplied(files, applied), nil
}

func unapplied(files []embeddedmigrations.File, applied []string) []embeddedmigrations.File {
	out := make([]embeddedmigrations.File, 0, len(files))
	for _, f := range files {
		if !slices.Contains(applied, f.Name) {
			out = append(out, f)
		}
	}
	return out
}

func applyMigration(ctx context.Context, conn *pgxpool.Conn, migration embeddedmigrations.File) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, migration.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, migration.Name); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// SchemaReady reports whether the journal table has every column the
// repository uses and its outcome constraint.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errNilPool
	}

	rows, err := pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
	`, journalTable)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", journalTable, err)
	}
	present, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("inspect %s: %w", journalTable, err)
	}
	if len(present) == 0 {
		return fmt.Errorf("required table missing: %s", journalTable)
	}
	if missing := missingColumns(present); len(missing) > 0 {
		return fmt.Errorf("required columns missing: %s", strings.Join(missing, ", "))
	}

	var constrained bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = $1)`,
		outcomeConstraint,
	).Scan(&constrained); err != nil {
		return fmt.Errorf("check constraint %s: %w", outcomeConstraint, err)
	}
	if !constrained {
		return fmt.Errorf("required constraint missing: %s", outcomeConstraint)
	}
	return nil
}

func missingColumns(present []string) []string {
	var missing []string
	for _, c := range journalColumns {
		if !slices.Contains(present, c) {
			missing = append(missing, journalTable+"."+c)
		}
	}
	return missing
}
