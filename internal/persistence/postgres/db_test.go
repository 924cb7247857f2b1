// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"

	embeddedmigrations "github.com/adiadia/flowsim/migrations"
)

func TestNewPoolInvalidURL(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(context.Background(), "://not-valid", 0)
	if err == nil {
		t.Fatal("expected invalid URL to return an error")
	}
	if pool != nil {
		t.Fatal("expected pool to be nil on parse error")
	}
}

func TestNewPoolEmptyURL(t *testing.T) {
	t.Parallel()

	if _, err := NewPool(context.Background(), "", 0); err == nil {
		t.Fatal("expected empty URL to return an error")
	}
}

func TestSchemaChecksRejectNilPool(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := EnsureSchema(context.Background(), nil, logger); err == nil {
		t.Fatal("expected EnsureSchema to reject a nil pool")
	}
	if err := SchemaReady(context.Background(), nil); err == nil {
		t.Fatal("expected SchemaReady to reject a nil pool")
	}
}

func TestMissingColumns(t *testing.T) {
	t.Parallel()

	if got := missingColumns(journalColumns); len(got) != 0 {
		t.Fatalf("expected no missing columns got %v", got)
	}

	got := missingColumns([]string{"id", "demo"})
	if len(got) != len(journalColumns)-2 {
		t.Fatalf("expected %d missing columns got %v", len(journalColumns)-2, got)
	}
	if got[0] != "demo_runs.session_id" {
		t.Fatalf("expected qualified column names got %v", got)
	}
}

func TestUnappliedKeepsOrder(t *testing.T) {
	t.Parallel()

	files := []embeddedmigrations.File{
		{Name: "001_demo_runs.sql"},
		{Name: "002_demo_runs_outcome_check.sql"},
		{Name: "003_next.sql"},
	}

	got := unapplied(files, []string{"002_demo_runs_outcome_check.sql"})
	if len(got) != 2 || got[0].Name != "001_demo_runs.sql" || got[1].Name != "003_next.sql" {
		t.Fatalf("unexpected pending migrations %v", got)
	}
	if got := unapplied(files[:2], []string{"001_demo_runs.sql", "002_demo_runs_outcome_check.sql"}); len(got) != 0 {
		t.Fatalf("expected nothing pending got %v", got)
	}
}
