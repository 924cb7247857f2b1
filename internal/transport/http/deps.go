// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/adiadia/flowsim/internal/demos"
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/session"
	"github.com/google/uuid"
)

type DemoCatalog interface {
	Get(name string) (*demos.Demo, error)
	List() []*demos.Demo
}

type SessionStore interface {
	Open(demo string) (*session.Session, error)
	Get(id uuid.UUID) (*session.Session, error)
	Close(id uuid.UUID) error
}

type RunJournal interface {
	Recent(ctx context.Context, demo string, limit int) ([]domain.RunRecord, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
