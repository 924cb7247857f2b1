// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunOutcome string

const (
	RunRunning    RunOutcome = "RUNNING"
	RunCompleted  RunOutcome = "COMPLETED"
	RunCanceled   RunOutcome = "CANCELED"
	RunSuperseded RunOutcome = "SUPERSEDED"
)

// RunRecord is the journal entry written once a run has ended.
type RunRecord struct {
	ID        uuid.UUID     `json:"id"`
	SessionID uuid.UUID     `json:"session_id"`
	Demo      string        `json:"demo"`
	Fixture   string        `json:"fixture"`
	Mode      string        `json:"mode,omitempty"`
	Path      []string      `json:"path"`
	Outcome   RunOutcome    `json:"outcome"`
	Speed     float64       `json:"speed"`
	Scripted  time.Duration `json:"scripted_ns"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}
