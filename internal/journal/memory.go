// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"sync"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
)

// MemoryStore keeps the last capacity records. It backs the journal when no
// database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	records  []domain.RunRecord
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) InsertRun(_ context.Context, rec domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Path = append([]string(nil), rec.Path...)
	s.records = append(s.records, rec)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return nil
}

func (s *MemoryStore) ListRecentRuns(_ context.Context, demo string, limit int) ([]domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RunRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if demo != "" && s.records[i].Demo != demo {
			continue
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *MemoryStore) PurgeRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, rec := range s.records {
		if rec.EndedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}
