// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(demo string, endedAt time.Time) domain.RunRecord {
	return domain.RunRecord{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Demo:      demo,
		Fixture:   "default",
		Outcome:   domain.RunCompleted,
		Speed:     1,
		StartedAt: endedAt.Add(-time.Second),
		EndedAt:   endedAt,
	}
}

// gatedStore blocks every insert until release is closed.
type gatedStore struct {
	*MemoryStore
	release chan struct{}

	mu      sync.Mutex
	inserts int
}

func (s *gatedStore) InsertRun(ctx context.Context, rec domain.RunRecord) error {
	<-s.release
	s.mu.Lock()
	s.inserts++
	s.mu.Unlock()
	return s.MemoryStore.InsertRun(ctx, rec)
}

type failingStore struct{ *MemoryStore }

func (failingStore) PurgeRunsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestRunWritesQueuedRecords(t *testing.T) {
	store := NewMemoryStore(10)
	j := New(store, 8, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = j.Run(ctx)
	}()

	now := time.Now()
	for i := 0; i < 3; i++ {
		j.Record(record("rag", now.Add(time.Duration(i)*time.Second)))
	}

	require.Eventually(t, func() bool {
		recs, err := store.ListRecentRuns(context.Background(), "", 10)
		return err == nil && len(recs) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRecordDropsWhenQueueIsFull(t *testing.T) {
	store := NewMemoryStore(10)
	j := New(store, 2, quietLogger())

	for i := 0; i < 5; i++ {
		j.Record(record("idp", time.Now()))
	}
	assert.Len(t, j.queue, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.Run(ctx))

	recs, err := store.ListRecentRuns(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRecordNeverBlocksOnSlowStore(t *testing.T) {
	store := &gatedStore{MemoryStore: NewMemoryStore(10), release: make(chan struct{})}
	j := New(store, 1, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = j.Run(ctx)
	}()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 50; i++ {
			j.Record(record("insights", time.Now()))
		}
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a stalled store")
	}

	cancel()
	close(store.release)
	<-done

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.LessOrEqual(t, store.inserts, 2)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	store := NewMemoryStore(10)
	j := New(store, 16, quietLogger())

	for i := 0; i < 4; i++ {
		j.Record(record("talktodata", time.Now()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, j.Run(ctx))

	recs, err := store.ListRecentRuns(context.Background(), "talktodata", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Empty(t, j.queue)
}

func TestRecentFiltersAndClampsLimit(t *testing.T) {
	store := NewMemoryStore(1000)
	j := New(store, 1, quietLogger())
	ctx := context.Background()

	base := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		demo := "rag"
		if i%2 == 1 {
			demo = "idp"
		}
		require.NoError(t, store.InsertRun(ctx, record(demo, base.Add(time.Duration(i)*time.Second))))
	}

	recs, err := j.Recent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 50)
	assert.Equal(t, base.Add(59*time.Second), recs[0].EndedAt, "newest first")

	recs, err = j.Recent(ctx, "rag", 5)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for _, r := range recs {
		assert.Equal(t, "rag", r.Demo)
	}
	assert.Equal(t, base.Add(58*time.Second), recs[0].EndedAt)

	recs, err = j.Recent(ctx, "", 10_000)
	require.NoError(t, err)
	assert.Len(t, recs, 50)
}

func TestMemoryStoreKeepsNewest(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertRun(ctx, record("rag", base.Add(time.Duration(i)*time.Minute))))
	}

	recs, err := store.ListRecentRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, base.Add(4*time.Minute), recs[0].EndedAt)
	assert.Equal(t, base.Add(2*time.Minute), recs[2].EndedAt)
}

func TestMemoryStoreCopiesPath(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	rec := record("insights", time.Now())
	rec.Path = []string{"route", "respond"}
	require.NoError(t, store.InsertRun(ctx, rec))
	rec.Path[0] = "mutated"

	recs, err := store.ListRecentRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"route", "respond"}, recs[0].Path)
}

func TestPurgeDeletesOldRecords(t *testing.T) {
	store := NewMemoryStore(10)
	j := New(store, 1, quietLogger())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.InsertRun(ctx, record("rag", now.Add(-48*time.Hour))))
	require.NoError(t, store.InsertRun(ctx, record("rag", now.Add(-25*time.Hour))))
	require.NoError(t, store.InsertRun(ctx, record("rag", now.Add(-time.Hour))))

	n, err := j.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	recs, err := store.ListRecentRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPurgePropagatesStoreError(t *testing.T) {
	j := New(failingStore{NewMemoryStore(1)}, 1, quietLogger())
	_, err := j.Purge(context.Background(), time.Hour)
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewRetentionRejectsBadInput(t *testing.T) {
	j := New(NewMemoryStore(1), 1, quietLogger())

	_, err := NewRetention(j, "not a schedule", time.Hour, quietLogger())
	assert.ErrorContains(t, err, "parse purge schedule")

	_, err = NewRetention(j, "@hourly", 0, quietLogger())
	assert.ErrorContains(t, err, "retention window must be positive")
}

func TestRetentionPurgesOnSchedule(t *testing.T) {
	store := NewMemoryStore(10)
	j := New(store, 1, quietLogger())
	ctx := context.Background()

	require.NoError(t, store.InsertRun(ctx, record("idp", time.Now().Add(-72*time.Hour))))
	require.NoError(t, store.InsertRun(ctx, record("idp", time.Now())))

	r, err := NewRetention(j, "@every 1s", 24*time.Hour, quietLogger())
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- r.Run(runCtx) }()

	require.Eventually(t, func() bool {
		recs, err := store.ListRecentRuns(ctx, "", 10)
		return err == nil && len(recs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
