// SPDX-License-Identifier: Apache-2.0

// Package session binds one demo sequencer to one viewer.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adiadia/flowsim/internal/clock"
	"github.com/adiadia/flowsim/internal/demos"
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/metrics"
	"github.com/adiadia/flowsim/internal/sequencer"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Recorder receives a record for every run that ends.
type Recorder interface {
	Record(rec domain.RunRecord)
}

type RunRequest struct {
	Fixture string  `json:"fixture,omitempty"`
	Query   string  `json:"query,omitempty"`
	Mode    string  `json:"mode,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	demo     *demos.Demo
	seq      *sequencer.Sequencer
	released atomic.Bool
}

func (s *Session) Demo() *demos.Demo { return s.demo }

// Run resolves the requested fixture and plays it, superseding any run in
// flight. A positive Speed replaces the session speed before the run starts.
func (s *Session) Run(req RunRequest) (sequencer.RunInfo, error) {
	f, err := s.demo.Resolve(req.Fixture, req.Query, req.Mode)
	if err != nil {
		return sequencer.RunInfo{}, err
	}
	if req.Speed != 0 {
		if err := s.seq.SetSpeed(req.Speed); err != nil {
			return sequencer.RunInfo{}, err
		}
	}

	info, err := s.seq.RunScenario(f)
	if errors.Is(err, sequencer.ErrClosed) {
		return sequencer.RunInfo{}, domain.ErrSessionClosed
	}
	return info, err
}

func (s *Session) Reset() { s.seq.Reset() }

func (s *Session) Cancel() { s.seq.CancelAll() }

func (s *Session) Snapshot() domain.Snapshot { return s.seq.Snapshot() }

func (s *Session) Current() (sequencer.RunInfo, bool) { return s.seq.Current() }

func (s *Session) Subscribe(buffer int) (<-chan domain.Snapshot, func()) {
	return s.seq.Subscribe(buffer)
}

func (s *Session) Closed() bool { return s.seq.Closed() }

type Options struct {
	Capacity int
	TTL      time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
	Recorder Recorder
}

// Manager keeps open sessions in a bounded LRU. Sessions that fall out of it,
// by capacity, expiry or explicit close, are torn down.
type Manager struct {
	catalog  *demos.Catalog
	cache    *expirable.LRU[uuid.UUID, *Session]
	clock    clock.Clock
	logger   *slog.Logger
	recorder Recorder
	active   atomic.Int64

	// mu makes the lookup and TTL refresh in Get atomic with Close.
	mu sync.Mutex
}

func NewManager(catalog *demos.Catalog, opts Options) *Manager {
	if opts.Capacity <= 0 {
		opts.Capacity = 256
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		catalog:  catalog,
		clock:    opts.Clock,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	m.cache = expirable.NewLRU[uuid.UUID, *Session](opts.Capacity, m.evicted, opts.TTL)
	return m
}

// evicted runs under the cache lock and must not call back into the cache.
// A session is released once even if it is evicted twice.
func (m *Manager) evicted(id uuid.UUID, s *Session) {
	s.seq.Close()
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	metrics.SetActiveSessions(int(m.active.Add(-1)))
	m.logger.Info("session closed", "session_id", id, "demo", s.demo.Name())
}

// Open starts a session on the named demo.
func (m *Manager) Open(demo string) (*Session, error) {
	d, err := m.catalog.Get(demo)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.New(),
		CreatedAt: m.clock.Now(),
		demo:      d,
	}
	s.seq = sequencer.New(d, sequencer.Options{
		Clock:    m.clock,
		Logger:   m.logger.With("session_id", s.ID),
		Observer: m.observer(s),
	})

	metrics.SetActiveSessions(int(m.active.Add(1)))
	m.cache.Add(s.ID, s)
	m.logger.Info("session opened", "session_id", s.ID, "demo", demo)
	return s, nil
}

// Get returns an open session and refreshes its expiry.
// A session that expired between the lookup and the refresh is dropped.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.cache.Get(id)
	if ok && !s.Closed() {
		m.cache.Add(id, s)
		if !s.Closed() {
			return s, nil
		}
	}
	if ok {
		m.cache.Remove(id)
	}
	return nil, fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound)
}

// Close tears a session down.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cache.Remove(id) {
		return fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound)
	}
	return nil
}

func (m *Manager) Len() int { return m.cache.Len() }

// Shutdown closes every open session.
func (m *Manager) Shutdown() {
	m.cache.Purge()
}

func (m *Manager) observer(s *Session) sequencer.Observer {
	return sequencer.ObserverFunc(func(info sequencer.RunInfo) {
		if m.recorder == nil {
			return
		}
		m.recorder.Record(domain.RunRecord{
			ID:        info.ID,
			SessionID: s.ID,
			Demo:      info.Demo,
			Fixture:   info.Fixture,
			Mode:      info.Mode,
			Path:      info.Path,
			Outcome:   info.Outcome,
			Speed:     info.Speed,
			Scripted:  info.Terminal,
			StartedAt: info.StartedAt,
			EndedAt:   info.EndedAt,
		})
	})
}
