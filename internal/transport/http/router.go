// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/flowsim/internal/demos"
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/metrics"
	"github.com/adiadia/flowsim/internal/session"
	"github.com/adiadia/flowsim/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Catalog           DemoCatalog
	Sessions          SessionStore
	Journal           RunJournal
	HealthChecker     HealthChecker
	Logger            *slog.Logger
	AdminToken        string
	SessionsPerMinute int
	Version           string
	Commit            string
	BuildDate         string
}

type fixtureView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

type demoSummary struct {
	Name           string        `json:"name"`
	Title          string        `json:"title"`
	Subtitle       string        `json:"subtitle"`
	Modes          []string      `json:"modes,omitempty"`
	DefaultMode    string        `json:"default_mode,omitempty"`
	DefaultFixture string        `json:"default_fixture"`
	Fixtures       []fixtureView `json:"fixtures"`
}

type costView struct {
	Items []domain.CostItem `json:"items"`
	Total float64           `json:"total"`
}

type demoDetail struct {
	demoSummary
	Diagram        domain.Diagram      `json:"diagram"`
	InitialMetrics domain.Metrics      `json:"initial_metrics"`
	RevealTickMS   int64               `json:"reveal_tick_ms"`
	CostBreakdown  map[string]costView `json:"cost_breakdown,omitempty"`
}

type sessionView struct {
	ID        uuid.UUID       `json:"session_id"`
	Demo      string          `json:"demo"`
	CreatedAt time.Time       `json:"created_at"`
	Snapshot  domain.Snapshot `json:"snapshot"`
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(chimiddleware.Recoverer)

	// ---------------- OPS ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- DEMOS ----------------

	r.Get("/demos", func(w http.ResponseWriter, r *http.Request) {
		list := deps.Catalog.List()
		out := make([]demoSummary, 0, len(list))
		for _, d := range list {
			out = append(out, summarize(d))
		}
		writeJSON(w, http.StatusOK, map[string]any{"demos": out})
	})

	r.Get("/demos/{demo}", func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Catalog.Get(chi.URLParam(r, "demo"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		mode := strings.TrimSpace(r.URL.Query().Get("mode"))
		if mode == "" {
			mode = d.DefaultMode()
		}
		writeJSON(w, http.StatusOK, describe(d, mode))
	})

	openSession := func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Open(chi.URLParam(r, "demo"))
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewSession(s))
	}
	if deps.SessionsPerMinute > 0 {
		r.With(middleware.RateLimitByClientIP(deps.SessionsPerMinute, logger)).
			Post("/demos/{demo}/sessions", openSession)
	} else {
		r.Post("/demos/{demo}/sessions", openSession)
	}

	// ---------------- SESSIONS ----------------

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookupSession(w, r, deps.Sessions, logger)
			if !ok {
				return
			}
			writeJSON(w, http.StatusOK, viewSession(s))
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid session ID")
				return
			}
			if err := deps.Sessions.Close(id); err != nil {
				writeDomainError(w, logger, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/runs", func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookupSession(w, r, deps.Sessions, logger)
			if !ok {
				return
			}

			req, err := decodeRunRequest(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			info, err := s.Run(req)
			if err != nil {
				writeDomainError(w, logger, err)
				return
			}

			logger.Info("run started via API",
				"session_id", s.ID,
				"run_id", info.ID,
				"demo", info.Demo,
				"fixture", info.Fixture,
			)
			writeJSON(w, http.StatusAccepted, info)
		})

		r.Post("/reset", func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookupSession(w, r, deps.Sessions, logger)
			if !ok {
				return
			}
			s.Reset()
			writeJSON(w, http.StatusOK, viewSession(s))
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookupSession(w, r, deps.Sessions, logger)
			if !ok {
				return
			}
			streamSnapshots(w, r, s, logger)
		})

		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			s, ok := lookupSession(w, r, deps.Sessions, logger)
			if !ok {
				return
			}
			serveWebSocket(w, r, s, logger)
		})
	})

	// ---------------- RUN JOURNAL (ADMIN) ----------------

	if deps.Journal != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				limit := 0
				if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
					n, err := strconv.Atoi(raw)
					if err != nil || n < 0 {
						writeError(w, http.StatusBadRequest, "invalid limit")
						return
					}
					limit = n
				}

				runs, err := deps.Journal.Recent(r.Context(), strings.TrimSpace(q.Get("demo")), limit)
				if err != nil {
					logger.Error("list journal runs failed", "error", err)
					writeError(w, http.StatusInternalServerError, "failed to list runs")
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
			})
		})
	}

	return r
}

func lookupSession(w http.ResponseWriter, r *http.Request, store SessionStore, logger *slog.Logger) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return nil, false
	}
	s, err := store.Get(id)
	if err != nil {
		writeDomainError(w, logger, err)
		return nil, false
	}
	return s, true
}

func summarize(d *demos.Demo) demoSummary {
	fixtures := d.Fixtures()
	views := make([]fixtureView, 0, len(fixtures))
	for _, f := range fixtures {
		views = append(views, fixtureView{
			Key:   f.Key,
			Label: f.Label,
			Icon:  f.Icon,
			Query: f.Query,
			Mode:  f.Mode,
		})
	}
	return demoSummary{
		Name:           d.Name(),
		Title:          d.Title(),
		Subtitle:       d.Subtitle(),
		Modes:          d.Modes(),
		DefaultMode:    d.DefaultMode(),
		DefaultFixture: d.DefaultFixture(),
		Fixtures:       views,
	}
}

// describe returns the diagram as drawn in mode: edges hidden in that mode
// are left out.
func describe(d *demos.Demo, mode string) demoDetail {
	diagram := d.Diagram()
	detail := demoDetail{
		demoSummary: summarize(d),
		Diagram: domain.Diagram{
			Nodes: diagram.Nodes,
			Edges: diagram.EdgesFor(mode),
		},
		InitialMetrics: d.InitialMetrics(),
		RevealTickMS:   d.RevealTick().Milliseconds(),
	}

	modes := d.Modes()
	if len(modes) == 0 {
		modes = []string{""}
	}
	for _, m := range modes {
		items := d.CostBreakdown(m)
		if len(items) == 0 {
			continue
		}
		if detail.CostBreakdown == nil {
			detail.CostBreakdown = make(map[string]costView, len(modes))
		}
		key := m
		if key == "" {
			key = "default"
		}
		detail.CostBreakdown[key] = costView{Items: items, Total: domain.CostTotal(items)}
	}
	return detail
}

func viewSession(s *session.Session) sessionView {
	return sessionView{
		ID:        s.ID,
		Demo:      s.Demo().Name(),
		CreatedAt: s.CreatedAt,
		Snapshot:  s.Snapshot(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps catalog and session errors to status codes. Anything
// unrecognised is logged and reported as a 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrDemoNotFound):
		writeError(w, http.StatusNotFound, "demo not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrSessionClosed):
		writeError(w, http.StatusGone, "session closed")
	case errors.Is(err, domain.ErrFixtureNotFound):
		writeError(w, http.StatusBadRequest, "fixture not found")
	case errors.Is(err, domain.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "unknown mode")
	case errors.Is(err, domain.ErrInvalidSpeed):
		writeError(w, http.StatusBadRequest, domain.ErrInvalidSpeed.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeRunRequest(r *http.Request) (session.RunRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return session.RunRequest{}, nil
	}

	var req session.RunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return session.RunRequest{}, nil
		}
		return session.RunRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return session.RunRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.Fixture = strings.TrimSpace(req.Fixture)
	req.Query = strings.TrimSpace(req.Query)
	req.Mode = strings.TrimSpace(req.Mode)
	return req, nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
