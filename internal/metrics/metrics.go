// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	runsTotalCounter        *prometheus.CounterVec
	effectsAppliedCounter   *prometheus.CounterVec
	staleFiresCounter       *prometheus.CounterVec
	revealTicksCounter      prometheus.Counter
	activeSessionsGauge     prometheus.Gauge
	journalDroppedCounter   prometheus.Counter
	scriptedDurationMetric  *prometheus.HistogramVec
	journalWriteLatencyHist prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demo_runs_total",
				Help: "Total number of ended demo runs by demo and outcome.",
			},
			[]string{"demo", "outcome"},
		)

		effectsAppliedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_effects_applied_total",
				Help: "Total number of step effects applied by demo and kind.",
			},
			[]string{"demo", "kind"},
		)

		staleFiresCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sequencer_stale_fires_total",
				Help: "Timer fires dropped because their run was canceled or superseded.",
			},
			[]string{"demo"},
		)

		revealTicksCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "typewriter_ticks_total",
				Help: "Total number of typewriter reveal ticks.",
			},
		)

		activeSessionsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "demo_sessions_active",
				Help: "Number of open demo sessions.",
			},
		)

		journalDroppedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "journal_dropped_total",
				Help: "Run records dropped because the journal queue was full.",
			},
		)

		scriptedDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "demo_run_scripted_duration_seconds",
				Help:    "Scripted offset of the terminal effect of each run.",
				Buckets: []float64{0.5, 1, 2, 4, 6, 8, 12, 16, 24},
			},
			[]string{"demo"},
		)

		journalWriteLatencyHist = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "journal_write_latency_seconds",
				Help:    "Latency of run journal writes in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			effectsAppliedCounter,
			staleFiresCounter,
			revealTicksCounter,
			activeSessionsGauge,
			journalDroppedCounter,
			scriptedDurationMetric,
			journalWriteLatencyHist,
		)
	})
}

// Touch makes the outcome series of a demo visible at /metrics before the
// first run ends.
func Touch(demo string) {
	Init()
	for _, outcome := range []domain.RunOutcome{
		domain.RunCompleted,
		domain.RunCanceled,
		domain.RunSuperseded,
	} {
		runsTotalCounter.WithLabelValues(demo, string(outcome))
	}
}

func IncRunOutcome(demo string, outcome domain.RunOutcome) {
	Init()
	runsTotalCounter.WithLabelValues(demo, string(outcome)).Inc()
}

func IncEffectApplied(demo, kind string) {
	Init()
	effectsAppliedCounter.WithLabelValues(demo, kind).Inc()
}

func IncStaleFire(demo string) {
	Init()
	staleFiresCounter.WithLabelValues(demo).Inc()
}

func IncRevealTick() {
	Init()
	revealTicksCounter.Inc()
}

func SetActiveSessions(n int) {
	Init()
	activeSessionsGauge.Set(float64(n))
}

func IncJournalDropped() {
	Init()
	journalDroppedCounter.Inc()
}

func ObserveScriptedDuration(demo string, d time.Duration) {
	Init()
	scriptedDurationMetric.WithLabelValues(demo).Observe(d.Seconds())
}

func ObserveJournalWrite(d time.Duration) {
	Init()
	journalWriteLatencyHist.Observe(d.Seconds())
}
