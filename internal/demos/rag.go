// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"github.com/adiadia/flowsim/internal/sequencer"
)

const (
	ragMiss = "cache-miss"
	ragHit  = "cache-hit"
)

// ragRetrieval are the pipeline stages a cache hit skips.
var ragRetrieval = []string{"embedding", "search", "rerank", "context", "llm"}

func ragScript() scenario.Script {
	edge := func(id string) sequencer.Step {
		return scenario.Now(sequencer.ActivateEdge(id))
	}
	merge := func(m domain.Metrics) sequencer.Step {
		return scenario.Now(sequencer.MergeMetrics(m))
	}
	stage := func(name, id, edgeID string, lead int, working string, d int, done string, m domain.Metrics) scenario.Phase {
		return scenario.Linear(name,
			scenario.After(ms(lead), say(id, domain.NodeProcessing, working)),
			edge(edgeID),
			scenario.After(ms(d), say(id, domain.NodeComplete, done)),
			merge(m),
		)
	}
	respond := scenario.Linear("respond", scenario.Now(at("response", domain.NodeComplete)))

	skipped := make([]sequencer.Effect, 0, len(ragRetrieval))
	for _, id := range ragRetrieval {
		skipped = append(skipped, say(id, domain.NodeInactive, "Skipped"))
	}

	return scenario.Script{
		Phases: []scenario.Phase{
			scenario.Linear("query",
				scenario.Now(at("user-query", domain.NodeActive)),
				edge("conn-1"),
			),
			scenario.Branch("cache", ragModeOf, map[string][]scenario.Phase{
				ragMiss: {
					scenario.Linear("lookup",
						scenario.After(ms(500), say("cache", domain.NodeProcessing, "Checking cache...")),
						scenario.After(ms(800), say("cache", domain.NodeActive, "Cache Miss")),
						edge("conn-2"),
					),
					stage("embed", "embedding", "conn-3", 300, "Converting to vector...", 600, "Vector created",
						domain.Metrics{"latency": 0.7}),
					stage("search", "search", "conn-4", 0, "Searching 50,000 chunks...", 1000, "Top 20 retrieved",
						domain.Metrics{"latency": 1.3}),
					stage("rerank", "rerank", "conn-5", 0, "Re-ranking top 20 → 5", 700, "Top 5 selected",
						domain.Metrics{"latency": 1.7}),
					stage("context", "context", "conn-6", 0, "Assembling 3,200 tokens", 400, "Context ready",
						domain.Metrics{"tokensUsed": 3200.0, "latency": 1.9}),
					stage("generate", "llm", "conn-7", 0, "Generating response...", 1500, "Response generated",
						domain.Metrics{"latency": 2.34, "cost": 0.0034}),
					respond,
				},
				ragHit: {
					scenario.Linear("lookup",
						scenario.After(ms(500), say("cache", domain.NodeProcessing, "Checking cache...")),
						scenario.After(ms(300), say("cache", domain.NodeComplete, "Cache Hit! ⚡")),
						edge("conn-8"),
						merge(domain.Metrics{"latency": 0.12, "cost": 0.0001}),
					),
					respond,
					scenario.Linear("skip", scenario.Together(skipped...)...),
				},
			}),
		},
		Trailing: []scenario.Phase{
			scenario.Branch("store", ragModeOf, map[string][]scenario.Phase{
				ragMiss: {scenario.Linear("store",
					scenario.After(ms(500), say("cache", domain.NodeComplete, "Response cached")),
				)},
				ragHit: nil,
			}),
		},
		Mode: ragModeOf,
		Result: func(f domain.Fixture) (domain.Result, string) {
			return domain.Result{
				Text:       f.Result,
				Sources:    f.Sources,
				Confidence: f.Value("confidence"),
			}, f.Result
		},
	}
}

// ragModeOf maps the cache discriminant of a fixture to its diagram mode.
func ragModeOf(f domain.Fixture) string {
	if f.Cached {
		return ragHit
	}
	return ragMiss
}

func withRagMode(f domain.Fixture, mode string) domain.Fixture {
	f.Cached = mode == ragHit
	return f
}
