// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"github.com/adiadia/flowsim/internal/sequencer"
)

func insightsScript() scenario.Script {
	// the router's choice replaces the active edge each hop
	hop := func(edge string) sequencer.Step {
		return scenario.Now(sequencer.ReplaceEdges(edge))
	}
	spend := func(savings float64) scenario.Phase {
		return scenario.Dynamic("bill", func(f domain.Fixture) []sequencer.Step {
			return []sequencer.Step{scenario.Now(sequencer.MergeMetrics(domain.Metrics{
				"time":    f.Value("time"),
				"cost":    f.Value("cost"),
				"savings": savings,
			}))}
		})
	}

	return scenario.Script{
		Phases: []scenario.Phase{
			scenario.Linear("route",
				scenario.Now(at("query", domain.NodeActive)),
				hop("query-router"),
				scenario.After(ms(500), at("router", domain.NodeProcessing)),
				scenario.After(ms(600), at("router", domain.NodeComplete)),
			),
			scenario.Dynamic("pick-model", func(f domain.Fixture) []sequencer.Step {
				return []sequencer.Step{scenario.Now(sequencer.MergeMetrics(domain.Metrics{"model": f.Model}))}
			}),
			scenario.Branch("model", insightsArm, map[string][]scenario.Phase{
				"cache": {
					scenario.Linear("cache",
						hop("router-cache"),
						scenario.Now(at("cache", domain.NodeProcessing)),
						scenario.After(ms(300), at("cache", domain.NodeComplete)),
						hop("cache-response"),
					),
					spend(97),
				},
				"gpt4": {
					scenario.Linear("gpt4",
						hop("router-gpt4"),
						scenario.Now(at("gpt4", domain.NodeProcessing)),
						scenario.After(ms(1500), at("gpt4", domain.NodeComplete)),
						hop("gpt4-kpi"),
						scenario.Now(at("kpi", domain.NodeProcessing)),
						scenario.After(ms(800), at("kpi", domain.NodeComplete)),
						hop("kpi-forecast"),
						scenario.Now(at("forecast", domain.NodeProcessing)),
						scenario.After(ms(900), at("forecast", domain.NodeComplete)),
						hop("forecast-response"),
					),
					spend(0),
				},
				"gpt35": {
					scenario.Linear("gpt35",
						hop("router-gpt35"),
						scenario.Now(at("gpt35", domain.NodeProcessing)),
						scenario.After(ms(800), at("gpt35", domain.NodeComplete)),
						hop("gpt35-response"),
					),
					spend(93),
				},
			}),
			scenario.Linear("respond", scenario.Now(at("response", domain.NodeComplete))),
		},
	}
}

// insightsArm sends cached fixtures to the cache layer and everything else to
// the model the router picked.
func insightsArm(f domain.Fixture) string {
	if f.Cached {
		return "cache"
	}
	return f.Model
}
