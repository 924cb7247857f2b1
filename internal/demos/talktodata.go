// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"github.com/adiadia/flowsim/internal/sequencer"
)

const defaultSQLError = "Generated SQL references a column that does not exist"

func talkToDataScript() scenario.Script {
	edge := func(id string) sequencer.Step {
		return scenario.Now(sequencer.ActivateEdge(id))
	}
	merge := func(m domain.Metrics) sequencer.Step {
		return scenario.Now(sequencer.MergeMetrics(m))
	}
	healing := func(f domain.Fixture) bool { return f.Mode == domain.ModeHealing }

	// validate is one pass of the validator; only the final pass lets the
	// query through to the executor.
	validate := func(f domain.Fixture, n int, final bool) []sequencer.Step {
		working := "Validating SQL..."
		if n > 0 {
			working = "Re-validating..."
		}
		steps := []sequencer.Step{scenario.Now(say("validator", domain.NodeProcessing, working))}
		if !final {
			return append(steps,
				scenario.After(ms(600), say("validator", domain.NodeError, "Error detected!")),
				scenario.Now(sequencer.ShowError(sqlError(f))),
				edge("conn-6"),
				merge(domain.Metrics{"agentsInvolved": 4.0, "queryTime": 2.7}),
			)
		}
		steps = append(steps,
			scenario.After(ms(600), say("validator", domain.NodeComplete, "Valid ✓")),
			edge("conn-5"),
		)
		if n > 0 {
			return append(steps,
				scenario.Now(sequencer.ClearError()),
				merge(domain.Metrics{"agentsInvolved": 5.0, "queryTime": 5.0}),
			)
		}
		return append(steps, merge(domain.Metrics{"agentsInvolved": 4.0, "queryTime": 2.5}))
	}

	return scenario.Script{
		Phases: []scenario.Phase{
			scenario.Linear("query",
				scenario.Now(at("user-query", domain.NodeActive)),
				edge("conn-1"),
			),
			scenario.Linear("plan",
				scenario.After(ms(500), say("planner", domain.NodeProcessing, "Analyzing intent...")),
				scenario.After(ms(800), say("planner", domain.NodeComplete, "Plan created")),
				edge("conn-2"),
				merge(domain.Metrics{"agentsInvolved": 1.0}),
			),
			scenario.Linear("schema",
				scenario.Now(say("schema", domain.NodeProcessing, "Loading schema...")),
				scenario.After(ms(700), say("schema", domain.NodeComplete, "Schema mapped")),
				edge("conn-3"),
				merge(domain.Metrics{"agentsInvolved": 2.0, "queryTime": 1.5}),
			),
			scenario.Dynamic("generate", func(f domain.Fixture) []sequencer.Step {
				return []sequencer.Step{
					scenario.Now(say("sql-gen", domain.NodeProcessing, "Generating SQL...")),
					scenario.After(ms(400), sequencer.ShowCode(f.Code)),
					scenario.After(ms(600), say("sql-gen", domain.NodeComplete, "SQL generated")),
					edge("conn-4"),
					merge(domain.Metrics{"agentsInvolved": 3.0, "sqlGenerated": 1.0, "queryTime": 2.1}),
				}
			}),
			scenario.Retry("validate", healing, validate,
				scenario.Dynamic("self-heal", func(f domain.Fixture) []sequencer.Step {
					return []sequencer.Step{
						scenario.Now(say("self-heal", domain.NodeProcessing, "Analyzing error...")),
						scenario.After(ms(1200), say("self-heal", domain.NodeActive, "Fixing SQL...")),
						edge("conn-7"),
						scenario.After(ms(400), sequencer.ShowCode(healedSQL(f))),
						scenario.After(ms(600), say("self-heal", domain.NodeComplete, "SQL fixed!")),
						merge(domain.Metrics{"agentsInvolved": 5.0, "sqlGenerated": 2.0, "queryTime": 4.2}),
					}
				}),
				scenario.Linear("regenerate",
					scenario.Now(say("sql-gen", domain.NodeActive, "SQL updated")),
					edge("conn-4"),
					scenario.After(ms(500), say("sql-gen", domain.NodeComplete, "Validated")),
				),
			),
			scenario.Dynamic("execute", func(f domain.Fixture) []sequencer.Step {
				m := domain.Metrics{"agentsInvolved": 5.0, "queryTime": 3.1}
				if healing(f) {
					m = domain.Metrics{"agentsInvolved": 6.0, "queryTime": 5.6}
				}
				return []sequencer.Step{
					scenario.Now(say("executor", domain.NodeProcessing, "Executing query...")),
					edge("conn-8"),
					scenario.After(ms(900), say("executor", domain.NodeComplete, "Query complete")),
					merge(m),
				}
			}),
			scenario.Dynamic("visualize", func(f domain.Fixture) []sequencer.Step {
				m := domain.Metrics{"agentsInvolved": 6.0, "queryTime": 3.5}
				if healing(f) {
					m = domain.Metrics{"agentsInvolved": 7.0, "queryTime": 6.0}
				}
				m["accuracy"] = f.Value("accuracy")
				return []sequencer.Step{
					scenario.Now(say("visualizer", domain.NodeProcessing, "Creating visualization...")),
					edge("conn-9"),
					scenario.After(ms(700), say("visualizer", domain.NodeComplete, "Chart ready")),
					merge(m),
				}
			}),
			scenario.Linear("respond", scenario.Now(at("response", domain.NodeComplete))),
		},
		Mode: func(f domain.Fixture) string {
			if healing(f) {
				return domain.ModeHealing
			}
			return domain.ModeSuccess
		},
		Result: func(f domain.Fixture) (domain.Result, string) {
			code := f.Code
			if healing(f) {
				code = healedSQL(f)
			}
			return domain.Result{
				Text:       f.Result,
				Code:       code,
				ChartType:  f.ChartType,
				Confidence: f.Value("accuracy"),
			}, f.Result
		},
	}
}

func sqlError(f domain.Fixture) string {
	if f.ErrorText != "" {
		return f.ErrorText
	}
	return defaultSQLError
}

// healedSQL falls back to the original query for fixtures forced into the
// healing mode without a repaired one.
func healedSQL(f domain.Fixture) string {
	if f.HealedCode != "" {
		return f.HealedCode
	}
	return f.Code
}

func withTalkToDataMode(f domain.Fixture, mode string) domain.Fixture {
	f.Mode = mode
	return f
}
