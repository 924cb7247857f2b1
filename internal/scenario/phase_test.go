// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"testing"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ms = time.Millisecond

func labels(steps []sequencer.Step) []string {
	out := make([]string, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.Effect.String())
	}
	return out
}

func reviewScript() Script {
	return Script{
		Phases: []Phase{
			Linear("intake",
				Now(sequencer.SetNode("in", domain.NodeActive)),
				After(500*ms, sequencer.SetNode("in", domain.NodeComplete)),
			),
			Dynamic("score", func(f domain.Fixture) []sequencer.Step {
				return []sequencer.Step{
					After(800*ms, sequencer.MergeMetrics(domain.Metrics{"accuracy": f.Value("accuracy") * 100})),
				}
			}),
			Branch("route", func(f domain.Fixture) string {
				if f.NeedsReview {
					return "review"
				}
				return "direct"
			}, map[string][]Phase{
				"review": {Linear("review", After(1500*ms, sequencer.SetNode("hitl", domain.NodeComplete)))},
				"direct": nil,
			}),
			Linear("export", After(600*ms, sequencer.SetNode("out", domain.NodeComplete))),
		},
	}
}

func TestCompileLinearAndBranchPaths(t *testing.T) {
	s := reviewScript()

	direct, err := s.Compile(domain.Fixture{Key: "invoice", Result: "ok", Values: map[string]float64{"accuracy": 0.99}})
	require.NoError(t, err)
	assert.Equal(t, []string{"intake", "score", "route:direct", "export"}, direct.Path)
	assert.Equal(t, 1900*ms, direct.Duration())
	assert.Equal(t, "invoice", direct.Result.Fixture)
	assert.Equal(t, "ok", direct.Reveal)

	review, err := s.Compile(domain.Fixture{Key: "contract", NeedsReview: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"intake", "score", "route:review", "review", "export"}, review.Path)
	assert.Equal(t, 1500*ms, review.Duration()-direct.Duration())
}

func TestDynamicPhaseReadsFixtureValues(t *testing.T) {
	plan, err := reviewScript().Compile(domain.Fixture{Key: "x", Values: map[string]float64{"accuracy": 0.5}})
	require.NoError(t, err)

	st := plan.Steps[2].Effect.Apply(domain.State{Metrics: domain.Metrics{}})
	assert.Equal(t, 50.0, st.Metrics["accuracy"])
}

func TestBranchUnknownArm(t *testing.T) {
	s := Script{Phases: []Phase{
		Branch("model", func(f domain.Fixture) string { return f.Model }, map[string][]Phase{
			"gpt4": nil,
		}),
	}}

	_, err := s.Compile(domain.Fixture{Key: "k", Model: "claude"})
	require.ErrorIs(t, err, ErrUnknownBranch)
	assert.Contains(t, err.Error(), `"claude"`)
}

func healingScript() Script {
	return Script{
		Phases: []Phase{
			Retry("validate",
				func(f domain.Fixture) bool { return f.Mode == domain.ModeHealing },
				func(_ domain.Fixture, n int, final bool) []sequencer.Step {
					if !final {
						return []sequencer.Step{After(600*ms, sequencer.ShowError("bad column"))}
					}
					return []sequencer.Step{After(600*ms, sequencer.ClearError())}
				},
				Linear("self-heal", After(1200*ms, sequencer.SetNode("heal", domain.NodeComplete))),
			),
		},
		Mode: func(f domain.Fixture) string { return f.Mode },
		Result: func(f domain.Fixture) (domain.Result, string) {
			return domain.Result{Text: "rows", ChartType: "bar"}, "rows"
		},
	}
}

func TestRetryExpandsSingleLoopBack(t *testing.T) {
	plan, err := healingScript().Compile(domain.Fixture{Key: "employees", Mode: domain.ModeHealing})
	require.NoError(t, err)

	assert.Equal(t, []string{"error", "heal=complete", "error cleared"}, labels(plan.Steps))
	assert.Equal(t, []string{"validate", "self-heal", "validate:retry"}, plan.Path)
	assert.Equal(t, domain.ModeHealing, plan.Mode)
	assert.Equal(t, "employees", plan.Result.Fixture)
	assert.Equal(t, "bar", plan.Result.ChartType)
}

func TestRetryNotNeededRunsFinalAttemptOnly(t *testing.T) {
	plan, err := healingScript().Compile(domain.Fixture{Key: "revenue", Mode: domain.ModeSuccess})
	require.NoError(t, err)

	assert.Equal(t, []string{"error cleared"}, labels(plan.Steps))
	assert.Equal(t, []string{"validate"}, plan.Path)
	assert.Equal(t, 600*ms, plan.Duration())
}

func TestTrailingPhasesStaySeparate(t *testing.T) {
	s := Script{
		Phases:   []Phase{Linear("answer", After(100*ms, sequencer.SetNode("a", domain.NodeComplete)))},
		Trailing: []Phase{Linear("store", After(500*ms, sequencer.SetNodeMessage("cache", domain.NodeComplete, "Response cached")))},
	}

	plan, err := s.Compile(domain.Fixture{Key: "k"})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 1)
	require.Len(t, plan.Trailing, 1)
	assert.Equal(t, 100*ms, plan.Duration())
	assert.Equal(t, []string{"answer", "store"}, plan.Path)
}

func TestTogetherAlignsEffects(t *testing.T) {
	steps := Together(sequencer.SetNode("a", domain.NodeActive), sequencer.ActivateEdge("a-b"))
	require.Len(t, steps, 2)
	for _, st := range steps {
		assert.Zero(t, st.Delay)
	}
}
