// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"fmt"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
)

// Step is an effect with its delay relative to the previous step.
type Step struct {
	Delay  time.Duration
	Effect Effect
}

// Plan is a compiled scenario: the ordered steps of the branch taken, the
// result the terminal effect publishes and the steps that follow it.
type Plan struct {
	Fixture  string
	Mode     string
	Path     []string
	Steps    []Step
	Trailing []Step
	Result   domain.Result
	Reveal   string
}

// Duration is the unscaled offset of the terminal effect.
func (p Plan) Duration() time.Duration {
	var d time.Duration
	for _, st := range p.Steps {
		d += st.Delay
	}
	return d
}

// Scenario is a demo a sequencer can play.
type Scenario interface {
	Name() string
	Diagram() domain.Diagram
	InitialMetrics() domain.Metrics
	RevealTick() time.Duration
	Plan(f domain.Fixture) (Plan, error)
}

// Validate checks that every node and edge an effect targets exists in d and
// that no delay is negative.
func (p Plan) Validate(d domain.Diagram) error {
	check := func(section string, steps []Step) error {
		for i, st := range steps {
			if st.Delay < 0 {
				return fmt.Errorf("%s step %d (%s): negative delay %s", section, i, st.Effect, st.Delay)
			}
			if st.Effect.Apply == nil {
				return fmt.Errorf("%s step %d: effect has no transform", section, i)
			}
			for _, target := range st.Effect.Targets {
				switch st.Effect.Kind {
				case KindNode:
					if !d.HasNode(target) {
						return fmt.Errorf("%s step %d (%s): unknown node %q", section, i, st.Effect, target)
					}
				case KindEdge:
					if !d.HasEdge(target) {
						return fmt.Errorf("%s step %d (%s): unknown edge %q", section, i, st.Effect, target)
					}
				}
			}
		}
		return nil
	}

	if err := check("step", p.Steps); err != nil {
		return err
	}
	return check("trailing", p.Trailing)
}
