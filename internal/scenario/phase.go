// SPDX-License-Identifier: Apache-2.0

// Package scenario builds sequencer plans out of named phases.
//
// A Script is the data form of a demo: an ordered list of phases, each of
// which expands to relative-delay steps for a given fixture. Branches pick
// one arm by a fixture discriminant and Retry expands a fixed single
// loop-back, so every plan is a flat list and its terminal offset is simply
// the sum of the delays of the path taken.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/sequencer"
)

var ErrUnknownBranch = errors.New("unknown branch")

// MaxRetries bounds the loop-back of a Retry phase.
const MaxRetries = 1

// After returns a step that fires d after the previous one.
func After(d time.Duration, e sequencer.Effect) sequencer.Step {
	return sequencer.Step{Delay: d, Effect: e}
}

// Now returns a step aligned with the previous one.
func Now(e sequencer.Effect) sequencer.Step {
	return sequencer.Step{Effect: e}
}

// Together aligns every effect with the previous step.
func Together(effects ...sequencer.Effect) []sequencer.Step {
	steps := make([]sequencer.Step, 0, len(effects))
	for _, e := range effects {
		steps = append(steps, Now(e))
	}
	return steps
}

type Phase struct {
	Name   string
	expand func(f domain.Fixture) ([]sequencer.Step, []string, error)
}

func Linear(name string, steps ...sequencer.Step) Phase {
	fixed := append([]sequencer.Step(nil), steps...)
	return Phase{
		Name: name,
		expand: func(domain.Fixture) ([]sequencer.Step, []string, error) {
			return fixed, []string{name}, nil
		},
	}
}

// Dynamic computes its steps from the fixture, for phases whose effects carry
// fixture values.
func Dynamic(name string, build func(f domain.Fixture) []sequencer.Step) Phase {
	return Phase{
		Name: name,
		expand: func(f domain.Fixture) ([]sequencer.Step, []string, error) {
			return build(f), []string{name}, nil
		},
	}
}

// Branch expands exactly one arm, picked by choose. The path records the
// phase as "name:arm".
func Branch(name string, choose func(f domain.Fixture) string, arms map[string][]Phase) Phase {
	return Phase{
		Name: name,
		expand: func(f domain.Fixture) ([]sequencer.Step, []string, error) {
			arm := choose(f)
			phases, ok := arms[arm]
			if !ok {
				return nil, nil, fmt.Errorf("%s: %w %q", name, ErrUnknownBranch, arm)
			}
			steps, path, err := expandAll(phases, f)
			if err != nil {
				return nil, nil, err
			}
			return steps, append([]string{name + ":" + arm}, path...), nil
		},
	}
}

// Retry expands attempt once when needed reports false. Otherwise it expands
// a failing attempt, the repair phases and a final attempt.
func Retry(name string, needed func(f domain.Fixture) bool, attempt func(f domain.Fixture, n int, final bool) []sequencer.Step, repair ...Phase) Phase {
	return Phase{
		Name: name,
		expand: func(f domain.Fixture) ([]sequencer.Step, []string, error) {
			if !needed(f) {
				return attempt(f, 0, true), []string{name}, nil
			}

			var steps []sequencer.Step
			path := []string{name}
			for n := 0; n < MaxRetries; n++ {
				steps = append(steps, attempt(f, n, false)...)
				fix, fixPath, err := expandAll(repair, f)
				if err != nil {
					return nil, nil, err
				}
				steps = append(steps, fix...)
				path = append(path, fixPath...)
			}
			steps = append(steps, attempt(f, MaxRetries, true)...)
			return steps, append(path, name+":retry"), nil
		},
	}
}

func expandAll(phases []Phase, f domain.Fixture) ([]sequencer.Step, []string, error) {
	var (
		steps []sequencer.Step
		path  []string
	)
	for _, p := range phases {
		s, names, err := p.expand(f)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, s...)
		path = append(path, names...)
	}
	return steps, path, nil
}

// Script is the phase list of one demo.
type Script struct {
	Phases []Phase
	// Trailing phases run after the terminal effect, relative to it.
	Trailing []Phase
	// Mode names the diagram mode a fixture plays in. Optional.
	Mode func(f domain.Fixture) string
	// Result builds the published result and the text to reveal.
	Result func(f domain.Fixture) (domain.Result, string)
}

// Compile expands every phase for f into a plan.
func (s Script) Compile(f domain.Fixture) (sequencer.Plan, error) {
	steps, path, err := expandAll(s.Phases, f)
	if err != nil {
		return sequencer.Plan{}, err
	}
	trailing, trailingPath, err := expandAll(s.Trailing, f)
	if err != nil {
		return sequencer.Plan{}, err
	}

	plan := sequencer.Plan{
		Fixture:  f.Key,
		Path:     append(path, trailingPath...),
		Steps:    steps,
		Trailing: trailing,
	}
	if s.Mode != nil {
		plan.Mode = s.Mode(f)
	}
	if s.Result != nil {
		plan.Result, plan.Reveal = s.Result(f)
	} else {
		plan.Result = domain.Result{Fixture: f.Key, Text: f.Result}
		plan.Reveal = f.Result
	}
	if plan.Result.Fixture == "" {
		plan.Result.Fixture = f.Key
	}
	return plan, nil
}
