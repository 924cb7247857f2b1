// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"fmt"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"github.com/adiadia/flowsim/internal/sequencer"
)

type definition struct {
	Name           string                       `yaml:"name"`
	Title          string                       `yaml:"title"`
	Subtitle       string                       `yaml:"subtitle"`
	RevealTickMS   int                          `yaml:"reveal_tick_ms"`
	DefaultFixture string                       `yaml:"default_fixture"`
	DefaultMode    string                       `yaml:"default_mode"`
	Modes          []string                     `yaml:"modes"`
	Nodes          []domain.Node                `yaml:"nodes"`
	Edges          []domain.Edge                `yaml:"edges"`
	InitialMetrics map[string]any               `yaml:"initial_metrics"`
	CostBreakdown  map[string][]domain.CostItem `yaml:"cost_breakdown"`
	Fixtures       []domain.Fixture             `yaml:"fixtures"`
}

// Demo is one playable diagram: its catalog entry bound to its script.
type Demo struct {
	def      definition
	diagram  domain.Diagram
	metrics  domain.Metrics
	fixtures map[string]domain.Fixture
	script   scenario.Script
	withMode func(f domain.Fixture, mode string) domain.Fixture
}

var _ sequencer.Scenario = (*Demo)(nil)

func (d *Demo) Name() string { return d.def.Name }

func (d *Demo) Title() string { return d.def.Title }

func (d *Demo) Subtitle() string { return d.def.Subtitle }

func (d *Demo) Diagram() domain.Diagram { return d.diagram }

func (d *Demo) InitialMetrics() domain.Metrics { return d.metrics.Clone() }

func (d *Demo) RevealTick() time.Duration {
	return time.Duration(d.def.RevealTickMS) * time.Millisecond
}

func (d *Demo) Modes() []string { return append([]string(nil), d.def.Modes...) }

func (d *Demo) DefaultMode() string { return d.def.DefaultMode }

func (d *Demo) DefaultFixture() string { return d.def.DefaultFixture }

// CostBreakdown returns the cost lines shown for mode, if the demo has any.
func (d *Demo) CostBreakdown(mode string) []domain.CostItem {
	return d.def.CostBreakdown[mode]
}

// Fixtures returns the presets in catalog order.
func (d *Demo) Fixtures() []domain.Fixture {
	return append([]domain.Fixture(nil), d.def.Fixtures...)
}

func (d *Demo) Fixture(key string) (domain.Fixture, error) {
	f, ok := d.fixtures[key]
	if !ok {
		return domain.Fixture{}, fmt.Errorf("%s/%s: %w", d.def.Name, key, domain.ErrFixtureNotFound)
	}
	return f, nil
}

// Plan compiles the demo script for f and checks every target against the
// diagram.
func (d *Demo) Plan(f domain.Fixture) (sequencer.Plan, error) {
	plan, err := d.script.Compile(f)
	if err != nil {
		return sequencer.Plan{}, fmt.Errorf("%s/%s: %w", d.def.Name, f.Key, err)
	}
	if err := plan.Validate(d.diagram); err != nil {
		return sequencer.Plan{}, fmt.Errorf("%s/%s: %w", d.def.Name, f.Key, err)
	}
	return plan, nil
}

// Resolve picks the fixture to play. An explicit key wins; otherwise the
// first fixture whose keywords appear in query, otherwise the default. A
// non-empty mode overrides the fixture's own discriminant, and a non-empty
// query replaces the preset query text.
func (d *Demo) Resolve(key, query, mode string) (domain.Fixture, error) {
	var (
		f   domain.Fixture
		err error
	)
	switch {
	case key != "":
		f, err = d.Fixture(key)
		if err != nil {
			return domain.Fixture{}, err
		}
	case query != "":
		f = d.fixtures[d.def.DefaultFixture]
		for _, candidate := range d.def.Fixtures {
			if candidate.Matches(query) {
				f = candidate
				break
			}
		}
	default:
		f = d.fixtures[d.def.DefaultFixture]
	}

	if query != "" {
		f.Query = query
	}
	if mode == "" {
		return f, nil
	}
	if !d.hasMode(mode) || d.withMode == nil {
		return domain.Fixture{}, fmt.Errorf("%s: %w %q", d.def.Name, domain.ErrUnknownMode, mode)
	}
	return d.withMode(f, mode), nil
}

func (d *Demo) hasMode(mode string) bool {
	for _, m := range d.def.Modes {
		if m == mode {
			return true
		}
	}
	return false
}
