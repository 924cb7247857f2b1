// SPDX-License-Identifier: Apache-2.0

// Package demos holds the four playable diagrams: their embedded catalogs
// (nodes, edges, metrics, fixtures) and the scripts that animate them.
package demos

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/*.yaml
var catalogFiles embed.FS

type entry struct {
	name     string
	script   func() scenario.Script
	withMode func(f domain.Fixture, mode string) domain.Fixture
}

// registry lists the demos in presentation order.
var registry = []entry{
	{name: "insights", script: insightsScript},
	{name: "idp", script: idpScript},
	{name: "rag", script: ragScript, withMode: withRagMode},
	{name: "talktodata", script: talkToDataScript, withMode: withTalkToDataMode},
}

type Catalog struct {
	demos map[string]*Demo
	order []string
}

// Load reads and validates the embedded catalogs.
func Load() (*Catalog, error) {
	return LoadFS(catalogFiles)
}

// LoadFS reads fixtures/<name>.yaml for every registered demo from fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{demos: make(map[string]*Demo, len(registry))}
	for _, e := range registry {
		body, err := fs.ReadFile(fsys, "fixtures/"+e.name+".yaml")
		if err != nil {
			return nil, fmt.Errorf("read %s catalog: %w", e.name, err)
		}
		d, err := build(e, body)
		if err != nil {
			return nil, fmt.Errorf("load %s catalog: %w", e.name, err)
		}
		c.demos[e.name] = d
		c.order = append(c.order, e.name)
	}
	return c, nil
}

func (c *Catalog) Get(name string) (*Demo, error) {
	d, ok := c.demos[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrDemoNotFound)
	}
	return d, nil
}

func (c *Catalog) List() []*Demo {
	out := make([]*Demo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.demos[name])
	}
	return out
}

func build(e entry, body []byte) (*Demo, error) {
	var def definition
	if err := yaml.Unmarshal(body, &def); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if def.Name != e.name {
		return nil, fmt.Errorf("catalog name %q does not match %q", def.Name, e.name)
	}

	d := &Demo{
		def:      def,
		diagram:  domain.Diagram{Nodes: def.Nodes, Edges: def.Edges},
		metrics:  domain.NormalizeMetrics(def.InitialMetrics),
		fixtures: make(map[string]domain.Fixture, len(def.Fixtures)),
		script:   e.script(),
		withMode: e.withMode,
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// validate checks the diagram and compiles every fixture in every mode, so a
// broken script fails at startup instead of mid-run.
func (d *Demo) validate() error {
	def := d.def
	if def.RevealTickMS <= 0 {
		return errors.New("reveal_tick_ms must be positive")
	}
	if len(def.Nodes) == 0 {
		return errors.New("catalog has no nodes")
	}

	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n.ID == "" || seen[n.ID] {
			return fmt.Errorf("node id %q is empty or duplicated", n.ID)
		}
		seen[n.ID] = true
	}
	edges := make(map[string]bool, len(def.Edges))
	for _, e := range def.Edges {
		if e.ID == "" || edges[e.ID] {
			return fmt.Errorf("edge id %q is empty or duplicated", e.ID)
		}
		edges[e.ID] = true
		if !seen[e.From] || !seen[e.To] {
			return fmt.Errorf("edge %q connects unknown nodes %q -> %q", e.ID, e.From, e.To)
		}
		for _, m := range e.ShowIn {
			if !d.hasMode(m) {
				return fmt.Errorf("edge %q: %w %q", e.ID, domain.ErrUnknownMode, m)
			}
		}
	}

	if len(def.Modes) > 0 && !d.hasMode(def.DefaultMode) {
		return fmt.Errorf("default mode: %w %q", domain.ErrUnknownMode, def.DefaultMode)
	}
	if len(def.Modes) > 0 && d.withMode == nil {
		return errors.New("catalog declares modes but the demo has no mode override")
	}

	for _, f := range def.Fixtures {
		if f.Key == "" {
			return errors.New("fixture without key")
		}
		if _, dup := d.fixtures[f.Key]; dup {
			return fmt.Errorf("duplicate fixture %q", f.Key)
		}
		if f.Mode != "" && !d.hasMode(f.Mode) {
			return fmt.Errorf("fixture %q: %w %q", f.Key, domain.ErrUnknownMode, f.Mode)
		}
		d.fixtures[f.Key] = f
	}
	if _, ok := d.fixtures[def.DefaultFixture]; !ok {
		return fmt.Errorf("default fixture %q: %w", def.DefaultFixture, domain.ErrFixtureNotFound)
	}

	for _, f := range def.Fixtures {
		if _, err := d.Plan(f); err != nil {
			return err
		}
		for _, m := range def.Modes {
			if _, err := d.Plan(d.withMode(f, m)); err != nil {
				return fmt.Errorf("mode %s: %w", m, err)
			}
		}
	}
	return nil
}
