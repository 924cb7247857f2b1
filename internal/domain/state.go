// SPDX-License-Identifier: Apache-2.0

package domain

import "sort"

// EdgeSet is the set of active edge ids.
type EdgeSet map[string]struct{}

func NewEdgeSet(ids ...string) EdgeSet {
	s := make(EdgeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s EdgeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s EdgeSet) Clone() EdgeSet {
	out := make(EdgeSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

func (s EdgeSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// State is the diagram state a sequencer owns. Effects never mutate a State
// in place; they return a new one, copying whichever map they touch.
type State struct {
	Demo       string
	Mode       string
	RunID      string
	Fixture    string
	Generation uint64
	Running    bool
	Nodes      map[string]NodeStatus
	Messages   map[string]string
	Edges      EdgeSet
	Metrics    Metrics
	Code       string
	Error      string
	Result     *Result
	Revealed   int
	Version    uint64
}

func (s State) WithNode(id string, status NodeStatus) State {
	nodes := make(map[string]NodeStatus, len(s.Nodes))
	for k, v := range s.Nodes {
		nodes[k] = v
	}
	nodes[id] = status
	s.Nodes = nodes
	return s
}

func (s State) WithMessage(id, message string) State {
	msgs := make(map[string]string, len(s.Messages)+1)
	for k, v := range s.Messages {
		msgs[k] = v
	}
	msgs[id] = message
	s.Messages = msgs
	return s
}

func (s State) WithEdge(id string, active bool) State {
	edges := s.Edges.Clone()
	if active {
		edges[id] = struct{}{}
	} else {
		delete(edges, id)
	}
	s.Edges = edges
	return s
}

func (s State) WithEdges(ids ...string) State {
	s.Edges = NewEdgeSet(ids...)
	return s
}

func (s State) WithMetrics(update Metrics) State {
	s.Metrics = s.Metrics.Merge(update)
	return s
}

// Snapshot is the read-only view of a State handed to renderers.
type Snapshot struct {
	Demo         string                `json:"demo"`
	Mode         string                `json:"mode,omitempty"`
	RunID        string                `json:"run_id,omitempty"`
	Fixture      string                `json:"fixture,omitempty"`
	Generation   uint64                `json:"generation"`
	Running      bool                  `json:"running"`
	Nodes        map[string]NodeStatus `json:"nodes"`
	Messages     map[string]string     `json:"messages,omitempty"`
	ActiveEdges  []string              `json:"active_edges"`
	Metrics      Metrics               `json:"metrics"`
	Code         string                `json:"code,omitempty"`
	Error        string                `json:"error,omitempty"`
	Result       *Result               `json:"result,omitempty"`
	Revealed     int                   `json:"revealed"`
	RevealedText string                `json:"revealed_text,omitempty"`
	Version      uint64                `json:"version"`
}

func (s State) Snapshot() Snapshot {
	nodes := make(map[string]NodeStatus, len(s.Nodes))
	for k, v := range s.Nodes {
		nodes[k] = v
	}
	var msgs map[string]string
	if len(s.Messages) > 0 {
		msgs = make(map[string]string, len(s.Messages))
		for k, v := range s.Messages {
			msgs[k] = v
		}
	}

	snap := Snapshot{
		Demo:        s.Demo,
		Mode:        s.Mode,
		RunID:       s.RunID,
		Fixture:     s.Fixture,
		Generation:  s.Generation,
		Running:     s.Running,
		Nodes:       nodes,
		Messages:    msgs,
		ActiveEdges: s.Edges.Sorted(),
		Metrics:     s.Metrics.Clone(),
		Code:        s.Code,
		Error:       s.Error,
		Revealed:    s.Revealed,
		Version:     s.Version,
	}
	if s.Result != nil {
		res := *s.Result
		snap.Result = &res
		snap.RevealedText = RevealPrefix(res.Text, s.Revealed)
	}
	return snap
}

// RevealPrefix returns the first n runes of text.
func RevealPrefix(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if n >= len(runes) {
		return text
	}
	return string(runes[:n])
}
