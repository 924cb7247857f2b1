// SPDX-License-Identifier: Apache-2.0

package domain

type NodeStatus string

const (
	NodeInactive   NodeStatus = "inactive"
	NodeActive     NodeStatus = "active"
	NodeProcessing NodeStatus = "processing"
	NodeComplete   NodeStatus = "complete"
	NodeError      NodeStatus = "error"
)

// Valid reports whether s is one of the five diagram statuses.
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeInactive, NodeActive, NodeProcessing, NodeComplete, NodeError:
		return true
	default:
		return false
	}
}

type Node struct {
	ID      string      `json:"id" yaml:"id"`
	Label   string      `json:"label" yaml:"label"`
	Icon    string      `json:"icon,omitempty" yaml:"icon"`
	X       float64     `json:"x" yaml:"x"`
	Y       float64     `json:"y" yaml:"y"`
	Details *NodeDetail `json:"details,omitempty" yaml:"details"`
}

// NodeDetail is the descriptive card shown when hovering a node.
type NodeDetail struct {
	Service     string   `json:"service" yaml:"service"`
	Description string   `json:"description" yaml:"description"`
	Specs       []string `json:"specs,omitempty" yaml:"specs"`
}

// Edge connects two nodes. ShowIn lists the diagram modes in which the edge
// is drawn; an empty list means every mode.
type Edge struct {
	ID     string   `json:"id" yaml:"id"`
	From   string   `json:"from" yaml:"from"`
	To     string   `json:"to" yaml:"to"`
	ShowIn []string `json:"show_in,omitempty" yaml:"show_in"`
}

func (e Edge) VisibleIn(mode string) bool {
	if len(e.ShowIn) == 0 {
		return true
	}
	for _, m := range e.ShowIn {
		if m == mode {
			return true
		}
	}
	return false
}

type Diagram struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (d Diagram) HasNode(id string) bool {
	for _, n := range d.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (d Diagram) HasEdge(id string) bool {
	for _, e := range d.Edges {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (d Diagram) Edge(id string) (Edge, bool) {
	for _, e := range d.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// EdgesFor returns the edges drawn in mode, in declaration order.
func (d Diagram) EdgesFor(mode string) []Edge {
	out := make([]Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		if e.VisibleIn(mode) {
			out = append(out, e)
		}
	}
	return out
}

// InitialStatuses maps every node to NodeInactive.
func (d Diagram) InitialStatuses() map[string]NodeStatus {
	out := make(map[string]NodeStatus, len(d.Nodes))
	for _, n := range d.Nodes {
		out[n.ID] = NodeInactive
	}
	return out
}
