// SPDX-License-Identifier: Apache-2.0

package sequencer

import (
	"fmt"

	"github.com/adiadia/flowsim/internal/domain"
)

type EffectKind string

const (
	KindNode     EffectKind = "node"
	KindEdge     EffectKind = "edge"
	KindMetrics  EffectKind = "metrics"
	KindCode     EffectKind = "code"
	KindError    EffectKind = "error"
	KindCallback EffectKind = "callback"
	KindPublish  EffectKind = "publish"
)

// Transform maps a state to the next one. It must not mutate its argument.
type Transform func(domain.State) domain.State

// Effect is one schedulable state mutation.
type Effect struct {
	Kind EffectKind
	// Targets are the node ids (KindNode) or edge ids (KindEdge) touched.
	Targets []string
	Label   string
	Apply   Transform

	reveal string
}

func (e Effect) String() string {
	if e.Label != "" {
		return e.Label
	}
	return fmt.Sprintf("%s%v", e.Kind, e.Targets)
}

func SetNode(id string, status domain.NodeStatus) Effect {
	return Effect{
		Kind:    KindNode,
		Targets: []string{id},
		Label:   id + "=" + string(status),
		Apply: func(s domain.State) domain.State {
			return s.WithNode(id, status)
		},
	}
}

// SetNodeMessage changes a node's status and its status line.
func SetNodeMessage(id string, status domain.NodeStatus, message string) Effect {
	return Effect{
		Kind:    KindNode,
		Targets: []string{id},
		Label:   id + "=" + string(status),
		Apply: func(s domain.State) domain.State {
			return s.WithNode(id, status).WithMessage(id, message)
		},
	}
}

func ActivateEdge(id string) Effect {
	return Effect{
		Kind:    KindEdge,
		Targets: []string{id},
		Label:   "+" + id,
		Apply: func(s domain.State) domain.State {
			return s.WithEdge(id, true)
		},
	}
}

func DeactivateEdge(id string) Effect {
	return Effect{
		Kind:    KindEdge,
		Targets: []string{id},
		Label:   "-" + id,
		Apply: func(s domain.State) domain.State {
			return s.WithEdge(id, false)
		},
	}
}

// ReplaceEdges makes ids the whole active edge set.
func ReplaceEdges(ids ...string) Effect {
	targets := append([]string(nil), ids...)
	return Effect{
		Kind:    KindEdge,
		Targets: targets,
		Label:   fmt.Sprintf("edges=%v", targets),
		Apply: func(s domain.State) domain.State {
			return s.WithEdges(targets...)
		},
	}
}

func MergeMetrics(update domain.Metrics) Effect {
	update = update.Clone()
	return Effect{
		Kind:  KindMetrics,
		Label: fmt.Sprintf("metrics%v", update),
		Apply: func(s domain.State) domain.State {
			return s.WithMetrics(update)
		},
	}
}

// ShowCode replaces the generated query text on display.
func ShowCode(code string) Effect {
	return Effect{
		Kind:  KindCode,
		Label: "code",
		Apply: func(s domain.State) domain.State {
			s.Code = code
			return s
		},
	}
}

func ShowError(text string) Effect {
	return Effect{
		Kind:  KindError,
		Label: "error",
		Apply: func(s domain.State) domain.State {
			s.Error = text
			return s
		},
	}
}

func ClearError() Effect {
	return Effect{
		Kind:  KindError,
		Label: "error cleared",
		Apply: func(s domain.State) domain.State {
			s.Error = ""
			return s
		},
	}
}

// Call wraps an arbitrary transform.
func Call(label string, fn Transform) Effect {
	return Effect{Kind: KindCallback, Label: label, Apply: fn}
}

// publish is the terminal effect of a run: it stores the result, ends the
// running phase and starts the typewriter on revealText.
func publish(result domain.Result, revealText string) Effect {
	res := result
	return Effect{
		Kind:  KindPublish,
		Label: "publish " + result.Fixture,
		Apply: func(s domain.State) domain.State {
			s.Result = &res
			s.Running = false
			s.Revealed = 0
			return s
		},
		reveal: revealText,
	}
}
