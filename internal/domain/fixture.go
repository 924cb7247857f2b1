// SPDX-License-Identifier: Apache-2.0

package domain

import "strings"

const (
	ModeSuccess = "success"
	ModeHealing = "healing"
)

type Source struct {
	Name      string  `json:"name" yaml:"name"`
	Page      int     `json:"page" yaml:"page"`
	Relevance float64 `json:"relevance" yaml:"relevance"`
}

// Field is one key/value pair of extracted document data.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Fixture is a canned scenario input with its precomputed output.
type Fixture struct {
	Key         string             `json:"key" yaml:"key"`
	Label       string             `json:"label" yaml:"label"`
	Icon        string             `json:"icon,omitempty" yaml:"icon"`
	Query       string             `json:"query" yaml:"query"`
	Keywords    []string           `json:"keywords,omitempty" yaml:"keywords"`
	Model       string             `json:"model,omitempty" yaml:"model"`
	Cached      bool               `json:"cached" yaml:"cached"`
	NeedsReview bool               `json:"needs_review" yaml:"needs_review"`
	Mode        string             `json:"mode,omitempty" yaml:"mode"`
	Values      map[string]float64 `json:"values,omitempty" yaml:"values"`
	Result      string             `json:"result" yaml:"result"`
	Sources     []Source           `json:"sources,omitempty" yaml:"sources"`
	Fields      []Field            `json:"fields,omitempty" yaml:"fields"`
	Code        string             `json:"code,omitempty" yaml:"code"`
	HealedCode  string             `json:"healed_code,omitempty" yaml:"healed_code"`
	ErrorText   string             `json:"error_text,omitempty" yaml:"error_text"`
	ChartType   string             `json:"chart_type,omitempty" yaml:"chart_type"`
}

// Value returns the named numeric value, or 0 when the fixture has none.
func (f Fixture) Value(name string) float64 {
	return f.Values[name]
}

// Matches reports whether a free-text query mentions any of the fixture's
// keywords, case-insensitively.
func (f Fixture) Matches(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range f.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Result is what the terminal effect of a run publishes.
type Result struct {
	Fixture    string   `json:"fixture"`
	Text       string   `json:"text"`
	Sources    []Source `json:"sources,omitempty"`
	Fields     []Field  `json:"fields,omitempty"`
	Code       string   `json:"code,omitempty"`
	ChartType  string   `json:"chart_type,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}
