// SPDX-License-Identifier: Apache-2.0

package domain

// Metrics maps a metric name to a float64 or string value.
type Metrics map[string]any

func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with every key of update overwritten.
// Keys absent from update keep their previous value.
func (m Metrics) Merge(update Metrics) Metrics {
	out := make(Metrics, len(m)+len(update))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

func (m Metrics) Float(key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

func (m Metrics) String(key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

// NormalizeMetrics converts integer values, as produced by YAML and JSON
// decoders, to float64 so every numeric metric has a single type.
func NormalizeMetrics(in map[string]any) Metrics {
	out := make(Metrics, len(in))
	for k, v := range in {
		switch n := v.(type) {
		case int:
			out[k] = float64(n)
		case int64:
			out[k] = float64(n)
		case float32:
			out[k] = float64(n)
		case nil:
			out[k] = ""
		default:
			out[k] = v
		}
	}
	return out
}

// CostItem is one line of a per-mode cost breakdown.
type CostItem struct {
	Item string  `json:"item" yaml:"item"`
	Cost float64 `json:"cost" yaml:"cost"`
}

// CostTotal sums a breakdown.
func CostTotal(items []CostItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Cost
	}
	return total
}
