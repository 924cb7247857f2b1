// SPDX-License-Identifier: Apache-2.0

package demos

import (
	"fmt"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/adiadia/flowsim/internal/scenario"
	"github.com/adiadia/flowsim/internal/sequencer"
)

func idpScript() scenario.Script {
	hop := func(edge string) sequencer.Step {
		return scenario.Now(sequencer.ReplaceEdges(edge))
	}
	merge := func(m domain.Metrics) sequencer.Step {
		return scenario.Now(sequencer.MergeMetrics(m))
	}

	return scenario.Script{
		Phases: []scenario.Phase{
			scenario.Dynamic("upload", func(f domain.Fixture) []sequencer.Step {
				return []sequencer.Step{
					merge(domain.Metrics{"document": f.Label}),
					scenario.Now(at("upload", domain.NodeActive)),
					hop("upload-ocr"),
					scenario.After(ms(500), at("upload", domain.NodeComplete)),
				}
			}),
			scenario.Linear("ocr",
				scenario.Now(at("ocr", domain.NodeProcessing)),
				scenario.After(ms(1200), at("ocr", domain.NodeComplete)),
				hop("ocr-extract"),
				merge(domain.Metrics{"time": 1.2, "accuracy": 95.0}),
			),
			scenario.Linear("extract",
				scenario.Now(at("extract", domain.NodeProcessing)),
				scenario.After(ms(1000), at("extract", domain.NodeComplete)),
				hop("extract-validate"),
				merge(domain.Metrics{"time": 2.0, "accuracy": 97.0}),
			),
			scenario.Dynamic("validate", func(f domain.Fixture) []sequencer.Step {
				acc := f.Value("accuracy")
				return []sequencer.Step{
					scenario.Now(at("validate", domain.NodeProcessing)),
					scenario.After(ms(800), at("validate", domain.NodeComplete)),
					merge(domain.Metrics{"time": f.Value("time"), "accuracy": acc * 100, "confidence": acc}),
				}
			}),
			scenario.Branch("review", idpArm, map[string][]scenario.Phase{
				"human": {
					scenario.Dynamic("human-review", func(f domain.Fixture) []sequencer.Step {
						return []sequencer.Step{
							hop("validate-hitl"),
							scenario.Now(at("hitl", domain.NodeProcessing)),
							scenario.After(ms(1500), at("hitl", domain.NodeComplete)),
							hop("hitl-export"),
							merge(domain.Metrics{"time": f.Value("time") + 2.0}),
						}
					}),
				},
				"direct": {
					scenario.Linear("auto-approve", hop("validate-export")),
				},
			}),
			scenario.Linear("export",
				scenario.Now(at("export", domain.NodeProcessing)),
				scenario.After(ms(600), at("export", domain.NodeComplete)),
				hop("export-complete"),
				scenario.Now(at("complete", domain.NodeComplete)),
			),
		},
		Result: func(f domain.Fixture) (domain.Result, string) {
			text := fmt.Sprintf("%s processed: %d fields extracted", f.Label, len(f.Fields))
			if f.NeedsReview {
				text += " after human review"
			}
			return domain.Result{
				Text:       text,
				Fields:     f.Fields,
				Confidence: f.Value("accuracy"),
			}, text
		},
	}
}

func idpArm(f domain.Fixture) string {
	if f.NeedsReview {
		return "human"
	}
	return "direct"
}
