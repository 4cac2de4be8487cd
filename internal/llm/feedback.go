package llm

import (
	"encoding/json"
	"fmt"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// Providers return feedback under generic criterion1..criterion4 keys; the
// keys are remapped to the module's display names before the record leaves
// this package.
var criterionKeys = [4]string{"criterion1", "criterion2", "criterion3", "criterion4"}

type rawCriterion struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

type rawFeedback struct {
	BandScore       float64                 `json:"bandScore"`
	Criteria        map[string]rawCriterion `json:"criteria"`
	GeneralFeedback string                  `json:"generalFeedback"`
	ImprovementPlan []string                `json:"improvementPlan"`
}

func decodeFeedback(raw string, module model.Module) (model.FeedbackRecord, error) {
	var rf rawFeedback
	if err := json.Unmarshal([]byte(raw), &rf); err != nil {
		return model.FeedbackRecord{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	names := model.CriterionNames(module)
	criteria := make([]model.CriterionScore, 0, len(criterionKeys))
	for i, key := range criterionKeys {
		c, ok := rf.Criteria[key]
		if !ok {
			c = rawCriterion{Feedback: "N/A"}
		}
		criteria = append(criteria, model.CriterionScore{
			Name:     names[i],
			Score:    c.Score,
			Feedback: c.Feedback,
		})
	}

	return model.FeedbackRecord{
		Module:          module,
		BandScore:       rf.BandScore,
		Criteria:        criteria,
		GeneralFeedback: rf.GeneralFeedback,
		ImprovementPlan: rf.ImprovementPlan,
	}, nil
}

// decodeObjectiveContent parses the passage-plus-questions payload shared
// by the Reading and Listening generators.
func decodeObjectiveContent(raw string) (model.TestContent, error) {
	var tc model.TestContent
	if err := unmarshalJSON(raw, &tc); err != nil {
		return model.TestContent{}, err
	}
	return tc, nil
}

func unmarshalJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("parse content response: %w (raw: %s)", err, raw)
	}
	return nil
}
