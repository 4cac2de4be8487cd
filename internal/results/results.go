// Package results transforms a finished session's feedback record into the
// shapes the results views consume. Pure functions over model values.
package results

import (
	"fmt"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

// FullMark is the top of the IELTS band scale; every chart axis runs 0 to 9.
const FullMark = 9

// ChartPoint is one axis of the criteria radar chart.
type ChartPoint struct {
	Subject  string  `json:"subject"`
	Score    float64 `json:"score"`
	FullMark float64 `json:"fullMark"`
}

// BreakdownRow pairs a criterion with its score and examiner comment for
// the detailed feedback list.
type BreakdownRow struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Breakdown is the full results-page payload derived from one session.
type Breakdown struct {
	Module          model.Module   `json:"module"`
	BandScore       float64        `json:"bandScore"`
	Objective       string         `json:"objective,omitempty"`
	Chart           []ChartPoint   `json:"chart"`
	Rows            []BreakdownRow `json:"rows"`
	GeneralFeedback string         `json:"generalFeedback"`
	ImprovementPlan []string       `json:"improvementPlan"`
}

// Chart maps the criterion scores onto radar-chart points, preserving the
// criterion order of the record. Scores are clamped to the band scale so a
// malformed service response can never distort the chart geometry.
func Chart(fb model.FeedbackRecord) []ChartPoint {
	points := make([]ChartPoint, 0, len(fb.Criteria))
	for _, c := range fb.Criteria {
		points = append(points, ChartPoint{
			Subject:  c.Name,
			Score:    clampBand(c.Score),
			FullMark: FullMark,
		})
	}
	return points
}

// Build assembles the complete results payload for one session.
func Build(res model.SessionResult) Breakdown {
	b := Breakdown{
		Module:          res.Module,
		BandScore:       clampBand(res.Feedback.BandScore),
		Chart:           Chart(res.Feedback),
		GeneralFeedback: res.Feedback.GeneralFeedback,
		ImprovementPlan: res.Feedback.ImprovementPlan,
	}
	if res.Objective != nil {
		b.Objective = fmt.Sprintf("%d / %d", res.Objective.Correct, res.Objective.Total)
	}
	b.Rows = make([]BreakdownRow, 0, len(res.Feedback.Criteria))
	for _, c := range res.Feedback.Criteria {
		b.Rows = append(b.Rows, BreakdownRow{
			Name:     c.Name,
			Score:    clampBand(c.Score),
			Feedback: c.Feedback,
		})
	}
	return b
}

func clampBand(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > FullMark {
		return FullMark
	}
	return v
}
