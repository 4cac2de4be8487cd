package results

import (
	"testing"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
)

func sampleFeedback() model.FeedbackRecord {
	return model.FeedbackRecord{
		Module:    model.ModuleWriting,
		BandScore: 6.5,
		Criteria: []model.CriterionScore{
			{Name: "Task Achievement", Score: 7, Feedback: "Addresses both tasks."},
			{Name: "Coherence & Cohesion", Score: 6, Feedback: "Some abrupt transitions."},
			{Name: "Lexical Resource", Score: 6.5, Feedback: "Adequate range."},
			{Name: "Grammatical Range", Score: 6, Feedback: "Frequent comma splices."},
		},
		GeneralFeedback: "A solid attempt.",
		ImprovementPlan: []string{"Review linking devices."},
	}
}

func TestChart(t *testing.T) {
	points := Chart(sampleFeedback())

	if len(points) != 4 {
		t.Fatalf("len(points) = %d, want 4", len(points))
	}
	wantOrder := []string{"Task Achievement", "Coherence & Cohesion", "Lexical Resource", "Grammatical Range"}
	for i, p := range points {
		if p.Subject != wantOrder[i] {
			t.Errorf("points[%d].Subject = %q, want %q (order must be preserved)", i, p.Subject, wantOrder[i])
		}
		if p.FullMark != FullMark {
			t.Errorf("points[%d].FullMark = %v, want %v", i, p.FullMark, float64(FullMark))
		}
	}
	if points[2].Score != 6.5 {
		t.Errorf("points[2].Score = %v, want 6.5", points[2].Score)
	}
}

func TestChartClampsScores(t *testing.T) {
	fb := model.FeedbackRecord{
		Criteria: []model.CriterionScore{
			{Name: "low", Score: -2},
			{Name: "high", Score: 12},
			{Name: "edge", Score: 9},
		},
	}

	points := Chart(fb)
	if points[0].Score != 0 {
		t.Errorf("negative score clamped to %v, want 0", points[0].Score)
	}
	if points[1].Score != 9 {
		t.Errorf("overscale score clamped to %v, want 9", points[1].Score)
	}
	if points[2].Score != 9 {
		t.Errorf("boundary score = %v, want 9 unchanged", points[2].Score)
	}
}

func TestBuild(t *testing.T) {
	res := model.SessionResult{
		Module:   model.ModuleWriting,
		Feedback: sampleFeedback(),
	}

	b := Build(res)

	if b.Module != model.ModuleWriting {
		t.Errorf("Module = %s, want Writing", b.Module)
	}
	if b.BandScore != 6.5 {
		t.Errorf("BandScore = %v, want 6.5", b.BandScore)
	}
	if b.Objective != "" {
		t.Errorf("Objective = %q, want empty for writing", b.Objective)
	}
	if len(b.Rows) != 4 || b.Rows[1].Feedback != "Some abrupt transitions." {
		t.Errorf("Rows = %+v", b.Rows)
	}
	if len(b.ImprovementPlan) != 1 {
		t.Errorf("ImprovementPlan = %v", b.ImprovementPlan)
	}
}

func TestBuildObjectiveLine(t *testing.T) {
	res := model.SessionResult{
		Module:    model.ModuleReading,
		Objective: &model.ObjectiveScore{Correct: 3, Total: 5},
		Feedback:  model.FeedbackRecord{BandScore: 6.5},
	}

	b := Build(res)
	if b.Objective != "3 / 5" {
		t.Errorf("Objective = %q, want '3 / 5'", b.Objective)
	}
}
