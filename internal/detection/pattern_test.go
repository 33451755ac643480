package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		matches   int
		threshold int
		want      float64
	}{
		{"at threshold", 3, 3, 0.8},
		{"below cap", 4, 4, 0.8},
		{"quarter over", 5, 4, 1.0},
		{"far over", 30, 3, 1.0},
		{"zero matches", 0, 3, 0.0},
		{"zero threshold treated as one", 1, 0, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.matches, tt.threshold), 1e-9)
		})
	}
}

func TestConfidence_Monotonic(t *testing.T) {
	for threshold := 1; threshold <= 10; threshold++ {
		prev := -1.0
		for n := 0; n <= 30; n++ {
			c := Confidence(n, threshold)
			assert.GreaterOrEqual(t, c, prev)
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
			prev = c
		}
	}
}

func TestAnalyzePattern_SymptomsTopThreeStable(t *testing.T) {
	matches := []model.Report{
		{Symptoms: []string{"Vomiting", "Diarrhea", "Diarrhea"}},
		{Symptoms: []string{"Fever", "Diarrhea"}},
		{Symptoms: []string{"Cough", "Fever", "Vomiting"}},
		{Symptoms: []string{"Rash"}},
	}

	// Diarrhea 2 (duplicates collapse), Vomiting 2, Fever 2, Cough 1, Rash 1
	assert.Equal(t, "Vomiting, Diarrhea, Fever", AnalyzePattern(model.ConditionSymptomCount, matches))
}

func TestAnalyzePattern_SymptomsIgnoreCase(t *testing.T) {
	matches := []model.Report{
		{Symptoms: []string{"Fever", "Cough"}},
		{Symptoms: []string{"fever", "Rash"}},
		{Symptoms: []string{"FEVER", "rash"}},
		{Symptoms: []string{"Vomiting"}},
	}

	// first spelling seen is the one shown
	assert.Equal(t, "Fever, Rash, Cough", AnalyzePattern(model.ConditionSymptomCount, matches))
}

func TestAnalyzePattern_Contamination(t *testing.T) {
	matches := []model.Report{
		{Contamination: "severe"},
		{Contamination: "high"},
		{Contamination: "high"},
	}
	assert.Equal(t, "Predominant contamination level: high", AnalyzePattern(model.ConditionWaterContamination, matches))

	tie := []model.Report{{Contamination: "severe"}, {Contamination: "high"}}
	assert.Equal(t, "Predominant contamination level: severe", AnalyzePattern(model.ConditionWaterContamination, tie))

	assert.Equal(t, "Predominant contamination level: unknown", AnalyzePattern(model.ConditionWaterContamination, nil))
}

func TestAnalyzePattern_PH(t *testing.T) {
	matches := []model.Report{
		{WaterPH: "5.9"},
		{WaterPH: "abc"},
		{WaterPH: "9.05"},
		{WaterPH: " 6.1 "},
	}
	assert.Equal(t, "pH range 5.9-9.1 (mean 7.0)", AnalyzePattern(model.ConditionWaterPH, matches))

	assert.Equal(t, "No valid pH data", AnalyzePattern(model.ConditionWaterPH, []model.Report{{WaterPH: "abc"}}))
}

func TestAnalyzePattern_Severity(t *testing.T) {
	matches := []model.Report{
		{Severity: model.ReportSeverityHigh},
		{Severity: model.ReportSeverityCritical},
		{Severity: model.ReportSeverityCritical},
	}
	assert.Equal(t, "Predominant severity: critical", AnalyzePattern(model.ConditionSeverityCount, matches))
}

func TestAnalyzePattern_UnknownCondition(t *testing.T) {
	assert.Empty(t, AnalyzePattern("turbidity_spike", []model.Report{{}}))
}

func TestEvaluate_Predicates(t *testing.T) {
	evaluators := DefaultEvaluators()
	now := time.Now()

	tests := []struct {
		name    string
		rule    model.Rule
		reports []model.Report
		fires   bool
		matched int
	}{
		{
			name: "ph bounds are exclusive",
			rule: model.Rule{Condition: model.ConditionWaterPH, Threshold: 1},
			reports: []model.Report{
				{ID: "a", WaterPH: "6.5"},
				{ID: "b", WaterPH: "8.5"},
			},
			fires: false,
		},
		{
			name: "ph outside range",
			rule: model.Rule{Condition: model.ConditionWaterPH, Threshold: 2},
			reports: []model.Report{
				{ID: "a", WaterPH: "6.4"},
				{ID: "b", WaterPH: "8.6"},
				{ID: "c", WaterPH: "NaN"},
			},
			fires:   true,
			matched: 2,
		},
		{
			name: "contamination only high and severe",
			rule: model.Rule{Condition: model.ConditionWaterContamination, Threshold: 2},
			reports: []model.Report{
				{ID: "a", Contamination: "medium"},
				{ID: "b", Contamination: "HIGH"},
				{ID: "c", Contamination: "toxic"},
			},
			fires: false,
		},
		{
			name: "severity high and critical",
			rule: model.Rule{Condition: model.ConditionSeverityCount, Threshold: 2},
			reports: []model.Report{
				{ID: "a", Severity: model.ReportSeverityHigh},
				{ID: "b", Severity: model.ReportSeverityCritical},
				{ID: "c", Severity: model.ReportSeverityMedium},
			},
			fires:   true,
			matched: 2,
		},
		{
			name: "symptoms intersect trigger list",
			rule: model.Rule{Condition: model.ConditionSymptomCount, Threshold: 2, TriggerSymptoms: []string{"Fever", "Chills"}},
			reports: []model.Report{
				{ID: "a", Symptoms: []string{"fever"}},
				{ID: "b", Symptoms: []string{"Chills", "Fever"}},
				{ID: "c", Symptoms: []string{"Cough"}},
			},
			fires:   true,
			matched: 2,
		},
		{
			name:    "symptom rule without triggers never fires",
			rule:    model.Rule{Condition: model.ConditionSymptomCount, Threshold: 1},
			reports: []model.Report{{ID: "a", Symptoms: []string{"Fever"}}},
			fires:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range tt.reports {
				tt.reports[i].SubmittedAt = now
			}
			candidate, ok := Evaluate(evaluators, tt.rule, "Rampur", tt.reports)
			assert.Equal(t, tt.fires, ok)
			if tt.fires {
				assert.Len(t, candidate.Matches, tt.matched)
				assert.Len(t, candidate.Window, len(tt.reports))
			}
		})
	}
}
