package detection

import (
	"github.com/t77yq/outbreak-sentinel/internal/model"
)

const (
	minNormalPH = 6.5
	maxNormalPH = 8.5
)

// Evaluator selects the reports in a windowed location group that satisfy
// a rule's predicate.
type Evaluator func(rule model.Rule, reports []model.Report) []model.Report

// Candidate is a rule that fired for a location, with its evidence
type Candidate struct {
	Rule     model.Rule
	Location string
	Type     model.AlertType
	// Window is the full window-filtered group for the location.
	Window []model.Report
	// Matches is the subset of Window satisfying the rule.
	Matches []model.Report
}

// DefaultEvaluators returns the evaluator for every known condition kind
func DefaultEvaluators() map[model.ConditionKind]Evaluator {
	return map[model.ConditionKind]Evaluator{
		model.ConditionSymptomCount:       matchSymptoms,
		model.ConditionWaterContamination: matchContamination,
		model.ConditionWaterPH:            matchAbnormalPH,
		model.ConditionSeverityCount:      matchSevereCases,
	}
}

// Evaluate runs the evaluator for the rule's condition over a windowed
// group. It reports false when the condition is unknown or fewer than
// Threshold reports match.
func Evaluate(evaluators map[model.ConditionKind]Evaluator, rule model.Rule, location string, window []model.Report) (*Candidate, bool) {
	evaluate, ok := evaluators[rule.Condition]
	if !ok || len(window) == 0 {
		return nil, false
	}

	matches := evaluate(rule, window)
	if len(matches) < effectiveThreshold(rule) {
		return nil, false
	}

	return &Candidate{
		Rule:     rule,
		Location: location,
		Type:     rule.DerivedAlertType(),
		Window:   window,
		Matches:  matches,
	}, true
}

func effectiveThreshold(rule model.Rule) int {
	if rule.Threshold < 1 {
		return 1
	}
	return rule.Threshold
}

func matchSymptoms(rule model.Rule, reports []model.Report) []model.Report {
	var matches []model.Report
	for _, report := range reports {
		for _, symptom := range rule.TriggerSymptoms {
			if report.HasSymptom(symptom) {
				matches = append(matches, report)
				break
			}
		}
	}
	return matches
}

func matchContamination(_ model.Rule, reports []model.Report) []model.Report {
	var matches []model.Report
	for _, report := range reports {
		switch report.ContaminationLabel() {
		case model.ContaminationHigh, model.ContaminationSevere:
			matches = append(matches, report)
		}
	}
	return matches
}

func matchAbnormalPH(_ model.Rule, reports []model.Report) []model.Report {
	var matches []model.Report
	for _, report := range reports {
		ph, ok := report.PH()
		if !ok {
			continue
		}
		if ph < minNormalPH || ph > maxNormalPH {
			matches = append(matches, report)
		}
	}
	return matches
}

func matchSevereCases(_ model.Rule, reports []model.Report) []model.Report {
	var matches []model.Report
	for _, report := range reports {
		switch report.SeverityLabel() {
		case model.ReportSeverityHigh, model.ReportSeverityCritical:
			matches = append(matches, report)
		}
	}
	return matches
}
