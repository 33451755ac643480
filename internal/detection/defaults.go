package detection

import "github.com/t77yq/outbreak-sentinel/internal/model"

// DefaultRules returns the built-in rule catalog used when no rules file
// is configured.
func DefaultRules() []model.Rule {
	return []model.Rule{
		{
			ID:              "diarrhea-outbreak",
			Name:            "Diarrhea Outbreak",
			Description:     "Cluster of diarrhea cases at one location",
			Condition:       model.ConditionSymptomCount,
			Threshold:       3,
			Severity:        model.AlertSeverityHigh,
			WindowHours:     24,
			Active:          true,
			TriggerSymptoms: []string{"Diarrhea"},
			AlertType:       model.AlertTypeDiseaseOutbreak,
		},
		{
			ID:              "fever-cluster",
			Name:            "Fever Cluster",
			Description:     "Unusual number of fever cases at one location",
			Condition:       model.ConditionSymptomCount,
			Threshold:       5,
			Severity:        model.AlertSeverityMedium,
			WindowHours:     48,
			Active:          true,
			TriggerSymptoms: []string{"Fever"},
		},
		{
			ID:          "water-contamination",
			Name:        "Water Contamination",
			Description: "Repeated high or severe contamination readings",
			Condition:   model.ConditionWaterContamination,
			Threshold:   2,
			Severity:    model.AlertSeverityCritical,
			WindowHours: 72,
			Active:      true,
		},
		{
			ID:          "abnormal-ph",
			Name:        "Abnormal Water pH",
			Description: "Water pH readings outside the 6.5-8.5 range",
			Condition:   model.ConditionWaterPH,
			Threshold:   3,
			Severity:    model.AlertSeverityMedium,
			WindowHours: 72,
			Active:      true,
		},
		{
			ID:          "severe-cases",
			Name:        "High Severity Case Cluster",
			Description: "Several high or critical reports at one location",
			Condition:   model.ConditionSeverityCount,
			Threshold:   3,
			Severity:    model.AlertSeverityCritical,
			WindowHours: 24,
			Active:      true,
		},
	}
}

// DefaultMessageTemplates returns alert message templates for the
// built-in rules.
func DefaultMessageTemplates() MessageTemplates {
	return MessageTemplates{
		"diarrhea-outbreak":   "Potential diarrhea outbreak in {location}: {count} cases reported within {window} hours.",
		"fever-cluster":       "Fever cluster detected in {location}: {count} patients with fever within {window} hours.",
		"water-contamination": "Water contamination detected in {location}: {count} high or severe readings within {window} hours.",
		"abnormal-ph":         "Abnormal water pH in {location}: {count} readings outside 6.5-8.5 within {window} hours.",
		"severe-cases":        "High severity cases in {location}: {count} high or critical reports within {window} hours.",
	}
}

// DefaultRecommendations returns the built-in operator actions per
// condition kind.
func DefaultRecommendations() Recommendations {
	return Recommendations{
		ByCondition: map[model.ConditionKind][]string{
			model.ConditionSymptomCount: {
				"Test local water sources for bacterial contamination",
				"Distribute oral rehydration salts and zinc supplements",
				"Refer severe cases to the nearest health facility",
				"Notify the district health officer",
				"Monitor the area daily for new cases",
			},
			model.ConditionWaterContamination: {
				"Stop use of the affected water source",
				"Distribute water purification tablets",
				"Collect samples for laboratory analysis",
				"Notify the water and sanitation authority",
				"Retest the source within 48 hours",
			},
			model.ConditionWaterPH: {
				"Retest pH with a calibrated meter",
				"Advise households to use an alternative source",
				"Inspect the source for chemical or industrial runoff",
				"Notify the water and sanitation authority",
				"Monitor pH readings daily",
			},
			model.ConditionSeverityCount: {
				"Escalate to the district medical officer",
				"Prepare referral transport for critical patients",
				"Stock rehydration and emergency supplies",
				"Notify the regional health authority",
				"Increase surveillance visits in the area",
			},
		},
	}
}
