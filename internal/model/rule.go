package model

import "time"

// ConditionKind selects the evaluator used for a rule
type ConditionKind string

const (
	ConditionSymptomCount       ConditionKind = "symptom_count"
	ConditionWaterContamination ConditionKind = "water_contamination"
	ConditionWaterPH            ConditionKind = "water_ph"
	ConditionSeverityCount      ConditionKind = "severity_count"
)

// Rule defines a detection rule for generating alerts
type Rule struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Condition   ConditionKind `json:"condition" yaml:"condition"`
	Threshold   int           `json:"threshold" yaml:"threshold"`
	Severity    AlertSeverity `json:"severity" yaml:"severity"`
	WindowHours int           `json:"window_hours" yaml:"window_hours"`
	Active      bool          `json:"active" yaml:"active"`

	// TriggerSymptoms lists the symptoms a symptom_count rule matches on.
	TriggerSymptoms []string `json:"trigger_symptoms,omitempty" yaml:"trigger_symptoms"`

	// AlertType overrides the alert type derived from Condition.
	AlertType AlertType `json:"alert_type,omitempty" yaml:"alert_type"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Window returns the rule's trailing window as a duration.
func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowHours) * time.Hour
}

// DerivedAlertType returns the alert type emitted when the rule fires.
func (r Rule) DerivedAlertType() AlertType {
	if r.AlertType != "" {
		return r.AlertType
	}
	switch r.Condition {
	case ConditionWaterContamination, ConditionWaterPH:
		return AlertTypeWaterContamination
	case ConditionSeverityCount:
		return AlertTypeDiseaseOutbreak
	}
	return AlertTypeSystem
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	if r.TriggerSymptoms != nil {
		r.TriggerSymptoms = append([]string(nil), r.TriggerSymptoms...)
	}
	return r
}

// RuleUpdate is a partial update; nil fields are left unchanged.
type RuleUpdate struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Condition       *ConditionKind `json:"condition,omitempty"`
	Threshold       *int           `json:"threshold,omitempty"`
	Severity        *AlertSeverity `json:"severity,omitempty"`
	WindowHours     *int           `json:"window_hours,omitempty"`
	Active          *bool          `json:"active,omitempty"`
	TriggerSymptoms []string       `json:"trigger_symptoms,omitempty"`
	AlertType       *AlertType     `json:"alert_type,omitempty"`
}

// Apply copies the set fields of u onto r.
func (u RuleUpdate) Apply(r *Rule) {
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Condition != nil {
		r.Condition = *u.Condition
	}
	if u.Threshold != nil {
		r.Threshold = *u.Threshold
	}
	if u.Severity != nil {
		r.Severity = *u.Severity
	}
	if u.WindowHours != nil {
		r.WindowHours = *u.WindowHours
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
	if u.TriggerSymptoms != nil {
		r.TriggerSymptoms = append([]string(nil), u.TriggerSymptoms...)
	}
	if u.AlertType != nil {
		r.AlertType = *u.AlertType
	}
}
