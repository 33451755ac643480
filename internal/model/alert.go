package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityLow:
		return 1
	case AlertSeverityMedium:
		return 2
	case AlertSeverityHigh:
		return 3
	case AlertSeverityCritical:
		return 4
	}
	return 0
}

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeDiseaseOutbreak    AlertType = "disease_outbreak"
	AlertTypeWaterContamination AlertType = "water_contamination"
	AlertTypeSystem             AlertType = "system"
)

// AlertStatus represents the lifecycle state of a generated alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// CanTransition reports whether an alert may move from s to next.
// Alerts only move forward: active -> acknowledged -> resolved.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	switch s {
	case AlertStatusActive:
		return next == AlertStatusAcknowledged || next == AlertStatusResolved
	case AlertStatusAcknowledged:
		return next == AlertStatusResolved
	}
	return false
}

// AlertEvidence holds the analysis backing an alert
type AlertEvidence struct {
	Pattern         string   `json:"pattern"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// GeneratedAlert represents one firing of a rule at a location
type GeneratedAlert struct {
	ID            string        `json:"id"`
	RuleID        string        `json:"rule_id"`
	Title         string        `json:"title"`
	Type          AlertType     `json:"type"`
	Severity      AlertSeverity `json:"severity"`
	Message       string        `json:"message"`
	Location      string        `json:"location"`
	ReportIDs     []string      `json:"report_ids"`
	AffectedCount int           `json:"affected_count"`
	CreatedAt     time.Time     `json:"created_at"`
	Status        AlertStatus   `json:"status"`
	Evidence      AlertEvidence `json:"evidence"`
}
