package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ReportSeverity is the severity assigned to a report by the field worker
type ReportSeverity string

const (
	ReportSeverityLow      ReportSeverity = "low"
	ReportSeverityMedium   ReportSeverity = "medium"
	ReportSeverityHigh     ReportSeverity = "high"
	ReportSeverityCritical ReportSeverity = "critical"
)

// ContaminationLevel is the observed water contamination level
type ContaminationLevel string

const (
	ContaminationLow    ContaminationLevel = "low"
	ContaminationMedium ContaminationLevel = "medium"
	ContaminationHigh   ContaminationLevel = "high"
	ContaminationSevere ContaminationLevel = "severe"
)

// Report is a single field observation. Reports are never mutated once created.
type Report struct {
	ID             string             `json:"id"`
	PatientName    string             `json:"patient_name,omitempty"`
	PatientAge     int                `json:"patient_age,omitempty"`
	Location       string             `json:"location"`
	Symptoms       []string           `json:"symptoms,omitempty"`
	WaterTurbidity string             `json:"water_turbidity,omitempty"`
	WaterPH        string             `json:"water_ph,omitempty"`
	Contamination  ContaminationLevel `json:"contamination,omitempty"`
	Notes          string             `json:"notes,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
	SubmittedBy    string             `json:"submitted_by"`
	Severity       ReportSeverity     `json:"severity"`
}

// PH parses the water pH reading. The second value is false when the
// field is empty or not a finite number.
func (r Report) PH() (float64, bool) {
	return parseReading(r.WaterPH)
}

// Turbidity parses the water turbidity reading.
func (r Report) Turbidity() (float64, bool) {
	return parseReading(r.WaterTurbidity)
}

// SymptomSet returns the report's symptoms with duplicates removed,
// keeping the first spelling seen.
func (r Report) SymptomSet() []string {
	seen := make(map[string]struct{}, len(r.Symptoms))
	set := make([]string, 0, len(r.Symptoms))
	for _, s := range r.Symptoms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set = append(set, s)
	}
	return set
}

// HasSymptom reports whether the report lists the symptom (case-insensitive).
func (r Report) HasSymptom(symptom string) bool {
	symptom = strings.TrimSpace(symptom)
	for _, s := range r.Symptoms {
		if strings.EqualFold(strings.TrimSpace(s), symptom) {
			return true
		}
	}
	return false
}

// ContaminationLabel returns the normalized contamination level.
func (r Report) ContaminationLabel() ContaminationLevel {
	return ContaminationLevel(strings.ToLower(strings.TrimSpace(string(r.Contamination))))
}

// SeverityLabel returns the normalized report severity.
func (r Report) SeverityLabel() ReportSeverity {
	return ReportSeverity(strings.ToLower(strings.TrimSpace(string(r.Severity))))
}

func parseReading(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
