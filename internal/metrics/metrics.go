// Package metrics exposes Prometheus metrics for evaluation runs, report
// intake and alert delivery.
//
// Usage:
//
//	engine := detection.NewEngine(catalog, detection.WithRecorder(metrics.EngineRecorder{}))
//	metrics.RecordReportIngested("Rampur")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

var (
	// EvaluationRunsTotal counts completed evaluation runs.
	EvaluationRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_evaluation_runs_total",
			Help: "Total number of evaluation runs",
		},
	)

	// EvaluationDuration tracks how long evaluation runs take.
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_evaluation_duration_seconds",
			Help:    "Duration of evaluation runs in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// EvaluatedReports records the size of the last evaluated batch.
	EvaluatedReports = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_evaluated_reports",
			Help: "Number of reports in the last evaluation run",
		},
	)

	// EvaluatedLocations records the number of locations in the last run.
	EvaluatedLocations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_evaluated_locations",
			Help: "Number of locations in the last evaluation run",
		},
	)

	// AlertsGeneratedTotal counts generated alerts by rule, type and severity.
	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"rule_id", "type", "severity"},
	)

	// AlertConfidence tracks the confidence score of generated alerts.
	AlertConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_alert_confidence",
			Help:    "Confidence score of generated alerts",
			Buckets: []float64{0.2, 0.4, 0.6, 0.8, 0.9, 1.0},
		},
		[]string{"rule_id"},
	)

	// ReportsIngestedTotal counts reports accepted by the intake service.
	ReportsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reports_ingested_total",
			Help: "Total number of reports ingested",
		},
		[]string{"location"},
	)

	// ReportsRejectedTotal counts reports that could not be decoded or stored.
	ReportsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reports_rejected_total",
			Help: "Total number of rejected reports",
		},
		[]string{"reason"},
	)

	// NotificationsTotal counts notification deliveries by channel and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_total",
			Help: "Total number of alert notifications",
		},
		[]string{"channel", "outcome"},
	)
)

// EngineRecorder feeds engine run statistics into the Prometheus metrics
type EngineRecorder struct{}

// ObserveRun records one evaluation run
func (EngineRecorder) ObserveRun(duration time.Duration, reports, locations, alerts int) {
	EvaluationRunsTotal.Inc()
	EvaluationDuration.Observe(duration.Seconds())
	EvaluatedReports.Set(float64(reports))
	EvaluatedLocations.Set(float64(locations))
}

// ObserveAlert records one generated alert
func (EngineRecorder) ObserveAlert(alert model.GeneratedAlert) {
	AlertsGeneratedTotal.WithLabelValues(alert.RuleID, string(alert.Type), string(alert.Severity)).Inc()
	AlertConfidence.WithLabelValues(alert.RuleID).Observe(alert.Evidence.Confidence)
}

// RecordReportIngested records an accepted report
func RecordReportIngested(location string) {
	ReportsIngestedTotal.WithLabelValues(location).Inc()
}

// RecordReportRejected records a rejected report
func RecordReportRejected(reason string) {
	ReportsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordNotification records a notification attempt
func RecordNotification(channel string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
