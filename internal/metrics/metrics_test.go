package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

func TestEngineRecorder(t *testing.T) {
	runsBefore := testutil.ToFloat64(EvaluationRunsTotal)

	recorder := EngineRecorder{}
	recorder.ObserveRun(15*time.Millisecond, 42, 7, 2)

	assert.Equal(t, runsBefore+1, testutil.ToFloat64(EvaluationRunsTotal))
	assert.Equal(t, 42.0, testutil.ToFloat64(EvaluatedReports))
	assert.Equal(t, 7.0, testutil.ToFloat64(EvaluatedLocations))

	alert := model.GeneratedAlert{
		RuleID:   "metrics-test-rule",
		Type:     model.AlertTypeDiseaseOutbreak,
		Severity: model.AlertSeverityHigh,
		Evidence: model.AlertEvidence{Confidence: 0.8},
	}
	recorder.ObserveAlert(alert)
	recorder.ObserveAlert(alert)

	assert.Equal(t, 2.0, testutil.ToFloat64(
		AlertsGeneratedTotal.WithLabelValues("metrics-test-rule", "disease_outbreak", "high")))
}

func TestRecordNotification(t *testing.T) {
	RecordNotification("metrics-test", nil)
	RecordNotification("metrics-test", errors.New("smtp down"))
	RecordNotification("metrics-test", errors.New("smtp down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics-test", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics-test", "failure")))
}

func TestRecordReports(t *testing.T) {
	RecordReportIngested("metrics-village")
	RecordReportRejected("metrics-decode")

	assert.Equal(t, 1.0, testutil.ToFloat64(ReportsIngestedTotal.WithLabelValues("metrics-village")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReportsRejectedTotal.WithLabelValues("metrics-decode")))
}
