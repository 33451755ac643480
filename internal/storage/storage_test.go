package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReportStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Reports()
	now := time.Now().UTC().Truncate(time.Millisecond)

	reports := []model.Report{
		{
			ID:          "r-old",
			Location:    "Rampur",
			Symptoms:    []string{"Fever"},
			SubmittedAt: now.Add(-72 * time.Hour),
			Severity:    model.ReportSeverityLow,
		},
		{
			ID:            "r-2",
			PatientName:   "Asha",
			PatientAge:    34,
			Location:      "Rampur",
			Symptoms:      []string{"Diarrhea", "Vomiting"},
			WaterPH:       "6.1",
			Contamination: model.ContaminationHigh,
			Notes:         "near the hand pump",
			SubmittedAt:   now.Add(-2 * time.Hour),
			SubmittedBy:   "worker-7",
			Severity:      model.ReportSeverityHigh,
		},
		{
			ID:          "r-1",
			Location:    "Sitapur",
			SubmittedAt: now.Add(-3 * time.Hour),
			Severity:    model.ReportSeverityMedium,
		},
	}

	for i := range reports {
		inserted, err := store.Store(ctx, &reports[i])
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	// duplicates are ignored
	inserted, err := store.Store(ctx, &reports[1])
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recent, err := store.ListSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// ordered by submission time
	assert.Equal(t, "r-1", recent[0].ID)
	assert.Equal(t, "r-2", recent[1].ID)

	got := recent[1]
	assert.Equal(t, "Asha", got.PatientName)
	assert.Equal(t, 34, got.PatientAge)
	assert.Equal(t, []string{"Diarrhea", "Vomiting"}, got.Symptoms)
	assert.Equal(t, "6.1", got.WaterPH)
	assert.Equal(t, model.ContaminationHigh, got.Contamination)
	assert.Equal(t, "worker-7", got.SubmittedBy)
	assert.Equal(t, model.ReportSeverityHigh, got.Severity)
	assert.True(t, got.SubmittedAt.Equal(reports[1].SubmittedAt))

	deleted, err := store.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func newAlert(id, location string, createdAt time.Time) *model.GeneratedAlert {
	return &model.GeneratedAlert{
		ID:            id,
		RuleID:        "diarrhea-outbreak",
		Title:         "Diarrhea Outbreak",
		Type:          model.AlertTypeDiseaseOutbreak,
		Severity:      model.AlertSeverityHigh,
		Message:       "Potential diarrhea outbreak in " + location,
		Location:      location,
		ReportIDs:     []string{"r1", "r2", "r3"},
		AffectedCount: 3,
		CreatedAt:     createdAt,
		Status:        model.AlertStatusActive,
		Evidence: model.AlertEvidence{
			Pattern:         "Diarrhea, Fever",
			Confidence:      0.8,
			Recommendations: []string{"Notify the district health officer"},
		},
	}
}

func TestAlertStore_StoreAndGet(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Alerts()
	now := time.Now().UTC().Truncate(time.Millisecond)

	alert := newAlert("a1", "Rampur", now)
	require.NoError(t, store.Store(ctx, alert))

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, alert.RuleID, got.RuleID)
	assert.Equal(t, alert.ReportIDs, got.ReportIDs)
	assert.Equal(t, alert.Evidence, got.Evidence)
	assert.Equal(t, model.AlertStatusActive, got.Status)
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Alerts()
	now := time.Now().UTC()

	require.NoError(t, store.Store(ctx, newAlert("a1", "Rampur", now.Add(-3*time.Hour))))
	require.NoError(t, store.Store(ctx, newAlert("a2", "Sitapur", now.Add(-2*time.Hour))))
	water := newAlert("a3", "Rampur", now.Add(-time.Hour))
	water.RuleID = "water-contamination"
	water.Type = model.AlertTypeWaterContamination
	require.NoError(t, store.Store(ctx, water))

	all, err := store.List(ctx, AlertFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID)

	rampur, err := store.List(ctx, AlertFilter{Location: "Rampur"}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, rampur, 2)

	byType, err := store.List(ctx, AlertFilter{Type: model.AlertTypeWaterContamination}, 0, 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "a3", byType[0].ID)

	page, err := store.List(ctx, AlertFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a2", page[0].ID)

	recent, err := store.List(ctx, AlertFilter{Since: now.Add(-90 * time.Minute)}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	deleted, err := store.DeleteBefore(ctx, now.Add(-150*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestAlertStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Alerts()

	require.NoError(t, store.Store(ctx, newAlert("a1", "Rampur", time.Now())))

	require.NoError(t, store.UpdateStatus(ctx, "a1", model.AlertStatusAcknowledged))
	require.ErrorIs(t, store.UpdateStatus(ctx, "a1", model.AlertStatusActive), ErrInvalidTransition)
	require.NoError(t, store.UpdateStatus(ctx, "a1", model.AlertStatusResolved))
	require.ErrorIs(t, store.UpdateStatus(ctx, "a1", model.AlertStatusAcknowledged), ErrInvalidTransition)
	require.ErrorIs(t, store.UpdateStatus(ctx, "missing", model.AlertStatusResolved), ErrAlertNotFound)

	resolved, err := store.List(ctx, AlertFilter{Status: model.AlertStatusResolved}, 0, 10)
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestRuleStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).Rules()

	first := model.Rule{ID: "b-rule", Name: "B", Condition: model.ConditionWaterPH, Threshold: 2, Active: true}
	second := model.Rule{ID: "a-rule", Name: "A", Condition: model.ConditionSymptomCount, TriggerSymptoms: []string{"Fever"}}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	first.Threshold = 4
	require.NoError(t, store.Save(ctx, first))

	rules, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "b-rule", rules[0].ID)
	assert.Equal(t, 4, rules[0].Threshold)
	assert.Equal(t, []string{"Fever"}, rules[1].TriggerSymptoms)

	require.NoError(t, store.Delete(ctx, "b-rule"))
	rules, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "a-rule", rules[0].ID)
}
