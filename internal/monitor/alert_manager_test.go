package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/model"
	"github.com/t77yq/outbreak-sentinel/internal/storage"
	"github.com/t77yq/outbreak-sentinel/internal/testutil"
)

type recordingChannel struct {
	mu     sync.Mutex
	name   string
	err    error
	alerts []*model.GeneratedAlert
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(alert *model.GeneratedAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return c.err
}

type fixture struct {
	manager *AlertManager
	nc      *nats.Conn
	db      *storage.DB
	js      nats.JetStreamContext
	now     time.Time
}

func setupManager(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	nc, js, cleanup := testutil.StartJetStream(t)
	t.Cleanup(cleanup)

	db, err := storage.Open(logger, filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := detection.NewCatalog(logger, detection.DefaultRules()...)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	engine := detection.NewEngine(catalog,
		detection.WithLogger(logger),
		detection.WithClock(func() time.Time { return now }))

	manager := NewAlertManager(logger, js, engine, db.Reports(), db.Alerts())
	manager.now = func() time.Time { return now }
	require.NoError(t, manager.Start(context.Background()))

	return &fixture{manager: manager, nc: nc, db: db, js: js, now: now}
}

func (f *fixture) submit(t *testing.T, id, location string, age time.Duration, symptoms ...string) {
	t.Helper()
	_, err := f.db.Reports().Store(context.Background(), &model.Report{
		ID:          id,
		Location:    location,
		Symptoms:    symptoms,
		SubmittedAt: f.now.Add(-age),
		Severity:    model.ReportSeverityLow,
	})
	require.NoError(t, err)
}

func TestAlertManager_RunEvaluation(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	sub, err := f.js.SubscribeSync("alert.disease_outbreak")
	require.NoError(t, err)

	log := &recordingChannel{name: "log"}
	f.manager.AddChannel(log)

	f.submit(t, "r1", "Rampur", time.Hour, "Diarrhea")
	f.submit(t, "r2", "Rampur", 2*time.Hour, "Diarrhea", "Fever")
	f.submit(t, "r3", "Rampur", 3*time.Hour, "diarrhea")
	// outside the 72h widest window
	f.submit(t, "r0", "Rampur", 100*time.Hour, "Diarrhea")

	alerts, err := f.manager.RunEvaluation(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, "diarrhea-outbreak", alert.RuleID)
	assert.Equal(t, model.AlertTypeDiseaseOutbreak, alert.Type)
	assert.Equal(t, 3, alert.AffectedCount)
	assert.InDelta(t, 0.8, alert.Evidence.Confidence, 1e-9)

	stored, err := f.db.Alerts().Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.Message, stored.Message)

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var published model.GeneratedAlert
	require.NoError(t, json.Unmarshal(msg.Data, &published))
	assert.Equal(t, alert.ID, published.ID)

	require.Len(t, log.alerts, 1)
	assert.Equal(t, alert.ID, log.alerts[0].ID)
}

func TestAlertManager_ChannelFailureDoesNotStopDelivery(t *testing.T) {
	f := setupManager(t)

	failing := &recordingChannel{name: "email", err: errors.New("smtp down")}
	log := &recordingChannel{name: "log"}
	f.manager.AddChannel(failing)
	f.manager.AddChannel(log)

	for i, location := range []string{"Rampur", "Sitapur"} {
		for j := 0; j < 3; j++ {
			f.submit(t, location+string(rune('a'+i*3+j)), location, time.Hour, "Diarrhea")
		}
	}

	alerts, err := f.manager.RunEvaluation(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "Rampur", alerts[0].Location)
	assert.Equal(t, "Sitapur", alerts[1].Location)

	assert.Len(t, failing.alerts, 2)
	assert.Len(t, log.alerts, 2)
}

func TestAlertManager_NoActiveRules(t *testing.T) {
	f := setupManager(t)

	inactive := false
	for _, rule := range f.manager.engine.Catalog().List() {
		require.NoError(t, f.manager.engine.Catalog().Update(rule.ID, model.RuleUpdate{Active: &inactive}))
	}
	f.submit(t, "r1", "Rampur", time.Hour, "Diarrhea")

	alerts, err := f.manager.RunEvaluation(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestAlertManager_StatusTransitions(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	sub, err := f.js.SubscribeSync(alertStatusSubject)
	require.NoError(t, err)

	for _, id := range []string{"r1", "r2", "r3"} {
		f.submit(t, id, "Rampur", time.Hour, "Diarrhea")
	}
	alerts, err := f.manager.RunEvaluation(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	id := alerts[0].ID

	require.NoError(t, f.manager.Acknowledge(ctx, id))
	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), `"status":"acknowledged"`)

	require.NoError(t, f.manager.Resolve(ctx, id))
	require.ErrorIs(t, f.manager.Acknowledge(ctx, id), storage.ErrInvalidTransition)
	require.ErrorIs(t, f.manager.Resolve(ctx, "missing"), storage.ErrAlertNotFound)

	resolved, err := f.manager.ListAlerts(ctx, storage.AlertFilter{Status: model.AlertStatusResolved}, 0, 10)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, id, resolved[0].ID)
}
