package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/metrics"
	"github.com/t77yq/outbreak-sentinel/internal/model"
	"github.com/t77yq/outbreak-sentinel/internal/storage"
)

const (
	alertStreamName    = "ALERTS"
	alertSubjectPrefix = "alert."
	alertStatusSubject = "alert.status"
)

// NotificationChannel represents a channel for sending alert notifications
type NotificationChannel interface {
	Name() string
	Send(alert *model.GeneratedAlert) error
}

// AlertManager runs evaluation passes over stored reports, then stores,
// publishes and delivers the resulting alerts.
type AlertManager struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	engine   *detection.Engine
	reports  storage.ReportStore
	alerts   storage.AlertStore
	channels []NotificationChannel
	now      func() time.Time

	// runMu serializes evaluation runs
	runMu sync.Mutex
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *zap.Logger, js nats.JetStreamContext, engine *detection.Engine, reports storage.ReportStore, alerts storage.AlertStore) *AlertManager {
	return &AlertManager{
		logger:  logger.Named("alert-manager"),
		js:      js,
		engine:  engine,
		reports: reports,
		alerts:  alerts,
		now:     time.Now,
	}
}

// AddChannel registers a notification channel
func (m *AlertManager) AddChannel(channel NotificationChannel) {
	m.channels = append(m.channels, channel)
}

// Start ensures the alert stream exists
func (m *AlertManager) Start(ctx context.Context) error {
	stream, err := m.js.StreamInfo(alertStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = m.js.AddStream(&nats.StreamConfig{
			Name:     alertStreamName,
			Subjects: []string{alertSubjectPrefix + "*"},
			Storage:  nats.FileStorage,
			MaxAge:   7 * 24 * time.Hour,
		}, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		m.logger.Info("Created alert stream", zap.String("name", alertStreamName))
	}

	m.logger.Info("Alert manager started")
	return nil
}

// RunEvaluation evaluates every report inside the widest active rule
// window and handles the alerts produced.
func (m *AlertManager) RunEvaluation(ctx context.Context) ([]model.GeneratedAlert, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	window := m.engine.Catalog().MaxWindow()
	if window == 0 {
		m.logger.Debug("No active rules, skipping evaluation")
		return nil, nil
	}

	reports, err := m.reports.ListSince(ctx, m.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	alerts := m.engine.GenerateAlerts(reports)
	for i := range alerts {
		m.handleAlert(ctx, &alerts[i])
	}

	return alerts, nil
}

// handleAlert stores, publishes and delivers one alert. Failures are logged
// per alert so one bad delivery does not stop the others.
func (m *AlertManager) handleAlert(ctx context.Context, alert *model.GeneratedAlert) {
	if err := m.alerts.Store(ctx, alert); err != nil {
		m.logger.Error("Failed to store alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}

	if err := m.publish(alertSubjectPrefix+string(alert.Type), alert); err != nil {
		m.logger.Error("Failed to publish alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}

	for _, channel := range m.channels {
		err := channel.Send(alert)
		metrics.RecordNotification(channel.Name(), err)
		if err != nil {
			m.logger.Error("Failed to send notification",
				zap.String("alert_id", alert.ID),
				zap.String("channel", channel.Name()),
				zap.Error(err))
		}
	}

	m.logger.Info("Alert created",
		zap.String("id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("location", alert.Location))
}

// Acknowledge marks an alert as acknowledged
func (m *AlertManager) Acknowledge(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.AlertStatusAcknowledged)
}

// Resolve marks an alert as resolved
func (m *AlertManager) Resolve(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.AlertStatusResolved)
}

func (m *AlertManager) transition(ctx context.Context, id string, status model.AlertStatus) error {
	if err := m.alerts.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	change := struct {
		ID     string            `json:"id"`
		Status model.AlertStatus `json:"status"`
		At     time.Time         `json:"at"`
	}{
		ID:     id,
		Status: status,
		At:     m.now(),
	}
	if err := m.publish(alertStatusSubject, change); err != nil {
		m.logger.Error("Failed to publish alert status",
			zap.String("alert_id", id),
			zap.Error(err))
	}
	return nil
}

// ListAlerts returns stored alerts
func (m *AlertManager) ListAlerts(ctx context.Context, filter storage.AlertFilter, offset, limit int) ([]*model.GeneratedAlert, error) {
	return m.alerts.List(ctx, filter, offset, limit)
}

func (m *AlertManager) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := m.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
