package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/metrics"
	"github.com/t77yq/outbreak-sentinel/internal/model"
	"github.com/t77yq/outbreak-sentinel/internal/storage"
)

const (
	reportStreamName    = "REPORTS"
	ReportSubmitSubject = "report.submit"
	reportConsumerName  = "report-intake"
)

// ErrInvalidReport is returned for reports missing required fields
var ErrInvalidReport = errors.New("invalid report")

// ReportService consumes submitted health reports and stores them
type ReportService struct {
	js     nats.JetStreamContext
	store  storage.ReportStore
	logger *zap.Logger
	now    func() time.Time
	sub    *nats.Subscription
}

// NewReportService creates a new report intake service
func NewReportService(js nats.JetStreamContext, store storage.ReportStore, logger *zap.Logger) *ReportService {
	return &ReportService{
		js:     js,
		store:  store,
		logger: logger.Named("reports"),
		now:    time.Now,
	}
}

// Start ensures the report stream and begins consuming submissions
func (s *ReportService) Start(ctx context.Context) error {
	stream, err := s.js.StreamInfo(reportStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = s.js.AddStream(&nats.StreamConfig{
			Name:     reportStreamName,
			Subjects: []string{"report.>"},
			Storage:  nats.FileStorage,
		}, nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		s.logger.Info("Created report stream", zap.String("name", reportStreamName))
	}

	sub, err := s.js.Subscribe(ReportSubmitSubject, func(msg *nats.Msg) {
		s.handleSubmit(ctx, msg)
	}, nats.Durable(reportConsumerName), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return fmt.Errorf("failed to subscribe to reports: %w", err)
	}
	s.sub = sub

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("Report service started")
	return nil
}

// Stop stops consuming reports. The durable consumer is kept.
func (s *ReportService) Stop() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Warn("Failed to drain report subscription", zap.Error(err))
	}
}

func (s *ReportService) handleSubmit(ctx context.Context, msg *nats.Msg) {
	var report model.Report
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		s.logger.Error("Failed to unmarshal report", zap.Error(err))
		metrics.RecordReportRejected("decode")
		// redelivery will not fix a malformed payload
		if err := msg.Term(); err != nil {
			s.logger.Warn("Failed to terminate message", zap.Error(err))
		}
		return
	}

	if err := s.normalize(&report); err != nil {
		s.logger.Warn("Rejected report",
			zap.String("report_id", report.ID),
			zap.Error(err))
		metrics.RecordReportRejected("invalid")
		if err := msg.Term(); err != nil {
			s.logger.Warn("Failed to terminate message", zap.Error(err))
		}
		return
	}

	inserted, err := s.store.Store(ctx, &report)
	if err != nil {
		s.logger.Error("Failed to store report",
			zap.String("report_id", report.ID),
			zap.Error(err))
		metrics.RecordReportRejected("store")
		if err := msg.Nak(); err != nil {
			s.logger.Warn("Failed to nak message", zap.Error(err))
		}
		return
	}

	if inserted {
		metrics.RecordReportIngested(report.Location)
		s.logger.Debug("Report stored",
			zap.String("report_id", report.ID),
			zap.String("location", report.Location))
	} else {
		s.logger.Debug("Duplicate report ignored", zap.String("report_id", report.ID))
	}

	if err := msg.Ack(); err != nil {
		s.logger.Warn("Failed to ack report", zap.Error(err))
	}
}

// normalize fills defaults and rejects reports that cannot be grouped
func (s *ReportService) normalize(report *model.Report) error {
	if strings.TrimSpace(report.Location) == "" {
		return fmt.Errorf("%w: missing location", ErrInvalidReport)
	}
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.SubmittedAt.IsZero() {
		report.SubmittedAt = s.now()
	}
	if report.Severity == "" {
		report.Severity = model.ReportSeverityLow
	}
	return nil
}

// PublishReport submits a report onto the intake subject
func PublishReport(js nats.JetStreamContext, report model.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if _, err := js.Publish(ReportSubmitSubject, data); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}
