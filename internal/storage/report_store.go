package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// ReportStore defines the interface for report storage
type ReportStore interface {
	// Store stores a report. Storing a report ID twice is a no-op.
	Store(ctx context.Context, report *model.Report) (bool, error)

	// ListSince returns reports submitted at or after since, in submission order
	ListSince(ctx context.Context, since time.Time) ([]model.Report, error)

	// Count returns the number of stored reports
	Count(ctx context.Context) (int, error)

	// DeleteBefore deletes reports submitted before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteReportStore implements ReportStore using SQLite
type SQLiteReportStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// Store implements ReportStore.Store
func (s *SQLiteReportStore) Store(ctx context.Context, report *model.Report) (bool, error) {
	symptoms, err := json.Marshal(report.Symptoms)
	if err != nil {
		return false, fmt.Errorf("failed to marshal symptoms: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reports (
			id, patient_name, patient_age, location, symptoms, water_turbidity,
			water_ph, contamination, notes, submitted_at, submitted_by, severity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.PatientName,
		report.PatientAge,
		report.Location,
		string(symptoms),
		report.WaterTurbidity,
		report.WaterPH,
		string(report.Contamination),
		report.Notes,
		report.SubmittedAt.UTC(),
		report.SubmittedBy,
		string(report.Severity),
	)
	if err != nil {
		return false, fmt.Errorf("failed to store report: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListSince implements ReportStore.ListSince
func (s *SQLiteReportStore) ListSince(ctx context.Context, since time.Time) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id, patient_name, patient_age, location, symptoms, water_turbidity,
			water_ph, contamination, notes, submitted_at, submitted_by, severity
		FROM reports
		WHERE submitted_at >= ?
		ORDER BY submitted_at ASC, rowid ASC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var report model.Report
		var patientName, symptoms, turbidity, ph, contamination, notes, submittedBy, severity sql.NullString
		var patientAge sql.NullInt64

		err := rows.Scan(
			&report.ID,
			&patientName,
			&patientAge,
			&report.Location,
			&symptoms,
			&turbidity,
			&ph,
			&contamination,
			&notes,
			&report.SubmittedAt,
			&submittedBy,
			&severity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		if symptoms.Valid && symptoms.String != "" {
			if err := json.Unmarshal([]byte(symptoms.String), &report.Symptoms); err != nil {
				s.logger.Warn("Failed to decode stored symptoms",
					zap.String("report_id", report.ID),
					zap.Error(err))
			}
		}
		report.PatientName = patientName.String
		report.PatientAge = int(patientAge.Int64)
		report.WaterTurbidity = turbidity.String
		report.WaterPH = ph.String
		report.Contamination = model.ContaminationLevel(contamination.String)
		report.Notes = notes.String
		report.SubmittedBy = submittedBy.String
		report.Severity = model.ReportSeverity(severity.String)

		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return reports, nil
}

// Count implements ReportStore.Count
func (s *SQLiteReportStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ReportStore.DeleteBefore
func (s *SQLiteReportStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE submitted_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old reports",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}
