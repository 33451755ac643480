package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// AlertFilter narrows an alert listing. Empty fields match everything.
type AlertFilter struct {
	RuleID   string
	Location string
	Type     model.AlertType
	Status   model.AlertStatus
	Since    time.Time
}

// AlertStore defines the interface for generated alert storage
type AlertStore interface {
	// Store stores a generated alert
	Store(ctx context.Context, alert *model.GeneratedAlert) error

	// Get retrieves an alert by ID
	Get(ctx context.Context, id string) (*model.GeneratedAlert, error)

	// List retrieves alerts with pagination and filters, newest first
	List(ctx context.Context, filter AlertFilter, offset, limit int) ([]*model.GeneratedAlert, error)

	// UpdateStatus moves an alert to a new lifecycle status
	UpdateStatus(ctx context.Context, id string, status model.AlertStatus) error

	// DeleteBefore deletes alerts created before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteAlertStore implements AlertStore using SQLite
type SQLiteAlertStore struct {
	logger *zap.Logger
	db     *sql.DB
}

const alertColumns = `id, rule_id, title, type, severity, message, location, report_ids,
	affected_count, status, pattern, confidence, recommendations, created_at`

// Store implements AlertStore.Store
func (s *SQLiteAlertStore) Store(ctx context.Context, alert *model.GeneratedAlert) error {
	reportIDs, err := json.Marshal(alert.ReportIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal report ids: %w", err)
	}
	recommendations, err := json.Marshal(alert.Evidence.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.RuleID,
		alert.Title,
		string(alert.Type),
		string(alert.Severity),
		alert.Message,
		alert.Location,
		string(reportIDs),
		alert.AffectedCount,
		string(alert.Status),
		alert.Evidence.Pattern,
		alert.Evidence.Confidence,
		string(recommendations),
		alert.CreatedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// Get implements AlertStore.Get
func (s *SQLiteAlertStore) Get(ctx context.Context, id string) (*model.GeneratedAlert, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	return alert, nil
}

// List implements AlertStore.List
func (s *SQLiteAlertStore) List(ctx context.Context, filter AlertFilter, offset, limit int) ([]*model.GeneratedAlert, error) {
	var conditions []string
	var args []interface{}

	if filter.RuleID != "" {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.Location != "" {
		conditions = append(conditions, "location = ?")
		args = append(args, filter.Location)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT " + alertColumns + " FROM alerts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.GeneratedAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return alerts, nil
}

// UpdateStatus implements AlertStore.UpdateStatus
func (s *SQLiteAlertStore) UpdateStatus(ctx context.Context, id string, status model.AlertStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM alerts WHERE id = ?", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrAlertNotFound, id)
		}
		return fmt.Errorf("failed to read alert status: %w", err)
	}

	if !model.AlertStatus(current).CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	_, err = tx.ExecContext(ctx, "UPDATE alerts SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert status: %w", err)
	}

	s.logger.Info("Alert status updated",
		zap.String("alert_id", id),
		zap.String("from", current),
		zap.String("to", string(status)))

	return nil
}

// DeleteBefore implements AlertStore.DeleteBefore
func (s *SQLiteAlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old alerts",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*model.GeneratedAlert, error) {
	var alert model.GeneratedAlert
	var alertType, severity, status string
	var message, reportIDs, pattern, recommendations sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(
		&alert.ID,
		&alert.RuleID,
		&alert.Title,
		&alertType,
		&severity,
		&message,
		&alert.Location,
		&reportIDs,
		&alert.AffectedCount,
		&status,
		&pattern,
		&confidence,
		&recommendations,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Type = model.AlertType(alertType)
	alert.Severity = model.AlertSeverity(severity)
	alert.Status = model.AlertStatus(status)
	alert.Message = message.String
	alert.Evidence.Pattern = pattern.String
	alert.Evidence.Confidence = confidence.Float64

	if reportIDs.Valid && reportIDs.String != "" {
		if err := json.Unmarshal([]byte(reportIDs.String), &alert.ReportIDs); err != nil {
			return nil, fmt.Errorf("failed to decode report ids: %w", err)
		}
	}
	if recommendations.Valid && recommendations.String != "" {
		if err := json.Unmarshal([]byte(recommendations.String), &alert.Evidence.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
	}

	return &alert, nil
}
