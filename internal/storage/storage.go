package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the SQLite database shared by the report, alert and rule stores
type DB struct {
	logger *zap.Logger
	db     *sql.DB
}

// Open opens (creating if needed) the SQLite database at path
func Open(logger *zap.Logger, path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	d := &DB{
		logger: logger.Named("storage"),
		db:     db,
	}

	if err := d.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// initialize creates the necessary tables if they don't exist
func (d *DB) initialize() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			patient_name TEXT,
			patient_age INTEGER,
			location TEXT NOT NULL,
			symptoms TEXT,
			water_turbidity TEXT,
			water_ph TEXT,
			contamination TEXT,
			notes TEXT,
			submitted_at DATETIME NOT NULL,
			submitted_by TEXT,
			severity TEXT,
			received_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_reports_location ON reports(location);
		CREATE INDEX IF NOT EXISTS idx_reports_submitted_at ON reports(submitted_at);

		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			title TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			location TEXT NOT NULL,
			report_ids TEXT,
			affected_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			pattern TEXT,
			confidence REAL,
			recommendations TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_rule_id ON alerts(rule_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_location ON alerts(location);
		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			body TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Reports returns the report store backed by this database
func (d *DB) Reports() *SQLiteReportStore {
	return &SQLiteReportStore{logger: d.logger, db: d.db}
}

// Alerts returns the alert store backed by this database
func (d *DB) Alerts() *SQLiteAlertStore {
	return &SQLiteAlertStore{logger: d.logger, db: d.db}
}

// Rules returns the rule store backed by this database
func (d *DB) Rules() *SQLiteRuleStore {
	return &SQLiteRuleStore{db: d.db}
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
