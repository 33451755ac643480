package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// RuleStore defines the interface for persisting the rule catalog
type RuleStore interface {
	// Save inserts or replaces a rule, keeping its catalog position on update
	Save(ctx context.Context, rule model.Rule) error

	// Delete removes a rule
	Delete(ctx context.Context, id string) error

	// List returns rules in catalog order
	List(ctx context.Context) ([]model.Rule, error)
}

// SQLiteRuleStore implements RuleStore using SQLite
type SQLiteRuleStore struct {
	db *sql.DB
}

// Save implements RuleStore.Save
func (s *SQLiteRuleStore) Save(ctx context.Context, rule model.Rule) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, position, body)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM rules), ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		rule.ID, string(body))
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// Delete implements RuleStore.Delete
func (s *SQLiteRuleStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// List implements RuleStore.List
func (s *SQLiteRuleStore) List(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT body FROM rules ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		var rule model.Rule
		if err := json.Unmarshal([]byte(body), &rule); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return rules, nil
}
