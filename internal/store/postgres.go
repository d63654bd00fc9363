package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/jackc/pgx/v5"
)

// Source is a configuration store that serves both settings and rules.
type Source interface {
	moderation.SettingsSource
	moderation.RuleSource
}

// Querier is the subset of pgxpool.Pool and pgx.Conn the Postgres source uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads filter settings from app_settings and rules from
// moderation_rules.
type PostgresSource struct {
	db          Querier
	settingsKey string
}

func NewPostgresSource(db Querier, settingsKey string) *PostgresSource {
	return &PostgresSource{db: db, settingsKey: settingsKey}
}

func (s *PostgresSource) FilterSettings(ctx context.Context) (map[string]any, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `
		SELECT value
		FROM app_settings
		WHERE key = $1
	`, s.settingsKey).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query app_settings: %w", err)
	}

	raw, ok := decodeSettings(value)
	if !ok {
		slog.Warn("filter settings are not a JSON object, using defaults", "key", s.settingsKey)
		return nil, false, nil
	}
	return raw, true, nil
}

func (s *PostgresSource) ActiveRules(ctx context.Context) ([]moderation.Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pattern, action, COALESCE(replacement, '')
		FROM moderation_rules
		WHERE active
		ORDER BY priority ASC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query moderation_rules: %w", err)
	}
	defer rows.Close()

	var rules []moderation.Rule
	for rows.Next() {
		var pattern, action, replacement string
		if err := rows.Scan(&pattern, &action, &replacement); err != nil {
			return nil, fmt.Errorf("scan moderation_rules: %w", err)
		}
		if rule, ok := newRule(pattern, action, replacement); ok {
			rules = append(rules, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation_rules: %w", err)
	}
	return rules, nil
}

// newRule validates a stored rule. Unknown actions are dropped.
func newRule(pattern, action, replacement string) (moderation.Rule, bool) {
	a, ok := moderation.ParseAction(action)
	if !ok {
		slog.Warn("skipping moderation rule with unknown action", "pattern", pattern, "action", action)
		return moderation.Rule{}, false
	}
	return moderation.Rule{Pattern: pattern, Action: a, Replacement: replacement}, true
}

// decodeSettings parses a JSON settings object, keeping numbers as json.Number.
func decodeSettings(data []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	raw, ok := v.(map[string]any)
	return raw, ok
}
