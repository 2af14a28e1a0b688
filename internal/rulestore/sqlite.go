package rulestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/agentward/agentward/pkg/types"
)

// SQLiteStore persists guardrail rules in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed rule store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS guard_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			agent_id INTEGER NOT NULL DEFAULT 0,
			pattern TEXT NOT NULL,
			match_mode TEXT NOT NULL,
			risk_level TEXT,
			category TEXT,
			description TEXT,
			detection_types TEXT,
			exception_kind TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_guard_rules_scope ON guard_rules(kind, tenant_id, agent_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

// FetchRules returns the rules stored for exactly the given scope and kind,
// ordered by descending priority.
func (s *SQLiteStore) FetchRules(ctx context.Context, scope types.ScopeKey, kind types.RuleKind) ([]types.PatternRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern, match_mode, risk_level, category, description,
		       detection_types, exception_kind, tenant_id, agent_id, priority, is_active
		FROM guard_rules
		WHERE kind = ? AND tenant_id = ? AND agent_id = ?
		ORDER BY priority DESC, id ASC`,
		string(kind), scope.TenantID, scope.AgentID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []types.PatternRule
	for rows.Next() {
		var r types.PatternRule
		var risk, category, desc, detTypes, excKind sql.NullString
		var active int
		if err := rows.Scan(&r.ID, &r.Pattern, (*string)(&r.MatchMode), &risk, &category, &desc,
			&detTypes, &excKind, &r.TenantID, &r.AgentID, &r.Priority, &active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.RiskLevel = types.RiskLevel(risk.String)
		r.Category = category.String
		r.Description = desc.String
		r.DetectionTypes = detTypes.String
		r.ExceptionKind = types.ExceptionKind(excKind.String)
		r.IsActive = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRule stores a new rule and returns its id.
func (s *SQLiteStore) InsertRule(ctx context.Context, kind types.RuleKind, rule types.PatternRule) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO guard_rules
			(kind, tenant_id, agent_id, pattern, match_mode, risk_level, category,
			 description, detection_types, exception_kind, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(kind), rule.TenantID, rule.AgentID, rule.Pattern, string(rule.MatchMode),
		string(rule.RiskLevel), rule.Category, rule.Description, rule.DetectionTypes,
		string(rule.ExceptionKind), rule.Priority, boolToInt(rule.IsActive))
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRule rewrites an existing rule in place.
func (s *SQLiteStore) UpdateRule(ctx context.Context, kind types.RuleKind, rule types.PatternRule) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE guard_rules
		SET pattern = ?, match_mode = ?, risk_level = ?, category = ?, description = ?,
		    detection_types = ?, exception_kind = ?, priority = ?, is_active = ?
		WHERE id = ? AND kind = ?`,
		rule.Pattern, string(rule.MatchMode), string(rule.RiskLevel), rule.Category,
		rule.Description, rule.DetectionTypes, string(rule.ExceptionKind), rule.Priority,
		boolToInt(rule.IsActive), rule.ID, string(kind))
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireRowsAffected(res)
}

// DeleteRule removes a rule by id.
func (s *SQLiteStore) DeleteRule(ctx context.Context, kind types.RuleKind, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guard_rules WHERE id = ? AND kind = ?`, id, string(kind))
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRowsAffected(res)
}

// GetRule loads a single rule by id.
func (s *SQLiteStore) GetRule(ctx context.Context, kind types.RuleKind, id int64) (*types.PatternRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pattern, match_mode, risk_level, category, description,
		       detection_types, exception_kind, tenant_id, agent_id, priority, is_active
		FROM guard_rules WHERE id = ? AND kind = ?`, id, string(kind))

	var r types.PatternRule
	var risk, category, desc, detTypes, excKind sql.NullString
	var active int
	err := row.Scan(&r.ID, &r.Pattern, (*string)(&r.MatchMode), &risk, &category, &desc,
		&detTypes, &excKind, &r.TenantID, &r.AgentID, &r.Priority, &active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	r.RiskLevel = types.RiskLevel(risk.String)
	r.Category = category.String
	r.Description = desc.String
	r.DetectionTypes = detTypes.String
	r.ExceptionKind = types.ExceptionKind(excKind.String)
	r.IsActive = active != 0
	return &r, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
